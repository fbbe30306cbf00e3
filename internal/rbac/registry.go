package rbac

/*
Permission & Approval Registry — policy oracle для автономных подсистем.

Реестр отвечает только «можно/нельзя/нужен апрув» и ведет счетчики. Он
сознательно НЕ списывает квоту в CanPerformAction: вызывающий обязан позвать
RecordAction ПОСЛЕ успешного выполнения, иначе разрешенные, но не выполненные
действия съедали бы лимит. Апрув заявки тоже не исполняет действие — после
APPROVED вызывающая подсистема сама перепроверяет и исполняет (см. approvals.go).
*/

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/guardplane/internal/domain"
)

// Причины отказа, которые вызывающий может показать в логе
const (
	ReasonUnknownActor     = "unknown actor"
	ReasonNotPermitted     = "action not permitted"
	ReasonRequiresApproval = "requires approval"
	ReasonRateLimited      = "rate limit exceeded"
	ReasonSpendLimited     = "spend limit exceeded"
)

var ErrUnknownActor = errors.New("rbac: unknown actor")

// Decision — результат проверки. RequiresApproval — отдельный исход, не
// жесткий отказ: вызывающий обязан ветвиться и ставить заявку в очередь.
type Decision struct {
	Allowed          bool   `json:"allowed"`
	Reason           string `json:"reason,omitempty"`
	RequiresApproval bool   `json:"requires_approval,omitempty"`
}

// ActorStatus — снимок для console API.
type ActorStatus struct {
	Config  domain.SystemPermissions `json:"config"`
	Tracker ActionTracker            `json:"tracker"`
}

type Registry struct {
	mu       sync.Mutex
	actors   map[string]domain.SystemPermissions
	trackers map[string]*ActionTracker

	approvals map[string]*domain.ApprovalRequest

	sink   ApprovalSink // write-through в Postgres; может быть nil
	logger *zap.Logger
	now    func() time.Time
}

// NewRegistry загружает статическую таблицу прав. Конфигурация неизменяема
// в рантайме — перечитывание только через рестарт.
func NewRegistry(actors []domain.SystemPermissions, sink ApprovalSink, logger *zap.Logger) *Registry {
	r := &Registry{
		actors:    make(map[string]domain.SystemPermissions, len(actors)),
		trackers:  make(map[string]*ActionTracker, len(actors)),
		approvals: make(map[string]*domain.ApprovalRequest),
		sink:      sink,
		logger:    logger.With(zap.String("mod", "rbac")),
		now:       time.Now,
	}

	n := r.now()
	for _, a := range actors {
		r.actors[a.Name] = a
		r.trackers[a.Name] = newTracker(n)
	}
	r.logger.Info("permission registry loaded", zap.Int("actors", len(actors)))
	return r
}

// CanPerformAction решает, может ли актор выполнить действие. Проверки
// короткого замыкания, в порядке:
//  1. актор зарегистрирован;
//  2. уровень действия задан и не none;
//  3. действие в requires_approval при уровне ровно suggest -> requires_approval;
//  4. сдвиг окон + потолки частоты и трат.
// Квота здесь НЕ списывается.
func (r *Registry) CanPerformAction(actor, action string, spend int64) Decision {
	r.mu.Lock()
	defer r.mu.Unlock()

	perms, ok := r.actors[actor]
	if !ok {
		return Decision{Allowed: false, Reason: ReasonUnknownActor}
	}

	level, ok := perms.Permissions[action]
	if !ok || level == domain.LevelNone || !level.Valid() {
		return Decision{Allowed: false, Reason: ReasonNotPermitted}
	}

	// Уровень ровно suggest + список апрувов = отдельный исход.
	// execute/full проходят без ручного подтверждения даже при вхождении в список.
	if perms.NeedsApproval(action) && level == domain.LevelSuggest {
		return Decision{Allowed: false, Reason: ReasonRequiresApproval, RequiresApproval: true}
	}

	t := r.trackers[actor]
	t.roll(r.now())

	if perms.MaxActionsPerHour > 0 && t.LastHourActions >= perms.MaxActionsPerHour {
		return Decision{Allowed: false, Reason: ReasonRateLimited}
	}
	if spend > 0 && perms.MaxSpendPerDay > 0 && t.SpentToday+spend > perms.MaxSpendPerDay {
		return Decision{Allowed: false, Reason: ReasonSpendLimited}
	}

	return Decision{Allowed: true}
}

// RecordAction списывает квоту. Вызывается ПОСЛЕ успешного выполнения действия.
func (r *Registry) RecordAction(actor, action string, spend int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.trackers[actor]
	if !ok {
		return ErrUnknownActor
	}

	t.roll(r.now())
	t.ActionCount++
	t.LastHourActions++
	if spend > 0 {
		t.SpentToday += spend
	}
	return nil
}

// Status возвращает снимок по всем акторам (окна предварительно сдвигаются,
// чтобы счетчики были актуальны на момент чтения).
func (r *Registry) Status() map[string]ActorStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.now()
	out := make(map[string]ActorStatus, len(r.actors))
	for name, cfg := range r.actors {
		t := r.trackers[name]
		t.roll(n)
		out[name] = ActorStatus{Config: cfg, Tracker: *t}
	}
	return out
}
