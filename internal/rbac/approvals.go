package rbac

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/guardplane/internal/domain"
)

// ApprovalSink — write-through персистентность заявок (Postgres), чтобы
// операторская очередь переживала рестарт. Источник правды для решений —
// in-memory мапа реестра; ошибки синка логируются и не блокируют workflow.
type ApprovalSink interface {
	SaveApproval(ctx context.Context, app *domain.ApprovalRequest) error
	UpdateApproval(ctx context.Context, app *domain.ApprovalRequest) error
}

// RequestApproval ставит действие в очередь ручного подтверждения.
// Вызывается после исхода requires_approval из CanPerformAction.
func (r *Registry) RequestApproval(ctx context.Context, actor, action string, params map[string]interface{}) (*domain.ApprovalRequest, error) {
	now := r.now().UTC()

	app := &domain.ApprovalRequest{
		ID:         uuid.New().String(),
		SystemName: actor,
		Action:     action,
		Params:     params,
		Status:     domain.ApprovalPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(domain.ApprovalTTL),
		UpdatedAt:  now,
	}

	r.mu.Lock()
	r.approvals[app.ID] = app
	r.mu.Unlock()

	if r.sink != nil {
		if err := r.sink.SaveApproval(ctx, app); err != nil {
			r.logger.Error("approval write-through failed",
				zap.String("id", app.ID), zap.Error(err))
		}
	}

	r.logger.Info("approval requested",
		zap.String("id", app.ID),
		zap.String("actor", actor),
		zap.String("action", action))

	cp := *app
	return &cp, nil
}

// ProcessApproval фиксирует решение оператора. Строго однократный переход
// PENDING -> APPROVED/REJECTED; просроченная заявка наблюдается как REJECTED
// и решать ее уже нельзя. ВАЖНО: апрув меняет только статус заявки — исходное
// решение CanPerformAction он не поднимает, исполнение остается за вызывающим.
func (r *Registry) ProcessApproval(ctx context.Context, id string, approve bool, reviewerID, comment string) (*domain.ApprovalRequest, error) {
	now := r.now().UTC()

	next := domain.ApprovalRejected
	if approve {
		next = domain.ApprovalApproved
	}

	r.mu.Lock()
	app, ok := r.approvals[id]
	if !ok {
		r.mu.Unlock()
		return nil, domain.ErrApprovalNotFound
	}
	if err := app.CanTransitionTo(next, now); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	app.Status = next
	app.ReviewerID = &reviewerID
	if comment != "" {
		app.Comment = &comment
	}
	app.UpdatedAt = now
	cp := *app
	r.mu.Unlock()

	if r.sink != nil {
		if err := r.sink.UpdateApproval(ctx, &cp); err != nil {
			r.logger.Error("approval update write-through failed",
				zap.String("id", id), zap.Error(err))
		}
	}

	r.logger.Info("approval decided",
		zap.String("id", id),
		zap.String("status", string(next)),
		zap.String("reviewer", reviewerID))

	return &cp, nil
}

// GetApproval возвращает заявку по ID (статус — с учетом срока жизни).
func (r *Registry) GetApproval(id string) (*domain.ApprovalRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.approvals[id]
	if !ok {
		return nil, domain.ErrApprovalNotFound
	}
	cp := *app
	cp.Status = app.EffectiveStatus(r.now())
	return &cp, nil
}

// PendingApprovals возвращает живую очередь (без просроченных), новые первыми.
// Записи не удаляются никогда — очередь остается аудиторским следом.
func (r *Registry) PendingApprovals() []*domain.ApprovalRequest {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]*domain.ApprovalRequest, 0)
	for _, app := range r.approvals {
		if app.EffectiveStatus(now) != domain.ApprovalPending {
			continue
		}
		cp := *app
		out = append(out, &cp)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
