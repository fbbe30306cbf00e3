package killswitch

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Действия для встроенного аудиторского кольца
type Action string

const (
	ActionKill         Action = "KILL"
	ActionResume       Action = "RESUME"
	ActionKillSystem   Action = "KILL_SYSTEM"
	ActionResumeSystem Action = "RESUME_SYSTEM"
)

type EventType string

const (
	EventKilled        EventType = "killed"
	EventResumed       EventType = "resumed"
	EventSystemKilled  EventType = "systemKilled"
	EventSystemResumed EventType = "systemResumed"
)

// auditRingCap — предел кольца; старые записи молча вытесняются.
const auditRingCap = 1000

var (
	ErrNotRegistered     = errors.New("killswitch: subsystem not registered")
	ErrAlreadyRegistered = errors.New("killswitch: subsystem already registered")
	ErrNilCallback       = errors.New("killswitch: kill and resume callbacks are required")
	// ErrBlocked возвращается Guarded, когда операция запрещена рубильником.
	ErrBlocked = errors.New("killswitch: operation blocked")
)

// Callbacks — пара остановки/возобновления, которой владеет сама подсистема.
// Control plane только вызывает их, логика остановки остается у владельца.
type Callbacks struct {
	Kill   func() error
	Resume func() error
}

type AuditRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	Action      Action    `json:"action"`
	System      string    `json:"system"` // "*" для агрегатной записи KillAll/ResumeAll
	Reason      string    `json:"reason"`
	TriggeredBy string    `json:"triggered_by"`
	Success     bool      `json:"success"`
}

type Event struct {
	Type        EventType `json:"type"`
	System      string    `json:"system"`
	Reason      string    `json:"reason"`
	TriggeredBy string    `json:"triggered_by"`
	Timestamp   time.Time `json:"timestamp"`
}

// Status — снимок состояния для console API.
type Status struct {
	GlobalKilled   bool            `json:"global_killed"`
	Systems        map[string]bool `json:"systems"` // name -> killed
	LastKillTime   time.Time       `json:"last_kill_time,omitempty"`
	LastResumeTime time.Time       `json:"last_resume_time,omitempty"`
	KillReason     string          `json:"kill_reason,omitempty"`
	KilledBy       string          `json:"killed_by,omitempty"`
}

// Switch — process-scoped рубильник. Создается один раз в main и прокидывается
// зависимостью; скрытых глобалов нет.
type Switch struct {
	mu      sync.RWMutex
	systems map[string]Callbacks
	killed  map[string]bool

	globalKilled   bool
	lastKillTime   time.Time
	lastResumeTime time.Time
	killReason     string
	killedBy       string

	ring      []AuditRecord
	listeners []func(Event)

	logger *zap.Logger
}

func NewSwitch(logger *zap.Logger) *Switch {
	return &Switch{
		systems: make(map[string]Callbacks),
		killed:  make(map[string]bool),
		logger:  logger.With(zap.String("mod", "killswitch")),
	}
}

// Register подключает подсистему. Owner-exclusive: повторная регистрация под
// тем же именем — ошибка, переопределить чужие callbacks нельзя.
func (s *Switch) Register(name string, cb Callbacks) error {
	if cb.Kill == nil || cb.Resume == nil {
		return ErrNilCallback
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.systems[name]; exists {
		return ErrAlreadyRegistered
	}
	s.systems[name] = cb
	s.logger.Info("subsystem registered", zap.String("system", name))
	return nil
}

// Subscribe добавляет слушателя событий (мониторинг, Redis-мост, Audit Ledger).
// Доставка fire-and-forget: переход никогда не ждет слушателя.
func (s *Switch) Subscribe(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// IsOperationAllowed — чистое чтение, вызывается каждой автономной подсистемой
// непосредственно перед действием. Не кэшируется: смысл рубильника в
// мгновенном эффекте.
func (s *Switch) IsOperationAllowed(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.globalKilled {
		return false
	}
	return !s.killed[name]
}

// Guarded оборачивает единицу работы. Если операция запрещена, op не
// выполняется: возвращается fallback (если задан) либо ErrBlocked.
func (s *Switch) Guarded(name string, op func() (interface{}, error), fallback interface{}) (interface{}, error) {
	if !s.IsOperationAllowed(name) {
		if fallback != nil {
			return fallback, nil
		}
		return nil, ErrBlocked
	}
	return op()
}

// KillAll — глобальный аварийный стоп. Сначала взводится globalKilled (новые
// проверки отсекаются сразу), затем best-effort обход всех подсистем: ошибка
// одного kill() логируется и не прерывает остальных. Возвращает агрегатный
// allSuccess; частичный результат виден в audit trail.
func (s *Switch) KillAll(reason, triggeredBy string) bool {
	now := time.Now().UTC()

	s.mu.Lock()
	s.globalKilled = true
	s.lastKillTime = now
	s.killReason = reason
	s.killedBy = triggeredBy
	targets := s.snapshotLocked()
	s.mu.Unlock()

	allSuccess := true
	for _, t := range targets {
		ok := s.invoke(t.cb.Kill, t.name, "kill")
		if !ok {
			allSuccess = false
		}
		s.record(AuditRecord{Timestamp: now, Action: ActionKill, System: t.name,
			Reason: reason, TriggeredBy: triggeredBy, Success: ok})
	}

	s.record(AuditRecord{Timestamp: now, Action: ActionKill, System: "*",
		Reason: reason, TriggeredBy: triggeredBy, Success: allSuccess})
	s.emit(Event{Type: EventKilled, System: "*", Reason: reason,
		TriggeredBy: triggeredBy, Timestamp: now})

	s.logger.Warn("GLOBAL KILL SWITCH ACTIVATED",
		zap.String("reason", reason),
		zap.String("triggered_by", triggeredBy),
		zap.Bool("all_success", allSuccess))
	return allSuccess
}

// ResumeAll — симметричный возврат: сначала снимается globalKilled, затем
// resume() по каждой подсистеме. Индивидуальные kill-флаги (KillSystem) не
// трогаются — их снимают явным ResumeSystem.
func (s *Switch) ResumeAll(reason, triggeredBy string) bool {
	now := time.Now().UTC()

	s.mu.Lock()
	s.globalKilled = false
	s.lastResumeTime = now
	targets := s.snapshotLocked()
	s.mu.Unlock()

	allSuccess := true
	for _, t := range targets {
		ok := s.invoke(t.cb.Resume, t.name, "resume")
		if !ok {
			allSuccess = false
		}
		s.record(AuditRecord{Timestamp: now, Action: ActionResume, System: t.name,
			Reason: reason, TriggeredBy: triggeredBy, Success: ok})
	}

	s.record(AuditRecord{Timestamp: now, Action: ActionResume, System: "*",
		Reason: reason, TriggeredBy: triggeredBy, Success: allSuccess})
	s.emit(Event{Type: EventResumed, System: "*", Reason: reason,
		TriggeredBy: triggeredBy, Timestamp: now})

	s.logger.Info("global kill switch deactivated",
		zap.String("reason", reason), zap.String("triggered_by", triggeredBy))
	return allSuccess
}

// KillSystem останавливает одну подсистему.
func (s *Switch) KillSystem(name, reason, triggeredBy string) (bool, error) {
	now := time.Now().UTC()

	s.mu.Lock()
	cb, exists := s.systems[name]
	if !exists {
		s.mu.Unlock()
		return false, ErrNotRegistered
	}
	s.killed[name] = true
	s.mu.Unlock()

	ok := s.invoke(cb.Kill, name, "kill")
	s.record(AuditRecord{Timestamp: now, Action: ActionKillSystem, System: name,
		Reason: reason, TriggeredBy: triggeredBy, Success: ok})
	s.emit(Event{Type: EventSystemKilled, System: name, Reason: reason,
		TriggeredBy: triggeredBy, Timestamp: now})

	s.logger.Warn("subsystem killed",
		zap.String("system", name), zap.String("reason", reason),
		zap.String("triggered_by", triggeredBy), zap.Bool("success", ok))
	return ok, nil
}

// ResumeSystem возобновляет одну подсистему. Пока действует глобальный стоп —
// отказ без вызова callback: FORCE-KILLED перекрывает индивидуальный resume.
func (s *Switch) ResumeSystem(name, reason, triggeredBy string) (bool, error) {
	now := time.Now().UTC()

	s.mu.Lock()
	if s.globalKilled {
		s.mu.Unlock()
		s.record(AuditRecord{Timestamp: now, Action: ActionResumeSystem, System: name,
			Reason: reason + " (refused: global kill active)", TriggeredBy: triggeredBy, Success: false})
		s.logger.Warn("resume refused: global kill active", zap.String("system", name))
		return false, nil
	}
	cb, exists := s.systems[name]
	if !exists {
		s.mu.Unlock()
		return false, ErrNotRegistered
	}
	delete(s.killed, name)
	s.mu.Unlock()

	ok := s.invoke(cb.Resume, name, "resume")
	s.record(AuditRecord{Timestamp: now, Action: ActionResumeSystem, System: name,
		Reason: reason, TriggeredBy: triggeredBy, Success: ok})
	s.emit(Event{Type: EventSystemResumed, System: name, Reason: reason,
		TriggeredBy: triggeredBy, Timestamp: now})

	s.logger.Info("subsystem resumed",
		zap.String("system", name), zap.String("triggered_by", triggeredBy))
	return ok, nil
}

// GetStatus возвращает снимок состояния.
func (s *Switch) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	systems := make(map[string]bool, len(s.systems))
	for name := range s.systems {
		systems[name] = s.globalKilled || s.killed[name]
	}
	return Status{
		GlobalKilled:   s.globalKilled,
		Systems:        systems,
		LastKillTime:   s.lastKillTime,
		LastResumeTime: s.lastResumeTime,
		KillReason:     s.killReason,
		KilledBy:       s.killedBy,
	}
}

// AuditTrail возвращает последние limit записей кольца (0 = всё).
func (s *Switch) AuditTrail(limit int) []AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.ring) {
		limit = len(s.ring)
	}
	out := make([]AuditRecord, limit)
	copy(out, s.ring[len(s.ring)-limit:])
	return out
}

type target struct {
	name string
	cb   Callbacks
}

func (s *Switch) snapshotLocked() []target {
	targets := make([]target, 0, len(s.systems))
	for name, cb := range s.systems {
		targets = append(targets, target{name: name, cb: cb})
	}
	return targets
}

// invoke вызывает callback подсистемы, перехватывая и ошибку, и панику:
// одна сломанная подсистема не должна сорвать обход остальных.
func (s *Switch) invoke(fn func() error, name, op string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("subsystem callback panicked",
				zap.String("system", name), zap.String("op", op), zap.Any("panic", r))
			ok = false
		}
	}()

	if err := fn(); err != nil {
		s.logger.Error("subsystem callback failed",
			zap.String("system", name), zap.String("op", op), zap.Error(err))
		return false
	}
	return true
}

func (s *Switch) record(rec AuditRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ring = append(s.ring, rec)
	if len(s.ring) > auditRingCap {
		s.ring = s.ring[len(s.ring)-auditRingCap:]
	}
}

func (s *Switch) emit(e Event) {
	s.mu.RLock()
	listeners := make([]func(Event), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, fn := range listeners {
		go fn(e)
	}
}
