package guard

/*
Plane — слоеный шлюз перед любым привилегированным или автономным действием:

	Kill Switch (самая дешевая проверка, in-memory)
	  -> RBAC (уровни прав + потолки частоты/трат)
	    -> выполнение действия
	      -> RecordAction (списание квоты) + запись в Audit Ledger

Отказ любого слоя — типизированный refusal, который автономная подсистема
обязана обработать мягко (лог + skip), а не падать. Сбои ЗАПИСИ (аудит,
лимитер) изолируются и никогда не валят само действие.
*/

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/guardplane/internal/audit"
	"github.com/xela07ax/guardplane/internal/domain"
	"github.com/xela07ax/guardplane/internal/killswitch"
	"github.com/xela07ax/guardplane/internal/rbac"
)

// Типизированные отказы шлюза
var (
	ErrBlocked          = errors.New("guard: halted by kill switch")
	ErrDenied           = errors.New("guard: action not authorized")
	ErrApprovalRequired = errors.New("guard: action requires manual approval")
	ErrRateLimited      = errors.New("guard: hourly action ceiling reached")
	ErrSpendLimited     = errors.New("guard: daily spend ceiling reached")
)

type Plane struct {
	ks      *killswitch.Switch
	reg     *rbac.Registry
	ledger  *audit.Ledger
	metrics *Metrics
	logger  *zap.Logger
}

func NewPlane(ks *killswitch.Switch, reg *rbac.Registry, ledger *audit.Ledger, metrics *Metrics, logger *zap.Logger) *Plane {
	p := &Plane{
		ks:      ks,
		reg:     reg,
		ledger:  ledger,
		metrics: metrics,
		logger:  logger.With(zap.String("mod", "guard")),
	}

	// Метрика глобального стопа обновляется по событиям рубильника
	ks.Subscribe(func(e killswitch.Event) {
		switch e.Type {
		case killswitch.EventKilled:
			metrics.GlobalKillActive.Set(1)
		case killswitch.EventResumed:
			metrics.GlobalKillActive.Set(0)
		}
	})

	return p
}

// Authorize прогоняет проверки без выполнения и без списания квоты.
func (p *Plane) Authorize(system, action string, spend int64) error {
	// 1. Kill Switch — всегда свежая проверка, никакого кэша
	if !p.ks.IsOperationAllowed(system) {
		return ErrBlocked
	}

	// 2. RBAC
	d := p.reg.CanPerformAction(system, action, spend)
	if d.RequiresApproval {
		return ErrApprovalRequired
	}
	if !d.Allowed {
		switch d.Reason {
		case rbac.ReasonRateLimited:
			return ErrRateLimited
		case rbac.ReasonSpendLimited:
			return ErrSpendLimited
		default:
			return fmt.Errorf("%w: %s", ErrDenied, d.Reason)
		}
	}
	return nil
}

// Run — полный проход шлюза: проверки, выполнение op, списание квоты и аудит.
// Квота списывается только после успешного выполнения.
func (p *Plane) Run(ctx context.Context, system, action string, spend int64, details map[string]interface{}, op func(context.Context) error) error {
	start := time.Now()
	outcome := "allowed"
	defer func() {
		p.metrics.GateDecisions.WithLabelValues(system, outcome).Inc()
		p.metrics.GateDuration.WithLabelValues(system, outcome).Observe(time.Since(start).Seconds())
	}()

	if err := p.Authorize(system, action, spend); err != nil {
		outcome = refusalOutcome(err)
		p.ledger.Autonomous(system, action, false, err.Error(), details)
		p.logger.Info("action refused",
			zap.String("system", system),
			zap.String("action", action),
			zap.String("outcome", outcome))
		return err
	}

	if execErr := op(ctx); execErr != nil {
		outcome = "failed"
		p.ledger.Autonomous(system, action, false, execErr.Error(), details)
		return execErr
	}

	if err := p.reg.RecordAction(system, action, spend); err != nil {
		// Сбой учета не отменяет уже выполненное действие
		p.logger.Error("quota record failed",
			zap.String("system", system), zap.Error(err))
	}
	p.ledger.Autonomous(system, action, true, "", details)
	return nil
}

// Report фиксирует результат действия, которое подсистема выполнила сама
// после успешного Authorize: списание квоты при успехе и запись в журнал.
func (p *Plane) Report(system, action string, spend int64, success bool, errMsg string, details map[string]interface{}) {
	if success {
		if err := p.reg.RecordAction(system, action, spend); err != nil {
			p.logger.Error("quota record failed",
				zap.String("system", system), zap.Error(err))
		}
	}
	p.ledger.Autonomous(system, action, success, errMsg, details)
}

// RequestApproval ставит действие в очередь ручного подтверждения после
// отказа ErrApprovalRequired. После APPROVED подсистема перепроверяет и
// исполняет сама — заявка не исполняет действие.
func (p *Plane) RequestApproval(ctx context.Context, system, action string, params map[string]interface{}) (*domain.ApprovalRequest, error) {
	return p.reg.RequestApproval(ctx, system, action, params)
}

func refusalOutcome(err error) string {
	switch {
	case errors.Is(err, ErrBlocked):
		return "blocked"
	case errors.Is(err, ErrApprovalRequired):
		return "approval_required"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrSpendLimited):
		return "spend_limited"
	default:
		return "denied"
	}
}
