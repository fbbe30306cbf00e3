package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xela07ax/guardplane/internal/audit"
	"github.com/xela07ax/guardplane/internal/domain"
	"github.com/xela07ax/guardplane/internal/infra/auth"
	"github.com/xela07ax/guardplane/internal/killswitch"
	"github.com/xela07ax/guardplane/internal/rbac"
)

// ApprovalHistoryProvider — чтение заявок из durable store.
type ApprovalHistoryProvider interface {
	FindApprovals(ctx context.Context, status domain.ApprovalStatus) ([]*domain.ApprovalRequest, error)
	GetApprovalByID(ctx context.Context, id string) (*domain.ApprovalRequest, error)
}

// ControlService — операторские операции control plane. Каждое привилегированное
// действие человека безусловно аудируется (category=admin).
type ControlService struct {
	*auth.BaseValidator
	ks      *killswitch.Switch
	reg     *rbac.Registry
	ledger  *audit.Ledger
	history ApprovalHistoryProvider // может быть nil, если Postgres-очередь выключена
	logger  *zap.Logger
}

func NewControlService(
	validator *auth.BaseValidator,
	ks *killswitch.Switch,
	reg *rbac.Registry,
	ledger *audit.Ledger,
	history ApprovalHistoryProvider,
	logger *zap.Logger,
) *ControlService {
	return &ControlService{
		BaseValidator: validator,
		ks:            ks,
		reg:           reg,
		ledger:        ledger,
		history:       history,
		logger:        logger.Named("control-service"),
	}
}

func (s *ControlService) auditAdmin(action, operatorID, target string, success bool, details map[string]interface{}) {
	s.ledger.Log(audit.Entry{
		Category:   audit.CategoryAdmin,
		Severity:   audit.SeverityCritical, // действия рубильника — форензик-след
		Action:     action,
		UserID:     operatorID,
		TargetID:   target,
		TargetType: "subsystem",
		Details:    details,
		Success:    success,
	})
}

// KillAll — глобальный аварийный стоп от имени оператора.
func (s *ControlService) KillAll(operatorID, reason string) bool {
	ok := s.ks.KillAll(reason, operatorID)
	s.auditAdmin("killswitch.kill_all", operatorID, "*", ok,
		map[string]interface{}{"reason": reason})
	return ok
}

func (s *ControlService) ResumeAll(operatorID, reason string) bool {
	ok := s.ks.ResumeAll(reason, operatorID)
	s.auditAdmin("killswitch.resume_all", operatorID, "*", ok,
		map[string]interface{}{"reason": reason})
	return ok
}

func (s *ControlService) KillSystem(operatorID, name, reason string) (bool, error) {
	ok, err := s.ks.KillSystem(name, reason, operatorID)
	s.auditAdmin("killswitch.kill_system", operatorID, name, ok && err == nil,
		map[string]interface{}{"reason": reason})
	return ok, err
}

func (s *ControlService) ResumeSystem(operatorID, name, reason string) (bool, error) {
	ok, err := s.ks.ResumeSystem(name, reason, operatorID)
	s.auditAdmin("killswitch.resume_system", operatorID, name, ok && err == nil,
		map[string]interface{}{"reason": reason})
	return ok, err
}

func (s *ControlService) KillSwitchStatus() killswitch.Status {
	return s.ks.GetStatus()
}

func (s *ControlService) KillSwitchTrail(limit int) []killswitch.AuditRecord {
	return s.ks.AuditTrail(limit)
}

// PendingApprovals — живая очередь из реестра (in-memory источник правды).
func (s *ControlService) PendingApprovals() []*domain.ApprovalRequest {
	return s.reg.PendingApprovals()
}

func (s *ControlService) GetApproval(ctx context.Context, id string) (*domain.ApprovalRequest, error) {
	app, err := s.reg.GetApproval(id)
	if err == nil {
		return app, nil
	}
	if !errors.Is(err, domain.ErrApprovalNotFound) || s.history == nil {
		return nil, err
	}
	// Очередь в памяти пуста после рестарта — заявка могла остаться
	// только в write-through таблице
	return s.history.GetApprovalByID(ctx, id)
}

// ApprovalHistory — история решений из Postgres (переживает рестарт).
func (s *ControlService) ApprovalHistory(ctx context.Context, status domain.ApprovalStatus) ([]*domain.ApprovalRequest, error) {
	if s.history == nil {
		return []*domain.ApprovalRequest{}, nil
	}
	list, err := s.history.FindApprovals(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("control: approval history: %w", err)
	}
	return list, nil
}

// DecideApproval фиксирует решение оператора. Исполнение одобренного действия
// остается за подсистемой-инициатором: она перепроверит статус и выполнит сама.
func (s *ControlService) DecideApproval(ctx context.Context, id string, approved bool, reviewerID, comment string) (*domain.ApprovalRequest, error) {
	app, err := s.reg.ProcessApproval(ctx, id, approved, reviewerID, comment)

	s.ledger.Log(audit.Entry{
		Category:   audit.CategoryAdmin,
		Severity:   audit.SeverityInfo,
		Action:     "approval.decide",
		UserID:     reviewerID,
		TargetID:   id,
		TargetType: "approval",
		Details:    map[string]interface{}{"approved": approved, "comment": comment},
		Success:    err == nil,
	})
	return app, err
}

// FetchAuditLog читает durable store с фильтрацией.
func (s *ControlService) FetchAuditLog(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	logs, err := s.ledger.Query(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("control: failed to fetch audit log: %w", err)
	}
	return logs, nil
}

// CleanupAuditLog запускает retention-чистку вручную.
func (s *ControlService) CleanupAuditLog(ctx context.Context, operatorID string, retentionDays int) (int64, error) {
	n, err := s.ledger.Cleanup(ctx, retentionDays)
	s.ledger.Log(audit.Entry{
		Category: audit.CategoryAdmin,
		Severity: audit.SeverityInfo,
		Action:   "audit.cleanup",
		UserID:   operatorID,
		Details:  map[string]interface{}{"retention_days": retentionDays, "deleted": n},
		Success:  err == nil,
	})
	return n, err
}

// RBACStatus — снимок прав и счетчиков всех акторов.
func (s *ControlService) RBACStatus() map[string]rbac.ActorStatus {
	return s.reg.Status()
}

// CheckAction — dry-run проверка решения RBAC (без списания квоты).
func (s *ControlService) CheckAction(actor, action string, spend int64) rbac.Decision {
	return s.reg.CanPerformAction(actor, action, spend)
}
