package domain

import (
	"errors"
	"time"
)

// Статусы State Machine очереди подтверждений
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// ApprovalTTL — срок жизни заявки. Просроченный PENDING трактуется как REJECTED.
const ApprovalTTL = 24 * time.Hour

var (
	ErrInvalidTransition = errors.New("invalid approval status transition")
	ErrAlreadyProcessed  = errors.New("approval request already processed")
	ErrApprovalExpired   = errors.New("approval request expired")
	ErrApprovalNotFound  = errors.New("approval request not found")
)

// ApprovalRequest — заявка на ручное подтверждение действия (HITL).
// Создается, когда RBAC возвращает requires_approval. Никогда не удаляется —
// очередь остается как часть аудиторского следа.
type ApprovalRequest struct {
	ID         string                 `json:"id"`
	SystemName string                 `json:"system_name"` // Кто просит (actor class)
	Action     string                 `json:"action"`      // Что хочет сделать
	Params     map[string]interface{} `json:"params"`      // С какими данными
	Status     ApprovalStatus         `json:"status"`

	ReviewerID *string `json:"reviewer_id,omitempty"`
	Comment    *string `json:"comment,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expired сообщает, вышел ли срок заявки на момент now.
func (a *ApprovalRequest) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// EffectiveStatus возвращает статус с учетом срока жизни:
// просроченный PENDING наблюдается как REJECTED, сама запись не мутируется.
func (a *ApprovalRequest) EffectiveStatus(now time.Time) ApprovalStatus {
	if a.Status == ApprovalPending && a.Expired(now) {
		return ApprovalRejected
	}
	return a.Status
}

// CanTransitionTo проверяет правила конечного автомата
func (a *ApprovalRequest) CanTransitionTo(next ApprovalStatus, now time.Time) error {
	if a.Status != ApprovalPending {
		return ErrAlreadyProcessed
	}
	if a.Expired(now) {
		return ErrApprovalExpired
	}
	if next == ApprovalPending {
		return ErrInvalidTransition
	}
	return nil
}
