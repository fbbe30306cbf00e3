package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/guardplane/internal/console/service"
	"github.com/xela07ax/guardplane/internal/domain"
	"github.com/xela07ax/guardplane/internal/infra/auth"
)

type ApprovalHandler struct {
	service *service.ControlService
}

func NewApprovalHandler(s *service.ControlService) *ApprovalHandler {
	return &ApprovalHandler{service: s}
}

// List — живая очередь PENDING (просроченные уже отфильтрованы)
// GET /v1/approvals
func (h *ApprovalHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.service.PendingApprovals())
}

// History — история решений из durable store
// GET /v1/approvals/history?status=APPROVED
func (h *ApprovalHandler) History(w http.ResponseWriter, r *http.Request) {
	status := domain.ApprovalStatus(r.URL.Query().Get("status"))

	list, err := h.service.ApprovalHistory(r.Context(), status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, list)
}

func (h *ApprovalHandler) GetDetails(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	approval, err := h.service.GetApproval(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrApprovalNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, approval)
}

type DecideRequest struct {
	Approved bool   `json:"approved"`
	Comment  string `json:"comment"`
}

// Decide фиксирует решение. Повторное решение или просроченная заявка — 409.
// POST /v1/approvals/{id}/decide
func (h *ApprovalHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req DecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	reviewerID := auth.UserID(r.Context())
	if reviewerID == "" {
		http.Error(w, "reviewer_id is required", http.StatusBadRequest)
		return
	}

	app, err := h.service.DecideApproval(r.Context(), id, req.Approved, reviewerID, req.Comment)
	if err != nil {
		if errors.Is(err, domain.ErrApprovalNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, app)
}
