package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xela07ax/guardplane/internal/guard"
)

// GateHandler — HTTP-вход шлюза для удаленных автономных подсистем:
// спросить разрешение перед действием и отчитаться после.
type GateHandler struct {
	plane *guard.Plane
}

func NewGateHandler(plane *guard.Plane) *GateHandler {
	return &GateHandler{plane: plane}
}

type gateRequest struct {
	System string `json:"system"`
	Action string `json:"action"`
	Spend  int64  `json:"spend"`
}

type gateReport struct {
	gateRequest
	Success bool                   `json:"success"`
	Error   string                 `json:"error,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Authorize — POST /v1/gate/authorize. Прогоняет проверки без списания квоты.
// Отказ — это не ошибка HTTP: подсистема обязана обработать его мягко.
func (h *GateHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	var req gateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.System == "" || req.Action == "" {
		http.Error(w, "system and action are required", http.StatusBadRequest)
		return
	}

	if err := h.plane.Authorize(req.System, req.Action, req.Spend); err != nil {
		writeJSON(w, map[string]interface{}{
			"allowed":           false,
			"reason":            gateReason(err),
			"requires_approval": errors.Is(err, guard.ErrApprovalRequired),
		})
		return
	}

	writeJSON(w, map[string]interface{}{"allowed": true})
}

// Report — POST /v1/gate/report. Итог выполненного действия: квота и аудит.
func (h *GateHandler) Report(w http.ResponseWriter, r *http.Request) {
	var req gateReport
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.System == "" || req.Action == "" {
		http.Error(w, "system and action are required", http.StatusBadRequest)
		return
	}

	h.plane.Report(req.System, req.Action, req.Spend, req.Success, req.Error, req.Details)
	w.WriteHeader(http.StatusNoContent)
}

type approvalRequest struct {
	System string                 `json:"system"`
	Action string                 `json:"action"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// RequestApproval — POST /v1/gate/approvals. Подсистема ставит действие в
// очередь HITL после исхода approval_required.
func (h *GateHandler) RequestApproval(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.System == "" || req.Action == "" {
		http.Error(w, "system and action are required", http.StatusBadRequest)
		return
	}

	app, err := h.plane.RequestApproval(r.Context(), req.System, req.Action, req.Params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(app)
}

func gateReason(err error) string {
	switch {
	case errors.Is(err, guard.ErrBlocked):
		return "blocked"
	case errors.Is(err, guard.ErrApprovalRequired):
		return "approval_required"
	case errors.Is(err, guard.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, guard.ErrSpendLimited):
		return "spend_limited"
	default:
		return "denied"
	}
}
