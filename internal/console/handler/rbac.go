package handler

import (
	"encoding/json"
	"net/http"

	"github.com/xela07ax/guardplane/internal/console/service"
)

type RBACHandler struct {
	service *service.ControlService
}

func NewRBACHandler(s *service.ControlService) *RBACHandler {
	return &RBACHandler{service: s}
}

// Status — конфигурация и счетчики всех акторов
// GET /v1/rbac/status
func (h *RBACHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.service.RBACStatus())
}

type checkRequest struct {
	Actor  string `json:"actor"`
	Action string `json:"action"`
	Spend  int64  `json:"spend"`
}

// Check — dry-run решения RBAC, квота не списывается
// POST /v1/rbac/check
func (h *RBACHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Actor == "" || req.Action == "" {
		http.Error(w, "actor and action are required", http.StatusBadRequest)
		return
	}

	writeJSON(w, h.service.CheckAction(req.Actor, req.Action, req.Spend))
}
