package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/guardplane/internal/console/service"
	"github.com/xela07ax/guardplane/internal/infra/auth"
	"github.com/xela07ax/guardplane/internal/killswitch"
)

type KillSwitchHandler struct {
	service *service.ControlService
}

func NewKillSwitchHandler(s *service.ControlService) *KillSwitchHandler {
	return &KillSwitchHandler{service: s}
}

type killRequest struct {
	Reason string `json:"reason"`
}

func (h *KillSwitchHandler) decodeReason(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req killRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reason == "" {
		http.Error(w, "reason is required", http.StatusBadRequest)
		return "", false
	}
	return req.Reason, true
}

// KillAll — глобальный аварийный стоп
// POST /v1/killswitch/kill
func (h *KillSwitchHandler) KillAll(w http.ResponseWriter, r *http.Request) {
	reason, ok := h.decodeReason(w, r)
	if !ok {
		return
	}

	allSuccess := h.service.KillAll(auth.UserID(r.Context()), reason)
	writeJSON(w, map[string]interface{}{"global_killed": true, "all_success": allSuccess})
}

// POST /v1/killswitch/resume
func (h *KillSwitchHandler) ResumeAll(w http.ResponseWriter, r *http.Request) {
	reason, ok := h.decodeReason(w, r)
	if !ok {
		return
	}

	allSuccess := h.service.ResumeAll(auth.UserID(r.Context()), reason)
	writeJSON(w, map[string]interface{}{"global_killed": false, "all_success": allSuccess})
}

// POST /v1/killswitch/systems/{name}/kill
func (h *KillSwitchHandler) KillSystem(w http.ResponseWriter, r *http.Request) {
	reason, ok := h.decodeReason(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")

	success, err := h.service.KillSystem(auth.UserID(r.Context()), name, reason)
	if err != nil {
		if errors.Is(err, killswitch.ErrNotRegistered) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"system": name, "killed": true, "success": success})
}

// POST /v1/killswitch/systems/{name}/resume
// Возвращает resumed=false без ошибки, пока действует глобальный стоп.
func (h *KillSwitchHandler) ResumeSystem(w http.ResponseWriter, r *http.Request) {
	reason, ok := h.decodeReason(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")

	success, err := h.service.ResumeSystem(auth.UserID(r.Context()), name, reason)
	if err != nil {
		if errors.Is(err, killswitch.ErrNotRegistered) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"system": name, "resumed": success})
}

// GET /v1/killswitch/status
func (h *KillSwitchHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.service.KillSwitchStatus())
}

// GET /v1/killswitch/trail?limit=100
func (h *KillSwitchHandler) Trail(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, h.service.KillSwitchTrail(limit))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
