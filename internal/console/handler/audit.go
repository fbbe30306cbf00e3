package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/xela07ax/guardplane/internal/audit"
	"github.com/xela07ax/guardplane/internal/console/service"
	"github.com/xela07ax/guardplane/internal/infra/auth"
)

type AuditHandler struct {
	service *service.ControlService
}

func NewAuditHandler(s *service.ControlService) *AuditHandler {
	return &AuditHandler{service: s}
}

// GetLogs возвращает записи аудита с фильтрацией, новые первыми
// GET /v1/audit?user_id=...&category=...&severity=...&from=...&to=...&limit=...&offset=...
func (h *AuditHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := audit.Filter{
		UserID:   q.Get("user_id"),
		Category: audit.Category(q.Get("category")),
		Severity: audit.Severity(q.Get("severity")),
	}
	if v := q.Get("from"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			f.Start = ts
		}
	}
	if v := q.Get("to"); v != "" {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			f.End = ts
		}
	}
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	f.Offset, _ = strconv.Atoi(q.Get("offset"))

	logs, err := h.service.FetchAuditLog(r.Context(), f)
	if err != nil {
		http.Error(w, "Failed to fetch audit logs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, logs)
}

type cleanupRequest struct {
	RetentionDays int `json:"retention_days"`
}

// Cleanup запускает retention-чистку вручную (critical не трогается)
// POST /v1/audit/cleanup
func (h *AuditHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	deleted, err := h.service.CleanupAuditLog(r.Context(), auth.UserID(r.Context()), req.RetentionDays)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"deleted": deleted})
}
