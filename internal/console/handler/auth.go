package handler

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/xela07ax/guardplane/internal/audit"
	"github.com/xela07ax/guardplane/internal/console/service"
	"github.com/xela07ax/guardplane/internal/domain"
)

// AuthHandler выдает операторские токены. Каждая попытка логина — событие
// журнала (category=auth): неудачи оставляют след для разбора подбора пароля.
type AuthHandler struct {
	service *service.AuthService
	ledger  *audit.Ledger
}

func NewAuthHandler(s *service.AuthService, ledger *audit.Ledger) *AuthHandler {
	return &AuthHandler{service: s, ledger: ledger}
}

// Login — POST /auth/token
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		http.Error(w, "username and password are required", http.StatusBadRequest)
		return
	}

	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}

	resp, err := h.service.GenerateToken(r.Context(), req.Username, req.Password)
	h.ledger.Auth("console.login", req.Username, ip, r.UserAgent(), err == nil, nil)
	if err != nil {
		// не уточняем, что именно неверно (логин или пароль) для защиты от перебора
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, resp)
}
