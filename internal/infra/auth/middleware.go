package auth

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/guardplane/internal/domain"
)

// TokenValidator — интерфейс, который реализует консольный auth-сервис
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

// Типизированные ключи контекста (избегаем коллизий)
type ctxKey string

const (
	CtxUserID ctxKey = "user_id"
	CtxScopes ctxKey = "user_scopes"
)

// UserID достает ID авторизованного оператора из контекста.
func UserID(ctx context.Context) string {
	if id, ok := ctx.Value(CtxUserID).(string); ok {
		return id
	}
	return ""
}

// Scopes достает права оператора из контекста.
func Scopes(ctx context.Context) map[string]bool {
	if s, ok := ctx.Value(CtxScopes).(map[string]bool); ok {
		return s
	}
	return nil
}

func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Прокидываем данные в контекст
			ctx := context.WithValue(r.Context(), CtxScopes, claims.Scopes)
			ctx = context.WithValue(ctx, CtxUserID, claims.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
