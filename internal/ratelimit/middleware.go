package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"
)

// KeyFunc извлекает идентификатор клиента из запроса.
type KeyFunc func(*http.Request) string

// ByRealIP — ключ по адресу клиента. Рассчитан на chi middleware.RealIP
// выше по цепочке (иначе за прокси все сложатся в один ключ).
func ByRealIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Middleware Интегрируем admission-проверку в HTTP-пайплайн консоли.
// Превышение лимита — стандартный 429 с Retry-After; fail-open внутри Check.
func (l *Limiter) Middleware(window time.Duration, max int, keyFn KeyFunc) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = ByRealIP
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := l.Check(r.Context(), keyFn(r), window, max)
			if !res.Allowed {
				retryAfter := int(time.Until(res.ResetAt).Seconds()) + 1

				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error":       "too_many_requests",
					"retry_after": retryAfter,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
