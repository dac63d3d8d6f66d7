package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"TradeDeskPlatform/pkg/errors"
	"TradeDeskPlatform/pkg/logger"
	"TradeDeskPlatform/pkg/ratelimit"
)

// RateLimit ограничивает число запросов с одного IP. При недоступности
// Redis запрос пропускается.
func RateLimit(limiter ratelimit.RateLimiter, scope string, limit int, window time.Duration, log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := scope + ":ip:" + ClientIP(r)

			exceeded, err := limiter.CheckRateLimit(r.Context(), key, limit, window)
			if err != nil {
				log.Error("Rate limiter error, allowing request", logger.CtxField(r.Context()), logger.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if exceeded {
				log.Warn("Rate limit exceeded",
					logger.CtxField(r.Context()),
					logger.String("key", key),
					logger.Int("limit", limit),
				)
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				errors.WriteJSON(w, r, errors.New(errors.ErrTooManyRequests, "rate limit exceeded"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP адрес клиента: первый адрес X-Forwarded-For, затем X-Real-IP, затем RemoteAddr
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
