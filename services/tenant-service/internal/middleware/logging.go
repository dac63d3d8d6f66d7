package middleware

import (
	"net/http"
	"time"

	"TradeDeskPlatform/pkg/logger"

	"github.com/google/uuid"
)

// TraceHeader заголовок с идентификатором запроса
const TraceHeader = "X-Trace-ID"

// Logging кладет trace_id в контекст и логирует завершение запроса
func Logging(log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			traceID := r.Header.Get(TraceHeader)
			if traceID == "" {
				traceID = uuid.NewString()
			}
			r = r.WithContext(logger.WithTraceID(r.Context(), traceID))
			w.Header().Set(TraceHeader, traceID)

			start := time.Now()
			wrapped := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			fields := []logger.Field{
				logger.String("trace_id", traceID),
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.String("host", r.Host),
				logger.Int("status_code", wrapped.status),
				logger.Duration("duration", time.Since(start)),
			}
			switch {
			case wrapped.status >= 500:
				log.Error("Request failed", fields...)
			case wrapped.status >= 400:
				log.Warn("Request rejected", fields...)
			default:
				log.Info("Request completed", fields...)
			}
		})
	}
}

// statusRecorder запоминает код ответа
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
