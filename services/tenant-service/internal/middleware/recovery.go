package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"TradeDeskPlatform/pkg/errors"
	"TradeDeskPlatform/pkg/logger"
)

// Middleware обертка над http.Handler
type Middleware func(http.Handler) http.Handler

// Chain применяет middleware так, что первая в списке оказывается внешней
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Recovery превращает панику обработчика в ответ 500
func Recovery(log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error("Panic recovered in HTTP handler",
						logger.CtxField(r.Context()),
						logger.Any("panic", rec),
						logger.String("stack_trace", string(debug.Stack())),
						logger.String("method", r.Method),
						logger.String("path", r.URL.Path),
					)
					errors.WriteJSON(w, r, errors.New(errors.ErrInternal, fmt.Sprintf("panic: %v", rec)))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
