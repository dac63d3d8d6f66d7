package middleware

import (
	"net/http"

	"TradeDeskPlatform/pkg/errors"
	"TradeDeskPlatform/pkg/logger"
	"TradeDeskPlatform/services/tenant-service/internal/resolver"
	"TradeDeskPlatform/services/tenant-service/internal/tenancy"
)

// ResolveTenant определяет тенанта запроса и кладет в контекст его
// TenantContext и исполнитель. routeParam имя параметра маршрута со slug,
// пустая строка для маршрутов без него.
func ResolveTenant(res *resolver.Resolver, exec *tenancy.Executor, routeParam string, log logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := resolver.FromHTTP(r, routeParam, res.Header())

			tc, source, err := res.Resolve(r.Context(), req)
			if err != nil {
				if _, coded := errors.As(err); !coded {
					log.Error("Tenant resolution failed", logger.CtxField(r.Context()), logger.Error(err))
				}
				errors.WriteJSON(w, r, err)
				return
			}

			ctx := tenancy.WithTenant(r.Context(), tc)
			ctx = tenancy.WithExecutor(ctx, exec)

			log.Debug("Tenant resolved",
				logger.CtxField(ctx),
				logger.String("tenant_slug", tc.Slug),
				logger.String("source", string(source)),
			)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireWritable отклоняет изменяющие запросы тенантов с отмененной
// или приостановленной подпиской. Чтение разрешено.
func RequireWritable() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isMutating(r.Method) {
				tc, err := tenancy.MustTenant(r.Context())
				if err != nil {
					errors.WriteJSON(w, r, err)
					return
				}
				if err := resolver.RequireWritable(tc); err != nil {
					errors.WriteJSON(w, r, err)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}
