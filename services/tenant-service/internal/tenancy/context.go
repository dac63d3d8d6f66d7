package tenancy

import (
	"context"

	"TradeDeskPlatform/services/tenant-service/internal/domain"
)

type executorKey struct{}

type tenantKey struct{}

// WithExecutor кладет исполнитель в контекст запроса
func WithExecutor(ctx context.Context, e *Executor) context.Context {
	return context.WithValue(ctx, executorKey{}, e)
}

// FromContext достает исполнитель из контекста
func FromContext(ctx context.Context) (*Executor, bool) {
	e, ok := ctx.Value(executorKey{}).(*Executor)
	return e, ok && e != nil
}

// WithTenant кладет разрешенный тенант в контекст запроса
func WithTenant(ctx context.Context, tc *domain.TenantContext) context.Context {
	return context.WithValue(ctx, tenantKey{}, tc)
}

// TenantFromContext достает тенант, положенный middleware
func TenantFromContext(ctx context.Context) (*domain.TenantContext, bool) {
	tc, ok := ctx.Value(tenantKey{}).(*domain.TenantContext)
	return tc, ok && tc != nil
}

// MustTenant как TenantFromContext, но возвращает ErrTenantRequired
func MustTenant(ctx context.Context) (*domain.TenantContext, error) {
	if tc, ok := TenantFromContext(ctx); ok {
		return tc, nil
	}
	return nil, domain.ErrTenantRequired
}
