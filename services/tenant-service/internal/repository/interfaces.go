package repository

import (
	"context"
	"database/sql"

	"TradeDeskPlatform/services/tenant-service/internal/domain"
)

// Querier общий интерфейс *sql.DB, *sql.Conn и *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TenantDirectory реестр тенантов
type TenantDirectory interface {
	// IsSlugAvailable носит рекомендательный характер: уникальность
	// гарантирует только первичный ключ slug_claims при вставке
	IsSlugAvailable(ctx context.Context, slug string) (bool, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error)
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
	GetByUserID(ctx context.Context, userID string) (*domain.Tenant, error)
	UpdateSettings(ctx context.Context, id string, settings domain.Settings) (*domain.Tenant, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Tenant, error)
	CountByPlan(ctx context.Context) ([]domain.PlanCount, error)

	// Insert и Delete выполняются в транзакции вызывающей стороны
	Insert(ctx context.Context, q Querier, tenant *domain.Tenant) error
	Delete(ctx context.Context, q Querier, id string) error
}

// CacheInvalidator сбрасывает закэшированную запись тенанта по slug
type CacheInvalidator interface {
	Invalidate(ctx context.Context, slug string) error
}
