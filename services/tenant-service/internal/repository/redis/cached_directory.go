package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"TradeDeskPlatform/pkg/logger"
	"TradeDeskPlatform/services/tenant-service/internal/domain"
	"TradeDeskPlatform/services/tenant-service/internal/repository"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "tenant:slug:"

// CachedDirectory кэширует GetBySlug в Redis поверх реестра тенантов.
// Отрицательные результаты не кэшируются: только что созданный тенант
// должен резолвиться сразу.
type CachedDirectory struct {
	repository.TenantDirectory
	client redis.UniversalClient
	ttl    time.Duration
	logger logger.Logger
}

// NewCachedDirectory оборачивает реестр кэшем
func NewCachedDirectory(next repository.TenantDirectory, client redis.UniversalClient, ttl time.Duration, log logger.Logger) *CachedDirectory {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedDirectory{TenantDirectory: next, client: client, ttl: ttl, logger: log}
}

var (
	_ repository.TenantDirectory  = (*CachedDirectory)(nil)
	_ repository.CacheInvalidator = (*CachedDirectory)(nil)
)

func cacheKey(slug string) string {
	return keyPrefix + slug
}

// GetBySlug читает из кэша, при промахе идет в реестр.
// Ошибки Redis не прерывают запрос.
func (c *CachedDirectory) GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	data, err := c.client.Get(ctx, cacheKey(slug)).Bytes()
	switch {
	case err == nil:
		var tenant domain.Tenant
		if jsonErr := json.Unmarshal(data, &tenant); jsonErr == nil {
			return &tenant, nil
		}
		c.logger.Warn("Corrupt tenant cache entry", logger.String("tenant_slug", slug))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("Tenant cache read failed", logger.String("tenant_slug", slug), logger.Error(err))
	}

	tenant, err := c.TenantDirectory.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(tenant); err == nil {
		if err := c.client.Set(ctx, cacheKey(slug), data, c.ttl).Err(); err != nil {
			c.logger.Warn("Tenant cache write failed", logger.String("tenant_slug", slug), logger.Error(err))
		}
	}
	return tenant, nil
}

// UpdateSettings обновляет запись и сбрасывает кэш
func (c *CachedDirectory) UpdateSettings(ctx context.Context, id string, s domain.Settings) (*domain.Tenant, error) {
	tenant, err := c.TenantDirectory.UpdateSettings(ctx, id, s)
	if err != nil {
		return nil, err
	}
	if err := c.Invalidate(ctx, tenant.Slug); err != nil {
		c.logger.Warn("Tenant cache invalidation failed", logger.String("tenant_slug", tenant.Slug), logger.Error(err))
	}
	return tenant, nil
}

// Invalidate удаляет запись тенанта из кэша
func (c *CachedDirectory) Invalidate(ctx context.Context, slug string) error {
	if err := c.client.Del(ctx, cacheKey(slug)).Err(); err != nil {
		return fmt.Errorf("invalidate tenant cache: %w", err)
	}
	return nil
}
