package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"TradeDeskPlatform/pkg/logger"
	"TradeDeskPlatform/services/tenant-service/internal/domain"
	"TradeDeskPlatform/services/tenant-service/internal/mocks"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*CachedDirectory, *mocks.MockTenantDirectory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	next := new(mocks.MockTenantDirectory)
	return NewCachedDirectory(next, client, time.Minute, logger.NewNop()), next, mr
}

func tenant() *domain.Tenant {
	return &domain.Tenant{
		ID:                 "id-1",
		Slug:               "acme",
		SchemaName:         "tenant_acme",
		SubscriptionTier:   domain.TierPro,
		SubscriptionStatus: domain.StatusActive,
		TrialEndsAt:        time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC),
	}
}

func TestGetBySlug_ReadThrough(t *testing.T) {
	cache, next, mr := setup(t)
	ctx := context.Background()

	next.On("GetBySlug", mock.Anything, "acme").Return(tenant(), nil).Once()

	first, err := cache.GetBySlug(ctx, "acme")
	require.NoError(t, err)
	second, err := cache.GetBySlug(ctx, "acme")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.SchemaName, second.SchemaName)
	assert.True(t, first.TrialEndsAt.Equal(second.TrialEndsAt))
	next.AssertNumberOfCalls(t, "GetBySlug", 1)

	assert.True(t, mr.Exists("tenant:slug:acme"))
	assert.Equal(t, time.Minute, mr.TTL("tenant:slug:acme"))
}

// TestGetBySlug_NotFoundIsNotCached отсутствие тенанта не кэшируется
func TestGetBySlug_NotFoundIsNotCached(t *testing.T) {
	cache, next, mr := setup(t)
	ctx := context.Background()

	next.On("GetBySlug", mock.Anything, "ghost").Return(nil, domain.ErrTenantNotFound).Twice()

	_, err := cache.GetBySlug(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
	_, err = cache.GetBySlug(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)

	assert.False(t, mr.Exists("tenant:slug:ghost"))
	next.AssertExpectations(t)
}

func TestGetBySlug_CorruptEntryFallsThrough(t *testing.T) {
	cache, next, mr := setup(t)
	require.NoError(t, mr.Set("tenant:slug:acme", "{not json"))

	next.On("GetBySlug", mock.Anything, "acme").Return(tenant(), nil).Once()

	got, err := cache.GetBySlug(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "tenant_acme", got.SchemaName)

	raw, _ := mr.Get("tenant:slug:acme")
	var cached domain.Tenant
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	assert.Equal(t, "id-1", cached.ID)
}

func TestGetBySlug_RedisDown(t *testing.T) {
	cache, next, mr := setup(t)
	mr.Close()

	next.On("GetBySlug", mock.Anything, "acme").Return(tenant(), nil)

	got, err := cache.GetBySlug(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Slug)
}

func TestUpdateSettings_Invalidates(t *testing.T) {
	cache, next, mr := setup(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("tenant:slug:acme", "{}"))

	status := domain.StatusPaused
	updated := tenant()
	updated.SubscriptionStatus = status
	next.On("UpdateSettings", mock.Anything, "id-1", domain.Settings{SubscriptionStatus: &status}).Return(updated, nil)

	got, err := cache.UpdateSettings(ctx, "id-1", domain.Settings{SubscriptionStatus: &status})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, got.SubscriptionStatus)
	assert.False(t, mr.Exists("tenant:slug:acme"))
}

func TestInvalidate(t *testing.T) {
	cache, _, mr := setup(t)
	require.NoError(t, mr.Set("tenant:slug:acme", "{}"))

	require.NoError(t, cache.Invalidate(context.Background(), "acme"))
	assert.False(t, mr.Exists("tenant:slug:acme"))

	// удаление отсутствующего ключа не ошибка
	assert.NoError(t, cache.Invalidate(context.Background(), "acme"))
}
