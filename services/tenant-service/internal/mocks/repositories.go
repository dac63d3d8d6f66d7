package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"TradeDeskPlatform/services/tenant-service/internal/domain"
	"TradeDeskPlatform/services/tenant-service/internal/repository"
)

// MockTenantDirectory мок для repository.TenantDirectory
type MockTenantDirectory struct {
	mock.Mock
}

var _ repository.TenantDirectory = (*MockTenantDirectory)(nil)

func tenantOrNil(args mock.Arguments) (*domain.Tenant, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Tenant), args.Error(1)
}

func (m *MockTenantDirectory) IsSlugAvailable(ctx context.Context, slug string) (bool, error) {
	args := m.Called(ctx, slug)
	return args.Bool(0), args.Error(1)
}

func (m *MockTenantDirectory) GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	return tenantOrNil(m.Called(ctx, slug))
}

func (m *MockTenantDirectory) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	return tenantOrNil(m.Called(ctx, id))
}

func (m *MockTenantDirectory) GetByUserID(ctx context.Context, userID string) (*domain.Tenant, error) {
	return tenantOrNil(m.Called(ctx, userID))
}

func (m *MockTenantDirectory) UpdateSettings(ctx context.Context, id string, settings domain.Settings) (*domain.Tenant, error) {
	return tenantOrNil(m.Called(ctx, id, settings))
}

func (m *MockTenantDirectory) List(ctx context.Context, limit, offset int) ([]*domain.Tenant, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Tenant), args.Error(1)
}

func (m *MockTenantDirectory) CountByPlan(ctx context.Context) ([]domain.PlanCount, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.PlanCount), args.Error(1)
}

func (m *MockTenantDirectory) Insert(ctx context.Context, q repository.Querier, tenant *domain.Tenant) error {
	args := m.Called(ctx, q, tenant)
	return args.Error(0)
}

func (m *MockTenantDirectory) Delete(ctx context.Context, q repository.Querier, id string) error {
	args := m.Called(ctx, q, id)
	return args.Error(0)
}

// MockCacheInvalidator мок для repository.CacheInvalidator
type MockCacheInvalidator struct {
	mock.Mock
}

func (m *MockCacheInvalidator) Invalidate(ctx context.Context, slug string) error {
	args := m.Called(ctx, slug)
	return args.Error(0)
}
