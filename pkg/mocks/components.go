package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"TradeDeskPlatform/pkg/health"
)

// MockRateLimiter имитирует ratelimit.RateLimiter
type MockRateLimiter struct {
	mock.Mock
}

func (m *MockRateLimiter) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

// MockHealthChecker имитирует health.HealthChecker
type MockHealthChecker struct {
	mock.Mock
}

func (m *MockHealthChecker) Check(ctx context.Context) *health.HealthStatus {
	args := m.Called(ctx)
	return args.Get(0).(*health.HealthStatus)
}
