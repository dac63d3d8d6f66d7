package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"TradeDeskPlatform/services/tenant-service/internal/events"
)

// MockPublisher мок для events.Publisher
type MockPublisher struct {
	mock.Mock
}

var _ events.Publisher = (*MockPublisher)(nil)

func (m *MockPublisher) Publish(ctx context.Context, event events.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
