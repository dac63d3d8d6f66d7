package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"TradeDeskPlatform/pkg/logger"
	"TradeDeskPlatform/pkg/rabbitmq"
	"TradeDeskPlatform/services/tenant-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureProducer struct {
	body []byte
	opts rabbitmq.PublishOptions
	err  error
}

func (c *captureProducer) Publish(ctx context.Context, body []byte, options ...rabbitmq.PublishOption) error {
	c.body = body
	for _, o := range options {
		o(&c.opts)
	}
	return c.err
}

func tenant() *domain.Tenant {
	return &domain.Tenant{
		ID:               "t-42",
		Slug:             "bright-sparks",
		SchemaName:       "tenant_bright_sparks",
		TradeType:        domain.TradeElectrician,
		SubscriptionTier: domain.TierTrial,
	}
}

func TestRabbitPublisher_Publish(t *testing.T) {
	producer := &captureProducer{}
	p := NewRabbitPublisher(producer, logger.NewNop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ctx := logger.WithTraceID(context.Background(), "trace-1")
	event := NewEvent(TenantProvisioned, tenant(), now)
	require.NoError(t, p.Publish(ctx, event))

	assert.Equal(t, TenantProvisioned, producer.opts.RoutingKey)
	assert.Equal(t, TenantProvisioned, producer.opts.Type)
	assert.Equal(t, event.ID, producer.opts.MessageID)
	assert.Equal(t, "trace-1", producer.opts.Headers["trace_id"])

	var decoded Event
	require.NoError(t, json.Unmarshal(producer.body, &decoded))
	assert.Equal(t, "bright-sparks", decoded.Slug)
	assert.Equal(t, "tenant_bright_sparks", decoded.SchemaName)
	assert.True(t, decoded.OccurredAt.Equal(now))
}

func TestRabbitPublisher_WrapsProducerError(t *testing.T) {
	brokerErr := errors.New("channel closed")
	p := NewRabbitPublisher(&captureProducer{err: brokerErr}, logger.NewNop())

	err := p.Publish(context.Background(), NewEvent(TenantDeleted, tenant(), time.Now()))
	assert.ErrorIs(t, err, brokerErr)
	assert.Contains(t, err.Error(), TenantDeleted)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
}
