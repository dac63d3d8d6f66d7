package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"TradeDeskPlatform/pkg/logger"
	"TradeDeskPlatform/pkg/rabbitmq"
	"TradeDeskPlatform/services/tenant-service/internal/domain"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
)

// Типы событий жизненного цикла тенанта. Они же routing key.
const (
	TenantProvisioned = "tenant.provisioned"
	TenantDeleted     = "tenant.deleted"
)

// Event событие жизненного цикла тенанта
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	TenantID   string      `json:"tenant_id"`
	Slug       string      `json:"slug"`
	SchemaName string      `json:"schema_name"`
	Tier       domain.Tier `json:"tier,omitempty"`
	TradeType  string      `json:"trade_type,omitempty"`
	OccurredAt time.Time   `json:"occurred_at"`
}

// NewEvent строит событие по записи тенанта
func NewEvent(eventType string, t *domain.Tenant, now time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		TenantID:   t.ID,
		Slug:       t.Slug,
		SchemaName: t.SchemaName,
		Tier:       t.SubscriptionTier,
		TradeType:  string(t.TradeType),
		OccurredAt: now.UTC(),
	}
}

// Publisher публикует события тенантов
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// MessageProducer то, что нужно от rabbitmq.Producer
type MessageProducer interface {
	Publish(ctx context.Context, body []byte, options ...rabbitmq.PublishOption) error
}

// RabbitPublisher публикует события в topic exchange RabbitMQ
type RabbitPublisher struct {
	producer MessageProducer
	log      logger.Logger
}

// NewRabbitPublisher создает издателя поверх продюсера
func NewRabbitPublisher(producer MessageProducer, log logger.Logger) *RabbitPublisher {
	return &RabbitPublisher{producer: producer, log: log}
}

// Publish сериализует событие в JSON и ждет подтверждения брокера
func (p *RabbitPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	err = p.producer.Publish(ctx, body,
		rabbitmq.WithRoutingKey(event.Type),
		rabbitmq.WithType(event.Type),
		rabbitmq.WithMessageID(event.ID),
		rabbitmq.WithHeaders(amqp091.Table{
			"tenant_id": event.TenantID,
			"trace_id":  logger.TraceID(ctx),
		}),
	)
	if err != nil {
		return fmt.Errorf("publish %s event: %w", event.Type, err)
	}

	p.log.Debug("Tenant event published",
		logger.CtxField(ctx),
		logger.String("event_type", event.Type),
		logger.String("tenant_slug", event.Slug),
	)
	return nil
}

// NopPublisher используется, когда RabbitMQ отключен
type NopPublisher struct{}

// Publish ничего не делает
func (NopPublisher) Publish(context.Context, Event) error { return nil }
