package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/smartpharmacy/smartpos-backend/pkg/logger"
)

type contextKey string

// CorrelationIDKey carries a correlation ID through context into events
const CorrelationIDKey contextKey = "correlation_id"

// Publisher publishes events to a topic exchange. A nil Publisher is
// safe to call and drops events, so services can run without a broker.
type Publisher struct {
	rabbit   *RabbitMQ
	exchange string
	source   string
	logger   *logger.Logger
}

// NewPublisher creates a publisher bound to an exchange
func NewPublisher(rabbit *RabbitMQ, exchange, source string, log *logger.Logger) (*Publisher, error) {
	if err := rabbit.DeclareExchange(exchange); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &Publisher{
		rabbit:   rabbit,
		exchange: exchange,
		source:   source,
		logger:   log,
	}, nil
}

// Publish sends an event with the event type as routing key
func (p *Publisher) Publish(ctx context.Context, eventType string, data interface{}) error {
	if p == nil {
		return nil
	}

	event, err := NewEvent(eventType, p.source, data)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	if correlationID, ok := ctx.Value(CorrelationIDKey).(string); ok {
		event.CorrelationID = correlationID
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.rabbit.Channel().PublishWithContext(
		ctx,
		p.exchange,
		eventType, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     event.ID,
			Timestamp:     event.Timestamp,
			Type:          event.Type,
			CorrelationId: event.CorrelationID,
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}

	p.logger.Debug().
		Str("event_type", eventType).
		Str("event_id", event.ID).
		Msg("Event published")

	return nil
}
