package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/smartpharmacy/smartpos-backend/pkg/config"
	"github.com/smartpharmacy/smartpos-backend/pkg/logger"
)

// RabbitMQ wraps the AMQP connection with reconnection support
type RabbitMQ struct {
	cfg     *config.RabbitMQConfig
	logger  *logger.Logger
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex
}

// New creates a new RabbitMQ connection
func New(cfg *config.RabbitMQConfig, log *logger.Logger) (*RabbitMQ, error) {
	r := &RabbitMQ{
		cfg:    cfg,
		logger: log,
	}

	if err := r.connect(); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *RabbitMQ) connect() error {
	conn, err := amqp.Dial(r.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.Qos(r.cfg.PrefetchCount, 0, false); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	r.mu.Lock()
	r.conn = conn
	r.channel = channel
	r.mu.Unlock()

	r.logger.Info().Msg("Connected to RabbitMQ")
	return nil
}

// Channel returns the current AMQP channel
func (r *RabbitMQ) Channel() *amqp.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.channel
}

// DeclareExchange declares a durable topic exchange
func (r *RabbitMQ) DeclareExchange(name string) error {
	return r.Channel().ExchangeDeclare(
		name,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// Reconnect attempts to re-establish the connection with backoff
func (r *RabbitMQ) Reconnect(ctx context.Context) error {
	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.cfg.ReconnectDelay):
		}

		if err := r.connect(); err != nil {
			r.logger.Warn().
				Int("attempt", attempt).
				Err(err).
				Msg("RabbitMQ reconnect failed")
			continue
		}
		return nil
	}
	return fmt.Errorf("failed to reconnect after %d attempts", r.cfg.MaxRetries)
}

// Health checks if the connection is alive
func (r *RabbitMQ) Health() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil || r.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection is closed")
	}
	return nil
}

// Close closes the channel and connection
func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to close RabbitMQ channel")
		}
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
