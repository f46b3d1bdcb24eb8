// Package notify publishes regulation release letters to RabbitMQ.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/City-of-Helsinki/hitas-sub002/internal/regulation"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Config names the broker and the exchange letters are published to.
type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// Publisher implements regulation.Notifier over an AMQP channel.
type Publisher struct {
	logger     *zap.Logger
	conn       *amqp.Connection
	channel    channel
	exchange   string
	routingKey string
	now        func() time.Time
}

// Dial connects to the broker and declares a durable topic exchange.
// If logger is nil, it will use a no-op logger to prevent panics.
func Dial(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("notify: broker url is required")
	}
	if cfg.RoutingKey == "" {
		return nil, errors.New("notify: routing key is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("notify: failed to dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("notify: failed to open a channel: %w", err)
	}
	if cfg.Exchange != "" {
		err = ch.ExchangeDeclare(
			cfg.Exchange,
			amqp.ExchangeTopic,
			true,  // durable
			false, // auto-delete
			false, // internal
			false, // no-wait
			nil,
		)
		if err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, fmt.Errorf("notify: failed to declare exchange %q: %w", cfg.Exchange, err)
		}
	}

	p := newPublisher(ch, cfg, logger)
	p.conn = conn
	p.logger.Info("connected to release letter broker",
		zap.String("op", "notify.Dial"),
		zap.String("exchange", cfg.Exchange),
	)
	return p, nil
}

func newPublisher(ch channel, cfg Config, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		logger:     logger,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		now:        time.Now,
	}
}

// PublishReleaseLetter implements regulation.Notifier.
func (p *Publisher) PublishReleaseLetter(ctx context.Context, letter regulation.ReleaseLetter) error {
	body, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("notify: failed to encode release letter: %w", err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.New().String(),
		Timestamp:    p.now().UTC(),
		Type:         "release_letter",
		Body:         body,
	}
	if err := p.channel.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, msg); err != nil {
		return fmt.Errorf("notify: failed to publish release letter for %s: %w", letter.HousingCompanyID, err)
	}

	p.logger.Debug("release letter published",
		zap.String("op", "notify.PublishReleaseLetter"),
		zap.String("housing_company_id", letter.HousingCompanyID),
		zap.String("message_id", msg.MessageId),
	)
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	var firstErr error
	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			firstErr = err
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ regulation.Notifier = (*Publisher)(nil)
