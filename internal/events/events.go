// Package events publishes domain events to a RabbitMQ topic exchange.
//
// Events are notifications only. Nothing in the service consumes them, and a
// failed publish never fails the user action that produced it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sakif/lunchbox/internal/metrics"
)

// Event types, also used as routing keys.
const (
	UserSignedUp          = "user.signed_up"
	FriendRequestSent     = "friend_request.sent"
	FriendRequestAccepted = "friend_request.accepted"
	FriendRequestDeclined = "friend_request.declined"
	CommentPosted         = "comment.posted"
	ListDeleted           = "list.deleted"
	ImageOrphaned         = "image.orphaned"
)

// Envelope is the JSON body of every published message.
type Envelope struct {
	EventType  string         `json:"event_type"`
	OccurredAt time.Time      `json:"occurred_at"`
	ActorID    string         `json:"actor_id,omitempty"`
	Subject    string         `json:"subject,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
}

// Publisher sends an envelope under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, env Envelope) error
	Close() error
}

// NewPublisher connects to RabbitMQ and declares the exchange. When the URL is
// empty or the broker is unreachable it returns a noop publisher, so the
// service starts without a broker.
func NewPublisher(amqpURL, exchange string, logger *slog.Logger) Publisher {
	if amqpURL == "" {
		logger.Info("event publishing disabled", slog.String("reason", "empty amqp url"))
		return noopPublisher{logger: logger}
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		logger.Warn("event publishing disabled", slog.String("error", err.Error()))
		return noopPublisher{logger: logger}
	}

	ch, err := conn.Channel()
	if err != nil {
		logger.Warn("event publishing disabled", slog.String("error", err.Error()))
		_ = conn.Close()
		return noopPublisher{logger: logger}
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		logger.Warn("event publishing disabled", slog.String("error", err.Error()))
		_ = ch.Close()
		_ = conn.Close()
		return noopPublisher{logger: logger}
	}

	logger.Info("event publishing enabled", slog.String("exchange", exchange))
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: encoding %s: %w", routingKey, err)
	}

	return p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    env.OccurredAt,
		Type:         env.EventType,
		Body:         body,
	})
}

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct {
	logger *slog.Logger
}

func (p noopPublisher) Publish(_ context.Context, routingKey string, env Envelope) error {
	p.logger.Debug("event (noop)",
		slog.String("routing_key", routingKey),
		slog.String("actor", env.ActorID),
		slog.String("subject", env.Subject),
	)
	return nil
}

func (noopPublisher) Close() error { return nil }

// Emitter is what services hold. The zero value and a nil *Emitter both
// discard events, which keeps service tests free of broker setup.
type Emitter struct {
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewEmitter(p Publisher, logger *slog.Logger) *Emitter {
	return &Emitter{publisher: p, logger: logger, now: time.Now}
}

// Emit publishes one event. Failures are logged and counted.
func (e *Emitter) Emit(ctx context.Context, eventType, actorID, subject string, data map[string]any) {
	if e == nil || e.publisher == nil {
		return
	}

	env := Envelope{
		EventType:  eventType,
		OccurredAt: e.now().UTC(),
		ActorID:    actorID,
		Subject:    subject,
		Data:       data,
	}
	if err := e.publisher.Publish(ctx, eventType, env); err != nil {
		metrics.IncEventPublishError()
		if e.logger != nil {
			e.logger.Error("event publish failed",
				slog.String("event", eventType),
				slog.String("subject", subject),
				slog.String("error", err.Error()),
			)
		}
	}
}
