package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/taskflow-api/internal/events"
	"github.com/phrazzld/taskflow-api/internal/platform/logger"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends events to the queue as persistent messages and waits for
// the broker to confirm each one.
type Publisher struct {
	mu      sync.Mutex
	channel *amqp.Channel
	queue   string
	logger  *slog.Logger
}

var _ events.Publisher = (*Publisher)(nil)

// NewPublisher opens a confirm-mode channel on conn and declares the queue.
func NewPublisher(conn *amqp.Connection, queue string, log *slog.Logger) (*Publisher, error) {
	if log == nil {
		log = slog.Default()
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	if err := declareQueues(ch, queue); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return &Publisher{
		channel: ch,
		queue:   queue,
		logger:  log.With(slog.String("component", "rabbitmq_publisher"), slog.String("queue", queue)),
	}, nil
}

// Publish implements events.Publisher. It returns only after the broker has
// confirmed the message.
func (p *Publisher) Publish(ctx context.Context, event *events.Event) error {
	body, err := event.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	confirm, err := p.channel.PublishWithDeferredConfirmWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID.String(),
		Type:         string(event.Type),
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.ID, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed waiting for confirm of event %s: %w", event.ID, err)
	}
	if !acked {
		return fmt.Errorf("broker rejected event %s", event.ID)
	}

	logger.FromContextOrDefault(ctx, p.logger).Debug("event published",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.Type)))
	return nil
}

// Close closes the publishing channel.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channel.Close()
}
