package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/phrazzld/taskflow-api/internal/events"
	amqp "github.com/rabbitmq/amqp091-go"
)

// SubscriptionConfig configures a queue consumer.
type SubscriptionConfig struct {
	Queue       string
	ConsumerTag string
	Prefetch    int
	BatchSize   int

	// Block is how long Fetch waits for the first delivery of a batch.
	Block time.Duration
}

// Subscription consumes the event queue with manual acknowledgement.
type Subscription struct {
	channel    *amqp.Channel
	deliveries <-chan amqp.Delivery
	cfg        SubscriptionConfig
	logger     *slog.Logger

	mu       sync.Mutex
	inflight map[string]amqp.Delivery
	closed   bool
}

var _ events.Subscription = (*Subscription)(nil)

// NewSubscription opens a channel on conn, applies the prefetch limit and
// starts consuming the queue.
func NewSubscription(conn *amqp.Connection, cfg SubscriptionConfig, logger *slog.Logger) (*Subscription, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Prefetch < cfg.BatchSize {
		cfg.Prefetch = cfg.BatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}
	if err := declareQueues(ch, cfg.Queue); err != nil {
		_ = ch.Close()
		return nil, err
	}

	deliveries, err := ch.Consume(cfg.Queue, cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to consume queue %s: %w", cfg.Queue, err)
	}

	return &Subscription{
		channel:    ch,
		deliveries: deliveries,
		cfg:        cfg,
		logger: logger.With(
			slog.String("component", "rabbitmq_subscription"),
			slog.String("queue", cfg.Queue)),
		inflight: make(map[string]amqp.Delivery),
	}, nil
}

// Fetch implements events.Subscription. It waits up to Block for one
// delivery and then takes whatever else is already buffered, up to the
// batch size.
func (s *Subscription) Fetch(ctx context.Context) ([]events.Message, error) {
	if s.isClosed() {
		return nil, events.ErrSubscriptionClosed
	}

	var timeout <-chan time.Time
	if s.cfg.Block > 0 {
		timer := time.NewTimer(s.cfg.Block)
		defer timer.Stop()
		timeout = timer.C
	}

	var batch []events.Message
	select {
	case d, ok := <-s.deliveries:
		if !ok {
			return nil, fmt.Errorf("%w: delivery channel closed by broker", events.ErrSubscriptionClosed)
		}
		batch = append(batch, s.track(d))
	case <-timeout:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	for len(batch) < s.cfg.BatchSize {
		select {
		case d, ok := <-s.deliveries:
			if !ok {
				return batch, nil
			}
			batch = append(batch, s.track(d))
		default:
			return batch, nil
		}
	}
	return batch, nil
}

// Ack implements events.Subscription. Acknowledging a delivery that is not
// in flight is a no-op, because a second basic.ack for the same tag would
// close the channel.
func (s *Subscription) Ack(_ context.Context, msg events.Message) error {
	d, ok := s.take(msg.ID)
	if !ok {
		return nil
	}
	if err := d.Ack(false); err != nil {
		return fmt.Errorf("failed to ack delivery %s: %w", msg.ID, err)
	}
	return nil
}

// Retry implements events.Subscription by returning the delivery to the
// queue.
func (s *Subscription) Retry(_ context.Context, msg events.Message) error {
	d, ok := s.take(msg.ID)
	if !ok {
		return nil
	}
	if err := d.Nack(false, true); err != nil {
		return fmt.Errorf("failed to requeue delivery %s: %w", msg.ID, err)
	}
	return nil
}

// DeadLetter implements events.Subscription. The body is published to the
// dead-letter queue before the original delivery is acknowledged.
func (s *Subscription) DeadLetter(ctx context.Context, msg events.Message, reason string) error {
	err := s.channel.PublishWithContext(ctx, "", s.cfg.Queue+DeadLetterSuffix, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers: amqp.Table{
			"x-reason":     reason,
			"x-deliveries": msg.Deliveries,
		},
		Body: msg.Body,
	})
	if err != nil {
		return fmt.Errorf("failed to dead-letter delivery %s: %w", msg.ID, err)
	}
	s.logger.Warn("delivery moved to dead-letter queue",
		slog.String("delivery_tag", msg.ID),
		slog.Int64("deliveries", msg.Deliveries),
		slog.String("reason", reason))
	return s.Ack(ctx, msg)
}

// Close implements events.Subscription. Unacknowledged deliveries return
// to the queue when the channel closes.
func (s *Subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.channel.Close()
}

func (s *Subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Subscription) track(d amqp.Delivery) events.Message {
	id := strconv.FormatUint(d.DeliveryTag, 10)
	s.mu.Lock()
	s.inflight[id] = d
	s.mu.Unlock()
	return events.Message{ID: id, Body: d.Body, Deliveries: deliveryCount(d)}
}

func (s *Subscription) take(id string) (amqp.Delivery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.inflight[id]
	if ok {
		delete(s.inflight, id)
	}
	return d, ok
}

// deliveryCount derives how many times d has been delivered. Quorum queues
// report earlier deliveries in x-delivery-count; otherwise only the
// redelivered flag is known.
func deliveryCount(d amqp.Delivery) int64 {
	switch n := d.Headers["x-delivery-count"].(type) {
	case int64:
		return n + 1
	case int32:
		return int64(n) + 1
	case int:
		return int64(n) + 1
	}
	if d.Redelivered {
		return 2
	}
	return 1
}
