// Package consumer runs the notification loop: it reads task events from
// the event log through a consumer group and forwards the ones in the
// notify-set to a notify.Sender.
//
// Delivery is at-least-once. A message is acknowledged only after it was
// handled; a failed send leaves it unacknowledged so the log hands it out
// again on a later poll.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/taskflow-api/internal/events"
	"github.com/phrazzld/taskflow-api/internal/notify"
)

// Config holds the retry policy of the consumer.
type Config struct {
	// MaxDeliveries is the delivery count at which a message that still
	// cannot be sent is dead-lettered. Zero retries forever.
	MaxDeliveries int64

	// RetryBackoff is how long the loop pauses after a failed send or
	// fetch before polling again.
	RetryBackoff time.Duration
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		MaxDeliveries: 5,
		RetryBackoff:  2 * time.Second,
	}
}

// idlePause is the wait after an empty batch, and the floor for
// RetryBackoff, so the loop never spins.
const idlePause = 50 * time.Millisecond

// outcome is what happened to one message.
type outcome int

const (
	outcomeAcked outcome = iota
	outcomeSkipped
	outcomeRetry
	outcomeDeadLettered
)

// Consumer is a sequential event loop over one Subscription.
type Consumer struct {
	sub       events.Subscription
	formatter *notify.Formatter
	sender    notify.Sender
	config    Config
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Consumer.
func New(
	sub events.Subscription,
	formatter *notify.Formatter,
	sender notify.Sender,
	config Config,
	logger *slog.Logger,
) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		sub:       sub,
		formatter: formatter,
		sender:    sender,
		config:    config,
		logger:    logger.With(slog.String("component", "notification_consumer")),
	}
}

// Start runs the loop in a background goroutine until Stop is called or ctx
// is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.Run(ctx); err != nil {
			c.logger.Error("consumer stopped with error", slog.String("error", err.Error()))
		}
	}()
}

// Stop cancels the loop, waits for the current batch to finish and closes
// the subscription.
func (c *Consumer) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	return c.sub.Close()
}

// Run polls the subscription until ctx is cancelled. It returns nil on
// cancellation and an error only when the subscription is closed
// underneath it.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("consumer started",
		slog.Int64("max_deliveries", c.config.MaxDeliveries),
		slog.Duration("retry_backoff", c.config.RetryBackoff))

	for {
		if ctx.Err() != nil {
			c.logger.Info("consumer stopping")
			return nil
		}

		batch, err := c.sub.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping")
				return nil
			}
			if errors.Is(err, events.ErrSubscriptionClosed) {
				return err
			}
			c.logger.Error("failed to fetch events", slog.String("error", err.Error()))
			c.pause(ctx)
			continue
		}

		// With a zero block window an empty log answers at once.
		if len(batch) == 0 {
			c.sleep(ctx, idlePause)
			continue
		}
		if !c.ProcessBatch(ctx, batch) {
			c.pause(ctx)
		}
	}
}

// ProcessBatch handles messages in log order. On the first message that
// must be retried it stops, hands the rest of the batch back for
// redelivery and returns false.
func (c *Consumer) ProcessBatch(ctx context.Context, batch []events.Message) bool {
	for i, msg := range batch {
		if c.handle(ctx, msg) != outcomeRetry {
			continue
		}
		for _, rest := range batch[i+1:] {
			if err := c.sub.Retry(ctx, rest); err != nil {
				c.logger.Error("failed to release message",
					slog.String("message_id", rest.ID),
					slog.String("error", err.Error()))
			}
		}
		return false
	}
	return true
}

func (c *Consumer) handle(ctx context.Context, msg events.Message) outcome {
	log := c.logger.With(
		slog.String("message_id", msg.ID),
		slog.Int64("deliveries", msg.Deliveries))

	event, err := events.Decode(msg.Body)
	if err != nil {
		log.Warn("skipping malformed event", slog.String("error", err.Error()))
		c.ack(ctx, log, msg)
		return outcomeSkipped
	}

	log = log.With(
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.Type)),
		slog.String("task_id", event.TaskID.String()))

	if !c.formatter.Wants(event.Type) {
		log.Debug("event not in notify-set")
		c.ack(ctx, log, msg)
		return outcomeSkipped
	}

	text, err := c.formatter.Format(event)
	if err != nil {
		log.Warn("skipping event with malformed payload", slog.String("error", err.Error()))
		c.ack(ctx, log, msg)
		return outcomeSkipped
	}

	if err := c.sender.Send(ctx, text); err != nil {
		if c.config.MaxDeliveries > 0 && msg.Deliveries >= c.config.MaxDeliveries {
			reason := fmt.Sprintf("send failed after %d deliveries: %v", msg.Deliveries, err)
			if dlErr := c.sub.DeadLetter(ctx, msg, reason); dlErr != nil {
				log.Error("failed to dead-letter event", slog.String("error", dlErr.Error()))
				return outcomeRetry
			}
			log.Error("notification abandoned", slog.String("error", err.Error()))
			return outcomeDeadLettered
		}

		log.Warn("notification failed, will retry", slog.String("error", err.Error()))
		if rErr := c.sub.Retry(ctx, msg); rErr != nil {
			log.Error("failed to release message", slog.String("error", rErr.Error()))
		}
		return outcomeRetry
	}

	log.Info("notification sent")
	c.ack(ctx, log, msg)
	return outcomeAcked
}

// ack logs failures instead of returning them: an unacknowledged message is
// simply delivered again.
func (c *Consumer) ack(ctx context.Context, log *slog.Logger, msg events.Message) {
	if err := c.sub.Ack(ctx, msg); err != nil {
		log.Error("failed to ack event", slog.String("error", err.Error()))
	}
}

func (c *Consumer) pause(ctx context.Context) {
	c.sleep(ctx, max(c.config.RetryBackoff, idlePause))
}

func (c *Consumer) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
