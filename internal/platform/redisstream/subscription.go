package redisstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/phrazzld/taskflow-api/internal/events"
	"github.com/redis/go-redis/v9"
)

// SubscriptionConfig describes one member of a consumer group.
type SubscriptionConfig struct {
	Stream    string
	Group     string
	Consumer  string
	BatchSize int64

	// Block is how long Fetch waits for new entries. Zero returns
	// immediately.
	Block time.Duration

	// ClaimMinIdle is how long an entry must sit unacknowledged in another
	// consumer's pending list before this consumer takes it over. Zero
	// disables claiming.
	ClaimMinIdle time.Duration
}

// Subscription reads a stream through a consumer group.
type Subscription struct {
	client redis.UniversalClient
	cfg    SubscriptionConfig
	logger *slog.Logger

	mu          sync.Mutex
	groupExists bool
	closed      bool
}

var _ events.Subscription = (*Subscription)(nil)

// NewSubscription creates a Subscription. The consumer group is created on
// the first Fetch if it does not exist yet.
func NewSubscription(client redis.UniversalClient, cfg SubscriptionConfig, logger *slog.Logger) *Subscription {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscription{
		client: client,
		cfg:    cfg,
		logger: logger.With(
			slog.String("component", "redis_subscription"),
			slog.String("stream", cfg.Stream),
			slog.String("group", cfg.Group),
			slog.String("consumer", cfg.Consumer)),
	}
}

// Fetch implements events.Subscription. It returns, in order of preference,
// this consumer's own unacknowledged entries, entries claimed from idle
// consumers, and new entries.
func (s *Subscription) Fetch(ctx context.Context) ([]events.Message, error) {
	if s.isClosed() {
		return nil, events.ErrSubscriptionClosed
	}
	if err := s.ensureGroup(ctx); err != nil {
		return nil, err
	}

	own, err := s.read(ctx, "0", -1)
	if err != nil {
		return nil, err
	}
	if len(own) > 0 {
		return s.withDeliveries(ctx, own)
	}

	if s.cfg.ClaimMinIdle > 0 {
		claimed, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   s.cfg.Stream,
			Group:    s.cfg.Group,
			Consumer: s.cfg.Consumer,
			MinIdle:  s.cfg.ClaimMinIdle,
			Start:    "0-0",
			Count:    s.cfg.BatchSize,
		}).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to claim idle entries: %w", err)
		}
		if len(claimed) > 0 {
			s.logger.Info("claimed idle entries", slog.Int("count", len(claimed)))
			return s.withDeliveries(ctx, claimed)
		}
	}

	block := s.cfg.Block
	if block <= 0 {
		// go-redis treats 0 as "block forever".
		block = -1
	}
	fresh, err := s.read(ctx, ">", block)
	if err != nil {
		return nil, err
	}
	batch := make([]events.Message, 0, len(fresh))
	for _, m := range fresh {
		batch = append(batch, toMessage(m, 1))
	}
	return batch, nil
}

// Ack implements events.Subscription. XACK of an unknown or already
// acknowledged ID is a no-op on the server.
func (s *Subscription) Ack(ctx context.Context, msg events.Message) error {
	if err := s.client.XAck(ctx, s.cfg.Stream, s.cfg.Group, msg.ID).Err(); err != nil {
		return fmt.Errorf("failed to ack entry %s: %w", msg.ID, err)
	}
	return nil
}

// Retry implements events.Subscription. The entry stays in this consumer's
// pending list and is returned by the next Fetch.
func (s *Subscription) Retry(context.Context, events.Message) error {
	return nil
}

// DeadLetter implements events.Subscription. The entry is copied to the
// dead-letter stream and acknowledged in one MULTI/EXEC.
func (s *Subscription) DeadLetter(ctx context.Context, msg events.Message, reason string) error {
	dead := s.cfg.Stream + DeadLetterSuffix
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: dead,
			ID:     "*",
			Values: map[string]interface{}{
				fieldEvent:     string(msg.Body),
				fieldReason:    reason,
				fieldSourceID:  msg.ID,
				fieldDelivered: msg.Deliveries,
			},
		})
		pipe.XAck(ctx, s.cfg.Stream, s.cfg.Group, msg.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to dead-letter entry %s: %w", msg.ID, err)
	}
	s.logger.Warn("entry moved to dead-letter stream",
		slog.String("entry_id", msg.ID),
		slog.String("dead_letter_stream", dead),
		slog.Int64("deliveries", msg.Deliveries),
		slog.String("reason", reason))
	return nil
}

// Close implements events.Subscription. The client is owned by the caller
// and is left open.
func (s *Subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Subscription) ensureGroup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.groupExists {
		return nil
	}

	err := s.client.XGroupCreateMkStream(ctx, s.cfg.Stream, s.cfg.Group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("failed to create consumer group %s: %w", s.cfg.Group, err)
	}
	s.groupExists = true
	return nil
}

func (s *Subscription) read(ctx context.Context, id string, block time.Duration) ([]redis.XMessage, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.cfg.Group,
		Consumer: s.cfg.Consumer,
		Streams:  []string{s.cfg.Stream, id},
		Count:    s.cfg.BatchSize,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if isNoGroup(err) {
			s.mu.Lock()
			s.groupExists = false
			s.mu.Unlock()
		}
		return nil, fmt.Errorf("failed to read stream %s: %w", s.cfg.Stream, err)
	}

	var out []redis.XMessage
	for _, stream := range streams {
		out = append(out, stream.Messages...)
	}
	return out, nil
}

// withDeliveries attaches the group's delivery counters to redelivered
// entries.
func (s *Subscription) withDeliveries(ctx context.Context, msgs []redis.XMessage) ([]events.Message, error) {
	pending, err := s.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   s.cfg.Stream,
		Group:    s.cfg.Group,
		Start:    msgs[0].ID,
		End:      msgs[len(msgs)-1].ID,
		Count:    int64(len(msgs)),
		Consumer: s.cfg.Consumer,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read pending entries: %w", err)
	}

	counts := make(map[string]int64, len(pending))
	for _, p := range pending {
		counts[p.ID] = p.RetryCount
	}

	batch := make([]events.Message, 0, len(msgs))
	for _, m := range msgs {
		deliveries := counts[m.ID]
		if deliveries < 1 {
			deliveries = 1
		}
		batch = append(batch, toMessage(m, deliveries))
	}
	return batch, nil
}

// toMessage converts a stream entry. Entries trimmed from the stream while
// still pending come back with no values and yield an empty body.
func toMessage(m redis.XMessage, deliveries int64) events.Message {
	var body []byte
	if raw, ok := m.Values[fieldEvent].(string); ok {
		body = []byte(raw)
	}
	return events.Message{ID: m.ID, Body: body, Deliveries: deliveries}
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func isNoGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "NOGROUP")
}
