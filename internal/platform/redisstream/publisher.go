package redisstream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/taskflow-api/internal/events"
	"github.com/phrazzld/taskflow-api/internal/platform/logger"
	"github.com/redis/go-redis/v9"
)

// Publisher appends events to a stream with XADD.
type Publisher struct {
	client redis.UniversalClient
	stream string
	maxLen int64
	logger *slog.Logger
}

var _ events.Publisher = (*Publisher)(nil)

// NewPublisher creates a Publisher for stream. When maxLen is positive the
// stream is trimmed to approximately that many entries on every append.
func NewPublisher(client redis.UniversalClient, stream string, maxLen int64, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: log.With(slog.String("component", "redis_publisher")),
	}
}

// Publish implements events.Publisher.
func (p *Publisher) Publish(ctx context.Context, event *events.Event) error {
	body, err := event.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.ID, err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		ID:     "*",
		Values: map[string]interface{}{
			fieldEventID:   event.ID.String(),
			fieldEventType: string(event.Type),
			fieldEvent:     string(body),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to append event %s to stream %s: %w", event.ID, p.stream, err)
	}

	logger.FromContextOrDefault(ctx, p.logger).Debug("event appended",
		slog.String("stream", p.stream),
		slog.String("entry_id", id),
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.Type)))
	return nil
}
