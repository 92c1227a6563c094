// Package redisstream implements the event log on Redis Streams. Events are
// appended with XADD and consumed through a consumer group, so the stream
// itself tracks which entries each group has acknowledged.
package redisstream

import (
	"context"
	"fmt"

	"github.com/phrazzld/taskflow-api/internal/config"
	"github.com/redis/go-redis/v9"
)

// Entry field names.
const (
	fieldEventID   = "event_id"
	fieldEventType = "event_type"
	fieldEvent     = "event"
	fieldReason    = "reason"
	fieldSourceID  = "source_id"
	fieldDelivered = "deliveries"
)

// DeadLetterSuffix is appended to the stream name to form the dead-letter
// stream.
const DeadLetterSuffix = ".dead"

// NewClient creates a Redis client from cfg. It does not connect; use Ping
// to verify the server is reachable.
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	})
}

// Ping checks that the Redis server answers.
func Ping(ctx context.Context, client redis.UniversalClient) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
