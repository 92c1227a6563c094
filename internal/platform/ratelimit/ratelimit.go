// Package ratelimit limits requests per client key. The Redis limiter shares
// its window across API replicas; the local limiter is used when no Redis is
// configured.
package ratelimit

import (
	"context"
	"time"
)

// Result describes the decision for one request.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

// Config is the number of requests allowed per window.
type Config struct {
	Requests int
	Window   time.Duration
}

// DefaultConfig allows 100 requests per minute.
func DefaultConfig() Config {
	return Config{Requests: 100, Window: time.Minute}
}
