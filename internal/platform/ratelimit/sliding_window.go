package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces limiter keys in Redis.
const DefaultKeyPrefix = "taskflow:ratelimit:"

// slidingWindowScript trims the window, counts what is left and records the
// request when there is room. Member names use a per-key counter so that two
// requests in the same millisecond are both counted.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local counter_key = KEYS[2]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)
	local count = redis.call('ZCARD', key)

	if count < limit then
		local seq = redis.call('INCR', counter_key)
		redis.call('ZADD', key, now, now .. ':' .. seq)
		redis.call('PEXPIRE', key, window_ms)
		redis.call('PEXPIRE', counter_key, window_ms)
		return {1, limit - count - 1, 0}
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local retry_after = 0
	if #oldest >= 2 then
		retry_after = oldest[2] + window_ms - now
	end
	return {0, 0, retry_after}
`)

// SlidingWindowLimiter keeps request timestamps in a Redis sorted set per key.
type SlidingWindowLimiter struct {
	client redis.Scripter
	config Config
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

// NewSlidingWindowLimiter creates a Redis-backed limiter.
func NewSlidingWindowLimiter(
	client redis.Scripter,
	config Config,
	prefix string,
	logger *slog.Logger,
) *SlidingWindowLimiter {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SlidingWindowLimiter{
		client: client,
		config: config,
		prefix: prefix,
		logger: logger.With(slog.String("component", "rate_limiter")),
		now:    time.Now,
	}
}

// Allow records the request when the window has room. Redis errors are
// returned to the caller, which decides whether to fail open.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	now := l.now()
	redisKey := l.prefix + key

	raw, err := slidingWindowScript.Run(ctx, l.client, []string{redisKey, redisKey + ":seq"},
		now.UnixMilli(),
		now.Add(-l.config.Window).UnixMilli(),
		l.config.Requests,
		l.config.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to run rate limit script: %w", err)
	}
	if len(raw) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result length: %d", len(raw))
	}

	res := &Result{
		Allowed:   raw[0] == 1,
		Limit:     l.config.Requests,
		Remaining: int(raw[1]),
	}
	if !res.Allowed && raw[2] > 0 {
		res.RetryAfter = time.Duration(raw[2]) * time.Millisecond
	}
	return res, nil
}
