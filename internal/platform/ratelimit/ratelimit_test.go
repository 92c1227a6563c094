package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLimiter_Allow(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLocalLimiter(Config{Requests: 3, Window: 3 * time.Second})
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i+1)
		assert.Equal(t, 2-i, res.Remaining)
		assert.Equal(t, 3, res.Limit)
	}

	res, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Second, res.RetryAfter)

	other, err := l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "keys are limited independently")

	now = now.Add(time.Second)
	res, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "a token refills after window/requests")
}

func TestLocalLimiter_SweepsIdleKeys(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewLocalLimiter(Config{Requests: 10, Window: time.Minute})
	l.now = func() time.Time { return now }

	_, _ = l.Allow(context.Background(), "a")
	_, _ = l.Allow(context.Background(), "b")
	assert.Equal(t, 2, l.Size())

	now = now.Add(2 * time.Minute)
	_, _ = l.Allow(context.Background(), "c")
	assert.Equal(t, 1, l.Size())
}

func TestSlidingWindowLimiter_RedisUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer func() { _ = client.Close() }()

	l := NewSlidingWindowLimiter(client, DefaultConfig(), "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := l.Allow(context.Background(), "10.0.0.1")

	assert.Error(t, err)
}

func TestSlidingWindowLimiter_Integration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis integration test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = client.Close() }()
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	prefix := "test:ratelimit:" + uuid.NewString() + ":"
	t.Cleanup(func() {
		client.Del(context.Background(), prefix+"client", prefix+"client:seq")
	})

	l := NewSlidingWindowLimiter(client, Config{Requests: 5, Window: time.Minute}, prefix, nil)

	for i := 0; i < 5; i++ {
		res, err := l.Allow(ctx, "client")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 5-i-1, res.Remaining)
	}

	res, err := l.Allow(ctx, "client")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Zero(t, res.Remaining)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, res.RetryAfter, time.Minute)
}
