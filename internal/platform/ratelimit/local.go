package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter is an in-process token bucket per key. Burst equals the
// configured request count and tokens refill evenly over the window.
type LocalLimiter struct {
	config Config
	every  rate.Limit

	mu       sync.Mutex
	limiters  map[string]*entry
	lastSweep time.Time
	now       func() time.Time
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter creates an in-process limiter.
func NewLocalLimiter(config Config) *LocalLimiter {
	return &LocalLimiter{
		config:   config,
		every:    rate.Every(config.Window / time.Duration(config.Requests)),
		limiters: make(map[string]*entry),
		now:      time.Now,
	}
}

// Allow consumes one token for key.
func (l *LocalLimiter) Allow(_ context.Context, key string) (*Result, error) {
	now := l.now()

	l.mu.Lock()
	e, ok := l.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.every, l.config.Requests)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	l.sweep(now)
	l.mu.Unlock()

	res := &Result{Limit: l.config.Requests}
	r := e.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		res.RetryAfter = delay
		return res, nil
	}

	res.Allowed = true
	res.Remaining = int(math.Max(0, math.Floor(e.limiter.TokensAt(now))))
	return res, nil
}

// Size returns the number of tracked keys.
func (l *LocalLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// sweep drops keys idle for more than a window; they would be full anyway.
// Callers hold mu.
func (l *LocalLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.config.Window {
		return
	}
	l.lastSweep = now
	for key, e := range l.limiters {
		if now.Sub(e.lastSeen) > l.config.Window {
			delete(l.limiters, key)
		}
	}
}
