// Package health runs dependency checks concurrently and summarizes them.
package health

import (
	"context"
	"log/slog"
	"time"

	"github.com/phrazzld/taskflow-api/internal/redact"
	"golang.org/x/sync/errgroup"
)

// Status values reported per check and overall.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// DefaultTimeout bounds a single check.
const DefaultTimeout = 3 * time.Second

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

// Check is a named probe. A failing critical check makes the report
// unhealthy; a failing optional one only degrades it.
type Check struct {
	Name     string
	Critical bool
	Fn       CheckFunc
}

// Result is the outcome of one check.
type Result struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Report is the aggregate outcome.
type Report struct {
	Status    string            `json:"status"`
	Checks    map[string]Result `json:"checks"`
	Timestamp time.Time         `json:"timestamp"`
}

// Healthy reports whether no critical check failed.
func (r Report) Healthy() bool {
	return r.Status != StatusUnhealthy
}

// Checker runs a fixed set of checks.
type Checker struct {
	checks  []Check
	timeout time.Duration
	logger  *slog.Logger
}

// NewChecker creates a Checker. A non-positive timeout uses DefaultTimeout.
func NewChecker(timeout time.Duration, logger *slog.Logger, checks ...Check) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		checks:  checks,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "health")),
	}
}

// Run executes every check in parallel and waits for all of them.
func (c *Checker) Run(ctx context.Context) Report {
	results := make([]Result, len(c.checks))

	g, gctx := errgroup.WithContext(ctx)
	for i, check := range c.checks {
		g.Go(func() error {
			results[i] = c.run(gctx, check)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{
		Status:    StatusHealthy,
		Checks:    make(map[string]Result, len(c.checks)),
		Timestamp: time.Now().UTC(),
	}
	for i, check := range c.checks {
		report.Checks[check.Name] = results[i]
		if results[i].Status == StatusHealthy {
			continue
		}
		if check.Critical {
			report.Status = StatusUnhealthy
		} else if report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}
	return report
}

func (c *Checker) run(ctx context.Context, check Check) Result {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := check.Fn(ctx)
	res := Result{Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		res.Status = StatusUnhealthy
		res.Error = redact.Error(err)
		c.logger.WarnContext(ctx, "health check failed",
			slog.String("check", check.Name),
			slog.Bool("critical", check.Critical),
			slog.String("error", res.Error))
	}
	return res
}
