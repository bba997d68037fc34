package checkpoint

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/a2aengine/internal/metrics"
)

// Option configures a store.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records operation metrics on the collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithClock overrides the time source used for creation stamps and expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// cleanupGate serializes sweeps and remembers the last successful one.
type cleanupGate struct {
	mu   sync.Mutex
	last time.Time
}

// maybeRun sweeps when cleanup is enabled, a TTL is set and the interval has
// elapsed. A sweep already in progress makes the call a no-op. The timestamp
// only advances on success.
func (g *cleanupGate) maybeRun(ctx context.Context, cfg Config, now func() time.Time, sweep func(context.Context) (int64, error)) (bool, error) {
	if !cfg.CleanupEnabled || cfg.TTL <= 0 {
		return false, nil
	}
	if !g.mu.TryLock() {
		return false, nil
	}
	defer g.mu.Unlock()

	started := now()
	if !g.last.IsZero() && started.Sub(g.last) < cfg.CleanupInterval {
		return false, nil
	}
	if _, err := sweep(ctx); err != nil {
		return false, err
	}
	g.last = started
	return true, nil
}
