package session

import (
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/a2aengine/internal/metrics"
	"github.com/BaSui01/a2aengine/internal/telemetry"
)

// Errors returned by processors, sessions and the manager.
var (
	ErrContextMismatch = errors.New("event belongs to a different context")
	ErrTaskMismatch    = errors.New("event belongs to a different task")
	ErrProcessorClosed = errors.New("processor is closed")
	ErrSessionStarted  = errors.New("session already started")
	ErrManagerClosed   = errors.New("session manager is closed")
	ErrSessionExists   = errors.New("session already registered")
	ErrInvalidEvent    = errors.New("invalid event")
)

// Option configures processors, managers and senders.
type Option func(*options)

type options struct {
	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer
	now     func() time.Time
}

// WithLogger sets the component logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records event, session and notification metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithTracer sets the tracer used for per-event spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithClock overrides the time source used for durations and token stamps.
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
		tracer: otel.Tracer(telemetry.InstrumentationName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
