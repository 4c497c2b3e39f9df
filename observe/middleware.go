package observe

import (
	"context"
	"time"
)

// RenderFunc is the signature of a single render attempt.
type RenderFunc func(ctx context.Context, meta TokenMeta) error

// Middleware wraps renders with tracing, metrics, and logging.
//
// Contract:
//   - Concurrency: Wrap() returns a thread-safe RenderFunc.
//   - Context: the span context is passed to the wrapped function.
//   - Errors: errors from the wrapped function are recorded and propagated unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
}

// NewMiddleware creates a new Middleware. Nil components are replaced by no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NewNoopTracer()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
	}
}

// NopMiddleware returns a Middleware that records nothing.
func NopMiddleware() *Middleware {
	return NewMiddleware(nil, nil, nil)
}

// Metrics returns the metrics sink shared with callers that record lookups.
func (m *Middleware) Metrics() Metrics {
	return m.metrics
}

// Logger returns the base logger.
func (m *Middleware) Logger() Logger {
	return m.logger
}

// Wrap wraps a RenderFunc with tracing, metrics, and logging.
func (m *Middleware) Wrap(fn RenderFunc) RenderFunc {
	return func(ctx context.Context, meta TokenMeta) error {
		ctx, span := m.tracer.StartSpan(ctx, meta)
		start := time.Now()

		err := fn(ctx, meta)

		duration := time.Since(start)
		m.tracer.EndSpan(span, err)
		m.metrics.RecordRender(ctx, meta, duration, err)

		logger := m.logger.WithToken(meta)
		fields := []Field{F("duration_ms", float64(duration.Milliseconds()))}
		if err != nil {
			fields = append(fields, F("error", err))
			logger.Error(ctx, "render failed", fields...)
		} else {
			logger.Info(ctx, "render completed", fields...)
		}

		return err
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	metrics, err := NewMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}
