package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Cache tiers reported by RecordLookup.
const (
	TierMemory   = "memory"
	TierStore    = "store"
	TierArtifact = "artifact"
)

// Metrics records render and cache metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordRender records one render with its duration and error status.
	RecordRender(ctx context.Context, meta TokenMeta, duration time.Duration, err error)

	// RecordLockWait records how long a render waited for the resource.
	RecordLockWait(ctx context.Context, meta TokenMeta, wait time.Duration)

	// RecordLookup records a hit or miss against one cache tier.
	RecordLookup(ctx context.Context, tier string, hit bool)
}

type metricsImpl struct {
	renderCount  metric.Int64Counter
	errorCount   metric.Int64Counter
	durationHist metric.Float64Histogram
	lockWaitHist metric.Float64Histogram
	lookupCount  metric.Int64Counter
}

// NewMetrics creates Metrics backed by the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	renderCount, err := meter.Int64Counter(
		"render.total",
		metric.WithDescription("Total number of renders"),
		metric.WithUnit("{render}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		"render.errors",
		metric.WithDescription("Total number of failed renders"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		"render.duration_ms",
		metric.WithDescription("Render duration including fan-out, in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	lockWaitHist, err := meter.Float64Histogram(
		"render.lock_wait_ms",
		metric.WithDescription("Time spent waiting for the render resource, in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	lookupCount, err := meter.Int64Counter(
		"cache.lookups",
		metric.WithDescription("Cache lookups by tier and result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		renderCount:  renderCount,
		errorCount:   errorCount,
		durationHist: durationHist,
		lockWaitHist: lockWaitHist,
		lookupCount:  lookupCount,
	}, nil
}

func (m *metricsImpl) RecordRender(ctx context.Context, meta TokenMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(attribute.String("render.template", meta.Template))

	m.renderCount.Add(ctx, 1, opt)
	if err != nil {
		m.errorCount.Add(ctx, 1, opt)
	}
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordLockWait(ctx context.Context, meta TokenMeta, wait time.Duration) {
	m.lockWaitHist.Record(ctx, float64(wait.Milliseconds()),
		metric.WithAttributes(attribute.String("render.template", meta.Template)))
}

func (m *metricsImpl) RecordLookup(ctx context.Context, tier string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookupCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", tier),
		attribute.String("result", result),
	))
}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics {
	return nopMetrics{}
}

type nopMetrics struct{}

func (nopMetrics) RecordRender(context.Context, TokenMeta, time.Duration, error) {}
func (nopMetrics) RecordLockWait(context.Context, TokenMeta, time.Duration)      {}
func (nopMetrics) RecordLookup(context.Context, string, bool)                    {}
