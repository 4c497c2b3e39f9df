package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// TokenMeta identifies a render target for telemetry purposes.
type TokenMeta struct {
	Hash     string // Token hash (required)
	ID       string // External token identifier
	Template string // Template name, e.g. "p5" or "svg"
}

// SpanName returns the deterministic span name for a render.
// Format: render.<template> or render
func (m TokenMeta) SpanName() string {
	if m.Template != "" {
		return "render." + m.Template
	}
	return "render"
}

func (m TokenMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("token.hash", m.Hash),
	}
	if m.ID != "" {
		attrs = append(attrs, attribute.String("token.id", m.ID))
	}
	if m.Template != "" {
		attrs = append(attrs, attribute.String("render.template", m.Template))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing with render span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for a render.
	StartSpan(ctx context.Context, meta TokenMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer wrapping the given OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	return &tracerImpl{tracer: t}
}

// StartSpan starts a new span with token metadata as attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, meta TokenMeta) (context.Context, trace.Span) {
	attrs := append(meta.attributes(), attribute.Bool("render.error", false))

	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("render.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// NewNoopTracer creates a tracer that records nothing.
func NewNoopTracer() Tracer {
	return &tracerImpl{tracer: tracenoop.NewTracerProvider().Tracer("noop")}
}
