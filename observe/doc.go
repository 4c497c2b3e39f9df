// Package observe provides observability primitives for token rendering.
//
// It is a pure instrumentation library: a structured JSON logger, an
// OpenTelemetry tracer wrapper that opens one span per render, and metrics
// for render outcomes, render-lock waits, and cache tier lookups. Consumers
// wire an Observer into the render coordinator and the artifact service.
package observe
