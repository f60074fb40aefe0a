// Package tracing holds the process-wide tracer and span helpers. Every
// repository and service method opens a span named "package.Type.Method" so
// a batch run reads as one trace from HTTP or Kafka down to SQL.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// SetTracer installs the process tracer. Before it is set, StartSpan
// returns the ambient span and nothing is recorded.
func SetTracer(t trace.Tracer) {
	tracer = t
}

// StartSpan opens a child span on the context.
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName)
}

// GetTraceID returns the current trace id, or "" outside a recorded trace.
// The error middleware puts it on API error bodies.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// GetTraceParent returns the W3C traceparent header value for the current
// span, so outgoing Kafka messages carry the trace across the broker.
func GetTraceParent(ctx context.Context) string {
	if !trace.SpanFromContext(ctx).SpanContext().IsValid() {
		return ""
	}
	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	return carrier.Get("traceparent")
}
