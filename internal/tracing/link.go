package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StartLinked starts a span that carries a link to the span active in ctx, so independent start
// points (the lookup's check step, the consumer's per-message work) can be correlated with the
// caller in the trace backend. The correlation id, when present, is recorded as an attribute.
func StartLinked(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	opts := []trace.SpanStartOption{
		trace.WithLinks(trace.LinkFromContext(ctx)),
		trace.WithAttributes(attrs...),
	}
	if id := CorrelationID(ctx); id != "" {
		opts = append(opts, trace.WithAttributes(attribute.String(AttrCorrelationID, id)))
	}
	return tracer.Start(ctx, name, opts...)
}
