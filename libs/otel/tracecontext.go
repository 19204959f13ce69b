package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	keyTraceparent = "traceparent"
	keyTracestate  = "tracestate"
)

// Capture returns the W3C header values of the span in ctx, for storing next
// to deferred work such as an outbox row. Both are empty without a span.
func Capture(ctx context.Context) (traceparent, tracestate string) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier[keyTraceparent], carrier[keyTracestate]
}

// Restore is the inverse of Capture.
func Restore(ctx context.Context, traceparent, tracestate string) context.Context {
	if traceparent == "" {
		return ctx
	}
	return ExtractMap(ctx, map[string]string{keyTraceparent: traceparent, keyTracestate: tracestate})
}

func InjectMap(ctx context.Context, into map[string]string) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(into))
}

func ExtractMap(ctx context.Context, from map[string]string) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(from))
}
