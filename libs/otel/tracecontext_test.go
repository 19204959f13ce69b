package otelx

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestCaptureRestoreRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	tp, ts := Capture(ctx)
	if tp != "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01" || ts != "" {
		t.Fatalf("unexpected capture %q %q", tp, ts)
	}
	restored := trace.SpanContextFromContext(Restore(context.Background(), tp, ts))
	if restored.TraceID() != traceID || !restored.IsRemote() {
		t.Fatalf("unexpected restored span context %+v", restored)
	}
}

func TestCaptureWithoutSpan(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	if tp, _ := Capture(context.Background()); tp != "" {
		t.Fatalf("expected empty traceparent, got %q", tp)
	}
	ctx := context.Background()
	if Restore(ctx, "", "") != ctx {
		t.Fatal("expected ctx unchanged")
	}
}
