package kafkax

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Headers is a Kafka header list that doubles as a trace carrier.
type Headers []kafka.Header

var _ propagation.TextMapCarrier = (*Headers)(nil)

func (h Headers) Get(key string) string {
	for _, kv := range h {
		if kv.Key == key {
			return string(kv.Value)
		}
	}
	return ""
}

// Set replaces key in place or appends it.
func (h *Headers) Set(key, value string) {
	for i := range *h {
		if (*h)[i].Key == key {
			(*h)[i].Value = []byte(value)
			return
		}
	}
	*h = append(*h, kafka.Header{Key: key, Value: []byte(value)})
}

func (h Headers) Keys() []string {
	keys := make([]string, len(h))
	for i, kv := range h {
		keys[i] = kv.Key
	}
	return keys
}

// Clone copies the list so Set never writes into a fetched message.
func (h Headers) Clone() Headers {
	return append(Headers(nil), h...)
}

func InjectTraceHeaders(ctx context.Context, h Headers) Headers {
	otel.GetTextMapPropagator().Inject(ctx, &h)
	return h
}

func ExtractTraceContext(ctx context.Context, msg kafka.Message) context.Context {
	h := Headers(msg.Headers)
	return otel.GetTextMapPropagator().Extract(ctx, &h)
}
