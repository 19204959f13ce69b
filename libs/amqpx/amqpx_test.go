package amqpx

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

func TestNewEventPublishingCarriesMeta(t *testing.T) {
	pub := NewEventPublishing(context.Background(), "evt-1", "appointment-created", []byte(`{}`))
	if pub.MessageId != "evt-1" || pub.DeliveryMode != amqp.Persistent {
		t.Fatalf("unexpected publishing %+v", pub)
	}

	d := amqp.Delivery{Headers: pub.Headers, MessageId: pub.MessageId, RoutingKey: "appointment-created"}
	id, typ := EventMeta(d)
	if id != "evt-1" || typ != "appointment-created" {
		t.Fatalf("unexpected meta %q %q", id, typ)
	}
}

func TestEventMetaFallsBackToProperties(t *testing.T) {
	d := amqp.Delivery{MessageId: "m-1", RoutingKey: "appointment-cancelled"}
	id, typ := EventMeta(d)
	if id != "m-1" || typ != "appointment-cancelled" {
		t.Fatalf("unexpected meta %q %q", id, typ)
	}
}

func TestHeaderStringIgnoresNonStrings(t *testing.T) {
	if got := HeaderString(amqp.Table{"event_id": int32(4)}, "event_id"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
