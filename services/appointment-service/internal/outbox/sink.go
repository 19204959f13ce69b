package outbox

import (
	"context"
	"fmt"

	"github.com/md-rashed-zaman/clinicslots/libs/amqpx"
	"github.com/md-rashed-zaman/clinicslots/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicslots/libs/otel"
	"github.com/segmentio/kafka-go"
)

// Sink delivers outbox records to the event bus. A nil error means every
// record was accepted by the broker.
type Sink interface {
	Send(ctx context.Context, records []Record) error
}

// Routes maps an event type to its topic or queue. Unmapped types use the
// event type itself.
type Routes map[string]string

func (r Routes) For(eventType string) string {
	if name, ok := r[eventType]; ok && name != "" {
		return name
	}
	return eventType
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaSink struct {
	writer kafkaWriter
	routes Routes
}

func NewKafkaSink(writer *kafka.Writer, routes Routes) *KafkaSink {
	return &KafkaSink{writer: writer, routes: routes}
}

func (s *KafkaSink) Send(ctx context.Context, records []Record) error {
	msgs := make([]kafka.Message, 0, len(records))
	for _, r := range records {
		msgCtx := otelx.Restore(ctx, r.Traceparent, r.Tracestate)
		msgs = append(msgs, kafkax.NewEventMessage(msgCtx, s.routes.For(r.EventType), r.AggregateID, r.EventID, r.EventType, r.Payload))
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

type AMQPSink struct {
	publisher *amqpx.Publisher
	routes    Routes
}

func NewAMQPSink(publisher *amqpx.Publisher, routes Routes) *AMQPSink {
	return &AMQPSink{publisher: publisher, routes: routes}
}

// Send publishes records in order, each waiting for its broker confirm.
func (s *AMQPSink) Send(ctx context.Context, records []Record) error {
	for _, r := range records {
		msgCtx := otelx.Restore(ctx, r.Traceparent, r.Tracestate)
		msg := amqpx.NewEventPublishing(msgCtx, r.EventID, r.EventType, r.Payload)
		if err := s.publisher.Publish(ctx, s.routes.For(r.EventType), msg); err != nil {
			return fmt.Errorf("amqp publish %s: %w", r.EventID, err)
		}
	}
	return nil
}
