// Package amqpx holds the RabbitMQ plumbing shared by the publisher and the
// consumer side: topology, message headers and readiness.
package amqpx

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicslots/libs/events"
	otelx "github.com/md-rashed-zaman/clinicslots/libs/otel"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Dial opens a connection, giving up when ctx is done.
func Dial(ctx context.Context, url string) (*amqp.Connection, error) {
	cfg := amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	}
	if deadline, ok := ctx.Deadline(); ok {
		timeout := time.Until(deadline)
		cfg.Dial = amqp.DefaultDial(timeout)
	}
	conn, err := amqp.DialConfig(url, cfg)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	return conn, nil
}

// DeclareExchange declares the durable direct exchange events are published to.
func DeclareExchange(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(exchange, amqp.ExchangeDirect, true, false, false, false, nil)
}

// DeclareQueue declares queue bound to exchange under its own name, plus
// its parking queue. Rejected messages (nack without requeue) go through
// the default exchange to "<queue>.dlq".
func DeclareQueue(ch *amqp.Channel, exchange, queue string) error {
	if err := DeclareExchange(ch, exchange); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	dlq := queue + events.DeadLetterSuffix
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", dlq, err)
	}
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlq,
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}
	return nil
}

// NewEventPublishing builds a persistent JSON message carrying the event
// metadata and the trace context of ctx.
func NewEventPublishing(ctx context.Context, eventID, eventType string, payload []byte) amqp.Publishing {
	headers := amqp.Table{
		events.HeaderEventID:   eventID,
		events.HeaderEventType: eventType,
	}
	trace := map[string]string{}
	otelx.InjectMap(ctx, trace)
	for k, v := range trace {
		headers[k] = v
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    eventID,
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         payload,
	}
}

// HeaderString returns a string header, or "" when absent or not a string.
func HeaderString(headers amqp.Table, key string) string {
	if v, ok := headers[key].(string); ok {
		return v
	}
	return ""
}

// ExtractTraceContext restores the publisher's trace context from d's headers.
func ExtractTraceContext(ctx context.Context, d amqp.Delivery) context.Context {
	carrier := make(map[string]string, len(d.Headers))
	for k, v := range d.Headers {
		if s, ok := v.(string); ok {
			carrier[k] = s
		}
	}
	return otelx.ExtractMap(ctx, carrier)
}

// EventMeta mirrors kafkax.ExtractEventMeta: headers first, then the
// message properties.
func EventMeta(d amqp.Delivery) (eventID, eventType string) {
	eventID = HeaderString(d.Headers, events.HeaderEventID)
	if eventID == "" {
		eventID = d.MessageId
	}
	eventType = HeaderString(d.Headers, events.HeaderEventType)
	if eventType == "" {
		eventType = d.Type
	}
	if eventType == "" {
		eventType = d.RoutingKey
	}
	return eventID, eventType
}

func ReadyCheck(url string) func(context.Context) error {
	return func(ctx context.Context) error {
		conn, err := Dial(ctx, url)
		if err != nil {
			return err
		}
		return conn.Close()
	}
}
