package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicslots/libs/amqpx"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPSource consumes one RabbitMQ queue with manual acks. Prefetch caps
// the unacknowledged deliveries the broker hands this consumer.
type AMQPSource struct {
	url      string
	exchange string
	queue    string
	prefetch int
	logger   *slog.Logger
}

func NewAMQPSource(url, exchange, queue string, prefetch int, logger *slog.Logger) *AMQPSource {
	return &AMQPSource{url: url, exchange: exchange, queue: queue, prefetch: prefetch, logger: logger}
}

func (s *AMQPSource) Name() string { return s.queue }

func (s *AMQPSource) Run(ctx context.Context, deliver func(Delivery)) error {
	conn, err := amqpx.Dial(ctx, s.url)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.Qos(s.prefetch, 0, false); err != nil {
		return fmt.Errorf("amqp qos: %w", err)
	}
	if err := amqpx.DeclareQueue(ch, s.exchange, s.queue); err != nil {
		return err
	}
	tag := s.queue + "-" + uuid.NewString()
	msgs, err := ch.Consume(s.queue, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume %s: %w", s.queue, err)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	// Acks need the channel, so wait for in-flight deliveries before the
	// deferred Close.
	var inflight sync.WaitGroup
	defer inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			_ = ch.Cancel(tag, false)
			return nil
		case amqpErr := <-closed:
			if amqpErr == nil {
				return errors.New("amqp connection closed")
			}
			return fmt.Errorf("amqp connection closed: %w", amqpErr)
		case d, ok := <-msgs:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			inflight.Add(1)
			deliver(&amqpDelivery{d: d, done: inflight.Done})
		}
	}
}

type amqpDelivery struct {
	d    amqp.Delivery
	once sync.Once
	done func()
}

func (d *amqpDelivery) Message() Message {
	id, typ := amqpx.EventMeta(d.d)
	return Message{EventID: id, EventType: typ, Source: d.d.RoutingKey, Payload: d.d.Body}
}

func (d *amqpDelivery) Context(parent context.Context) context.Context {
	return amqpx.ExtractTraceContext(parent, d.d)
}

func (d *amqpDelivery) Ack(context.Context) error {
	defer d.once.Do(d.done)
	return d.d.Ack(false)
}

func (d *amqpDelivery) Reject(_ context.Context, requeue bool) error {
	defer d.once.Do(d.done)
	return d.d.Nack(false, requeue)
}

// DeadLetter nacks without requeue; the queue's dead-letter exchange routes
// the message to "<queue>.dlq".
func (d *amqpDelivery) DeadLetter(context.Context, string) error {
	defer d.once.Do(d.done)
	return d.d.Nack(false, false)
}
