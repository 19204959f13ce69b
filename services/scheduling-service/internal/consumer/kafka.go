package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicslots/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

var errRequeued = errors.New("delivery requeued; reopening reader from last commit")

// KafkaSource consumes one topic in a consumer group. Offsets are committed
// explicitly after settlement, one message at a time, so a crash or a
// requeue resumes from the first unsettled message.
type KafkaSource struct {
	brokers []string
	groupID string
	topic   string
	dlq     *kafka.Writer
	logger  *slog.Logger
}

// NewKafkaSource consumes topic; dead letters are written through dlq to
// "<topic>.dlq".
func NewKafkaSource(brokers []string, groupID, topic string, dlq *kafka.Writer, logger *slog.Logger) *KafkaSource {
	return &KafkaSource{brokers: brokers, groupID: groupID, topic: topic, dlq: dlq, logger: logger}
}

func (s *KafkaSource) Name() string { return s.topic }

func (s *KafkaSource) Run(ctx context.Context, deliver func(Delivery)) error {
	if len(s.brokers) == 0 {
		return errors.New("kafka brokers not configured")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     s.brokers,
		GroupID:     s.groupID,
		Topic:       s.topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch %s: %w", s.topic, err)
		}

		d := &kafkaDelivery{reader: reader, dlq: s.dlq, msg: msg, settled: make(chan kafkaSettlement, 1)}
		deliver(d)
		res := <-d.settled
		if res.err != nil {
			return res.err
		}
		if res.requeue {
			if ctx.Err() != nil {
				return nil
			}
			return errRequeued
		}
	}
}

type kafkaSettlement struct {
	requeue bool
	err     error
}

type kafkaDelivery struct {
	reader  *kafka.Reader
	dlq     *kafka.Writer
	msg     kafka.Message
	settled chan kafkaSettlement
}

func (d *kafkaDelivery) Message() Message {
	meta := kafkax.ExtractEventMeta(d.msg)
	return Message{EventID: meta.EventID, EventType: meta.EventType, Source: d.msg.Topic, Payload: d.msg.Value}
}

func (d *kafkaDelivery) Context(parent context.Context) context.Context {
	return kafkax.ExtractTraceContext(parent, d.msg)
}

func (d *kafkaDelivery) Ack(ctx context.Context) error {
	err := d.commit(ctx)
	d.settled <- kafkaSettlement{err: err}
	return err
}

// Reject without requeue drops the message by committing past it.
func (d *kafkaDelivery) Reject(ctx context.Context, requeue bool) error {
	if requeue {
		d.settled <- kafkaSettlement{requeue: true}
		return nil
	}
	return d.Ack(ctx)
}

func (d *kafkaDelivery) DeadLetter(ctx context.Context, reason string) error {
	if d.dlq == nil {
		err := errors.New("no dead-letter writer configured")
		d.settled <- kafkaSettlement{err: err}
		return err
	}
	err := d.dlq.WriteMessages(ctx, kafkax.DeadLetterMessage(d.msg, reason))
	if err != nil {
		err = fmt.Errorf("write dead letter: %w", err)
		d.settled <- kafkaSettlement{err: err}
		return err
	}
	return d.Ack(ctx)
}

func (d *kafkaDelivery) commit(ctx context.Context) error {
	if err := d.reader.CommitMessages(ctx, d.msg); err != nil {
		return fmt.Errorf("commit %s/%d@%d: %w", d.msg.Topic, d.msg.Partition, d.msg.Offset, err)
	}
	return nil
}
