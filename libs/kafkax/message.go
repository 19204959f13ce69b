package kafkax

import (
	"context"

	"github.com/md-rashed-zaman/clinicslots/libs/events"
	"github.com/segmentio/kafka-go"
)

type EventMeta struct {
	EventID   string
	EventType string
}

// ExtractEventMeta reads the event headers. A message produced without them
// falls back to its key and topic.
func ExtractEventMeta(msg kafka.Message) EventMeta {
	h := Headers(msg.Headers)
	meta := EventMeta{EventID: h.Get(events.HeaderEventID), EventType: h.Get(events.HeaderEventType)}
	if meta.EventID == "" {
		meta.EventID = string(msg.Key)
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	return meta
}

// NewEventMessage keys the message by key (the aggregate id, so one
// appointment's events share a partition) and carries the event metadata
// and the trace context of ctx in its headers.
func NewEventMessage(ctx context.Context, topic, key, eventID, eventType string, payload []byte) kafka.Message {
	h := Headers{
		{Key: events.HeaderEventID, Value: []byte(eventID)},
		{Key: events.HeaderEventType, Value: []byte(eventType)},
	}
	return kafka.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   payload,
		Headers: InjectTraceHeaders(ctx, h),
	}
}

// DeadLetterMessage copies msg onto topic+".dlq" with the failure reason
// and source topic attached.
func DeadLetterMessage(msg kafka.Message, reason string) kafka.Message {
	h := Headers(msg.Headers).Clone()
	h.Set("dlq_reason", reason)
	h.Set("dlq_source_topic", msg.Topic)
	return kafka.Message{
		Topic:   msg.Topic + events.DeadLetterSuffix,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: h,
	}
}
