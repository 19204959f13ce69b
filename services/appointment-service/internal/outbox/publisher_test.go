package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/md-rashed-zaman/clinicslots/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type memStore struct {
	pending   []Record
	published []Record
	failures  map[int64]int
}

func (m *memStore) PublishBatch(ctx context.Context, limit int, send func(context.Context, []Record) error) (int, []int64, error) {
	batch := m.pending
	if len(batch) > limit {
		batch = batch[:limit]
	}
	if len(batch) == 0 {
		return 0, nil, nil
	}
	var ids []int64
	for _, r := range batch {
		ids = append(ids, r.ID)
	}
	if err := send(ctx, batch); err != nil {
		return 0, ids, err
	}
	m.published = append(m.published, batch...)
	m.pending = m.pending[len(batch):]
	return len(batch), nil, nil
}

func (m *memStore) RecordFailure(_ context.Context, ids []int64, _ error) error {
	if m.failures == nil {
		m.failures = map[int64]int{}
	}
	for _, id := range ids {
		m.failures[id]++
	}
	return nil
}

type flakySink struct {
	failures int
	sent     [][]Record
}

func (s *flakySink) Send(_ context.Context, records []Record) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("broker unavailable")
	}
	s.sent = append(s.sent, records)
	return nil
}

func newPublisher(store batchStore, sink Sink, batch int) *Publisher {
	return NewPublisher(store, sink, slog.New(slog.NewTextHandler(io.Discard, nil)), PublisherConfig{BatchSize: batch})
}

func TestPublishOnce_FailureKeepsEventsPending(t *testing.T) {
	store := &memStore{pending: []Record{{ID: 1, EventType: "appointment-created"}, {ID: 2, EventType: "appointment-cancelled"}}}
	sink := &flakySink{failures: 1}
	p := newPublisher(store, sink, 50)
	ctx := context.Background()

	if _, err := p.PublishOnce(ctx); err == nil {
		t.Fatal("expected publish failure")
	}
	if len(store.pending) != 2 || len(store.published) != 0 {
		t.Fatal("failed batch must stay unpublished")
	}
	if store.failures[1] != 1 || store.failures[2] != 1 {
		t.Fatalf("expected failures recorded, got %v", store.failures)
	}

	n, err := p.PublishOnce(ctx)
	if err != nil || n != 2 {
		t.Fatalf("expected retry to publish 2, got %d (%v)", n, err)
	}
	if len(store.pending) != 0 {
		t.Fatal("expected nothing pending after retry")
	}
}

func TestPublishOnce_RespectsBatchSize(t *testing.T) {
	store := &memStore{}
	for i := int64(1); i <= 5; i++ {
		store.pending = append(store.pending, Record{ID: i})
	}
	sink := &flakySink{}
	p := newPublisher(store, sink, 2)

	n, _ := p.PublishOnce(context.Background())
	if n != 2 || len(sink.sent[0]) != 2 {
		t.Fatalf("expected batch of 2, got %d", n)
	}
}

type captureWriter struct{ msgs []kafka.Message }

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func TestKafkaSink_RoutesAndHeaders(t *testing.T) {
	w := &captureWriter{}
	sink := &KafkaSink{writer: w, routes: Routes{"appointment-created": "clinic.appointment-created"}}

	err := sink.Send(context.Background(), []Record{
		{EventID: "evt-1", AggregateID: "appt-1", EventType: "appointment-created", Payload: []byte(`{}`)},
		{EventID: "evt-2", AggregateID: "appt-1", EventType: "appointment-cancelled", Payload: []byte(`{}`)},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if w.msgs[0].Topic != "clinic.appointment-created" || w.msgs[1].Topic != "appointment-cancelled" {
		t.Fatalf("unexpected topics %q %q", w.msgs[0].Topic, w.msgs[1].Topic)
	}
	meta := kafkax.ExtractEventMeta(w.msgs[1])
	if meta.EventID != "evt-2" || meta.EventType != "appointment-cancelled" || string(w.msgs[1].Key) != "appt-1" {
		t.Fatalf("unexpected meta %+v key %q", meta, w.msgs[1].Key)
	}
}
