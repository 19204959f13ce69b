package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicslots/libs/db"
	otelx "github.com/md-rashed-zaman/clinicslots/libs/otel"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes evt inside the caller's transaction, together with the
// trace context of ctx so the publisher can continue the trace.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	traceparent, tracestate := otelx.Capture(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	return err
}

type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
	Attempts      int
}

// PublishBatch locks up to limit unpublished rows, hands them to send and
// marks them published when send succeeds. On error nothing is marked and
// the rows' ids are returned so the failure can be recorded.
func (r *Repository) PublishBatch(ctx context.Context, limit int, send func(context.Context, []Record) error) (int, []int64, error) {
	var n int
	var ids []int64
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		records, err := fetchUnpublished(ctx, tx, limit)
		if err != nil {
			return err
		}
		n = len(records)
		if n == 0 {
			return nil
		}
		ids = make([]int64, 0, n)
		for _, rec := range records {
			ids = append(ids, rec.ID)
		}
		if err := send(ctx, records); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE outbox_events
			SET published_at = now(), attempts = attempts + 1, last_error = NULL
			WHERE id = ANY($1)
		`, ids)
		return err
	})
	if err != nil {
		return 0, ids, err
	}
	return n, nil, nil
}

// RecordFailure bumps attempts and stores the last error for ids.
func (r *Repository) RecordFailure(ctx context.Context, ids []int64, cause error) error {
	if len(ids) == 0 {
		return nil
	}
	msg := cause.Error()
	if len(msg) > 1000 {
		msg = msg[:1000]
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET attempts = attempts + 1, last_error = $2
		WHERE id = ANY($1) AND published_at IS NULL
	`, ids, msg)
	if err != nil {
		return fmt.Errorf("record outbox failure: %w", err)
	}
	return nil
}

func fetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate, created_at, attempts
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rcd Record
		if err := rows.Scan(&rcd.ID, &rcd.EventID, &rcd.AggregateType, &rcd.AggregateID, &rcd.EventType, &rcd.Payload, &rcd.Traceparent, &rcd.Tracestate, &rcd.CreatedAt, &rcd.Attempts); err != nil {
			return nil, err
		}
		records = append(records, rcd)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}
