package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/inbox"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/model"
)

// recordingTx records statements in order. Exec reports one affected row,
// QueryRow finds nothing and CopyFrom accepts every row.
type recordingTx struct {
	pgx.Tx
	stmts []string
	args  [][]any
}

func (tx *recordingTx) record(sql string, args []any) {
	tx.stmts = append(tx.stmts, sql)
	tx.args = append(tx.args, args)
}

func (tx *recordingTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tx.record(sql, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (tx *recordingTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	tx.record(sql, args)
	return noRow{}
}

func (tx *recordingTx) CopyFrom(_ context.Context, table pgx.Identifier, _ []string, src pgx.CopyFromSource) (int64, error) {
	tx.record("COPY "+table.Sanitize(), nil)
	var n int64
	for src.Next() {
		n++
	}
	return n, nil
}

type noRow struct{}

func (noRow) Scan(...any) error { return pgx.ErrNoRows }

func assertLocksDoctorFirst(t *testing.T, tx *recordingTx, doctorID string) {
	t.Helper()
	if len(tx.stmts) == 0 {
		t.Fatalf("no statements ran")
	}
	if !strings.Contains(tx.stmts[0], "pg_advisory_xact_lock") {
		t.Fatalf("first statement = %q, want the doctor lock", tx.stmts[0])
	}
	for _, a := range tx.args[0] {
		if a == doctorID {
			return
		}
	}
	t.Fatalf("lock args = %v, want doctor %q", tx.args[0], doctorID)
}

func lockCount(tx *recordingTx) int {
	n := 0
	for _, s := range tx.stmts {
		if strings.Contains(s, "pg_advisory_xact_lock") {
			n++
		}
	}
	return n
}

func TestCreateBlock_LocksDoctorBeforeWriting(t *testing.T) {
	start := time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)
	block := model.ScheduleBlock{ID: "b1", DoctorID: "doc-1", Start: start, End: start.Add(time.Hour)}
	slots := []model.Slot{{ID: "s1", ScheduleID: "b1", DoctorID: "doc-1", Start: start, End: start.Add(30 * time.Minute), IsAvailable: true}}

	tx := &recordingTx{}
	if err := createBlock(context.Background(), tx, block, slots); err != nil {
		t.Fatalf("createBlock: %v", err)
	}
	assertLocksDoctorFirst(t, tx, "doc-1")
	if lockCount(tx) != 1 {
		t.Fatalf("lock taken %d times, want 1", lockCount(tx))
	}
	last := tx.stmts[len(tx.stmts)-1]
	if !strings.Contains(last, "slot_bookings") {
		t.Fatalf("last statement = %q, want the ledger-derived availability update", last)
	}
}

func TestUpdateBlock_LocksDoctorBeforeReadingBlock(t *testing.T) {
	start := time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)
	block := model.ScheduleBlock{ID: "b1", DoctorID: "doc-1", Start: start, End: start.Add(time.Hour)}

	tx := &recordingTx{}
	_, err := updateBlock(context.Background(), tx, block, nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	assertLocksDoctorFirst(t, tx, "doc-1")
	if len(tx.stmts) != 2 {
		t.Fatalf("ran %d statements, want lock and block read", len(tx.stmts))
	}
}

func TestApplyBooking_LocksDoctorBeforeLedger(t *testing.T) {
	change := model.BookingChange{
		EventID:       "evt-1",
		EventType:     "AppointmentCreated",
		AppointmentID: "appt-1",
		DoctorID:      "doc-1",
		Start:         time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC),
		State:         model.BookingBooked,
	}

	tx := &recordingTx{}
	out, err := applyBooking(context.Background(), tx, inbox.NewRepository(), change)
	if err != nil {
		t.Fatalf("applyBooking: %v", err)
	}
	if out.Duplicate || out.SlotFound {
		t.Fatalf("outcome = %+v, want fresh event with no slot", out)
	}
	assertLocksDoctorFirst(t, tx, "doc-1")
	if !strings.Contains(tx.stmts[1], "inbox_events") || !strings.Contains(tx.stmts[2], "slot_bookings") {
		t.Fatalf("statements after lock = %q, want inbox then ledger", tx.stmts[1:3])
	}
}
