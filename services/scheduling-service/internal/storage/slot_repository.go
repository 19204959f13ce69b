package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicslots/libs/db"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/inbox"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/model"
)

type SlotRepository struct {
	pool  *db.Pool
	inbox *inbox.Repository
}

func NewSlotRepository(pool *db.Pool, inboxRepo *inbox.Repository) *SlotRepository {
	return &SlotRepository{pool: pool, inbox: inboxRepo}
}

// ListSlots returns the doctor's slots starting within [from, to), ordered by start.
func (r *SlotRepository) ListSlots(ctx context.Context, doctorID string, from, to time.Time) ([]model.Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, schedule_id, doctor_id, start_time, end_time, is_available
		FROM slots
		WHERE doctor_id = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY start_time
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Slot{}
	for rows.Next() {
		var s model.Slot
		if err := rows.Scan(&s.ID, &s.ScheduleID, &s.DoctorID, &s.Start, &s.End, &s.IsAvailable); err != nil {
			return nil, err
		}
		s.Start, s.End = s.Start.UTC(), s.End.UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// ApplyBooking records one appointment event and brings the matching slot
// in line with the booking ledger, all in one transaction.
//
// The slot is available iff no ledger row for (doctor, start) is booked.
// cancelled is terminal for an appointment id, so applying created and
// cancelled in either order ends in the same state.
func (r *SlotRepository) ApplyBooking(ctx context.Context, change model.BookingChange) (model.BookingOutcome, error) {
	var out model.BookingOutcome
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		out, err = applyBooking(ctx, tx, r.inbox, change)
		return err
	})
	if err != nil {
		return model.BookingOutcome{}, err
	}
	return out, nil
}

func applyBooking(ctx context.Context, tx pgx.Tx, inboxRepo *inbox.Repository, change model.BookingChange) (model.BookingOutcome, error) {
	var out model.BookingOutcome
	if err := lockDoctor(ctx, tx, change.DoctorID); err != nil {
		return out, err
	}

	fresh, err := inboxRepo.Record(ctx, tx, change.EventID, change.EventType)
	if err != nil {
		return out, fmt.Errorf("inbox record: %w", err)
	}
	if !fresh {
		out.Duplicate = true
		return out, nil
	}

	if err := upsertLedger(ctx, tx, change); err != nil {
		return out, fmt.Errorf("booking ledger: %w", err)
	}

	var slotID string
	var available bool
	err = tx.QueryRow(ctx, `
		SELECT id, is_available
		FROM slots
		WHERE doctor_id = $1 AND start_time = $2
		FOR UPDATE
	`, change.DoctorID, change.Start).Scan(&slotID, &available)
	if errors.Is(err, pgx.ErrNoRows) {
		return out, nil
	}
	if err != nil {
		return out, err
	}
	out.SlotFound = true
	out.Available = available

	// Only writes when the derived value differs from the stored one.
	err = tx.QueryRow(ctx, `
		UPDATE slots s
		SET is_available = d.available
		FROM (
			SELECT NOT EXISTS (
				SELECT 1 FROM slot_bookings
				WHERE doctor_id = $2 AND start_time = $3 AND state = 'booked'
			) AS available
		) d
		WHERE s.id = $1 AND s.is_available IS DISTINCT FROM d.available
		RETURNING s.is_available
	`, slotID, change.DoctorID, change.Start).Scan(&out.Available)
	if errors.Is(err, pgx.ErrNoRows) {
		return out, nil
	}
	if err != nil {
		return out, err
	}
	out.Changed = true
	return out, nil
}

func upsertLedger(ctx context.Context, tx pgx.Tx, change model.BookingChange) error {
	switch change.State {
	case model.BookingBooked:
		_, err := tx.Exec(ctx, `
			INSERT INTO slot_bookings (appointment_id, doctor_id, start_time, state)
			VALUES ($1, $2, $3, 'booked')
			ON CONFLICT (appointment_id) DO NOTHING
		`, change.AppointmentID, change.DoctorID, change.Start)
		return err
	case model.BookingCancelled:
		_, err := tx.Exec(ctx, `
			INSERT INTO slot_bookings (appointment_id, doctor_id, start_time, state)
			VALUES ($1, $2, $3, 'cancelled')
			ON CONFLICT (appointment_id) DO UPDATE
			SET state = 'cancelled', updated_at = now()
		`, change.AppointmentID, change.DoctorID, change.Start)
		return err
	default:
		return fmt.Errorf("unknown booking state %q", change.State)
	}
}
