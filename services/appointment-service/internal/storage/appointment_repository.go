package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicslots/libs/db"
	"github.com/md-rashed-zaman/clinicslots/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/clinicslots/services/appointment-service/internal/outbox"
)

var (
	ErrNotFound = errors.New("appointment not found")
	// ErrSlotTaken means another active appointment holds (doctor, time).
	ErrSlotTaken = errors.New("slot already taken")
)

const constraintActiveSlot = "appointments_active_slot_uq"

// EventBuilder renders the outbox event for a stored appointment.
type EventBuilder func(model.Appointment) (outbox.Event, error)

type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: outboxRepo}
}

const appointmentColumns = `id, doctor_id, patient_id, full_name, email, appointment_time, status,
	appointment_number, notes, created_at, updated_at, cancelled_at`

// FindActive reports whether a non-cancelled appointment exists for doctorID at t.
func (r *AppointmentRepository) FindActive(ctx context.Context, doctorID string, t time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND appointment_time = $2 AND status <> 'CANCELLED'
		)
	`, doctorID, t).Scan(&exists)
	return exists, err
}

// Create assigns the appointment number and stores appt and its event in
// one transaction. The partial unique index is the final word on races.
func (r *AppointmentRepository) Create(ctx context.Context, appt model.Appointment, build EventBuilder) (model.Appointment, error) {
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var seq int64
		if err := tx.QueryRow(ctx, `SELECT nextval('appointment_number_seq')`).Scan(&seq); err != nil {
			return fmt.Errorf("next appointment number: %w", err)
		}
		appt.AppointmentNumber = fmt.Sprintf("APT-%s-%06d", appt.CreatedAt.UTC().Format("20060102"), seq)

		_, err := tx.Exec(ctx, `
			INSERT INTO appointments
				(id, doctor_id, patient_id, full_name, email, appointment_time, status, appointment_number, notes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		`, appt.ID, appt.DoctorID, appt.PatientID, appt.FullName, appt.Email, appt.AppointmentTime,
			string(appt.Status), appt.AppointmentNumber, appt.Notes, appt.CreatedAt)
		if err != nil {
			if db.IsUniqueViolation(err, constraintActiveSlot) {
				return ErrSlotTaken
			}
			return err
		}
		appt.UpdatedAt = appt.CreatedAt

		evt, err := build(appt)
		if err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// Cancel moves an appointment to CANCELLED and stores its event. An
// appointment that is already cancelled is returned as is with changed=false
// and no event.
func (r *AppointmentRepository) Cancel(ctx context.Context, id string, now time.Time, build EventBuilder) (appt model.Appointment, changed bool, err error) {
	err = r.pool.InTx(ctx, func(tx pgx.Tx) error {
		appt, err = scanAppointment(tx.QueryRow(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE id = $1
			FOR UPDATE
		`, id))
		if err != nil {
			return err
		}
		if appt.Status == model.StatusCancelled {
			return nil
		}

		appt, err = scanAppointment(tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = 'CANCELLED', cancelled_at = $2, updated_at = $2
			WHERE id = $1
			RETURNING `+appointmentColumns, id, now))
		if err != nil {
			return err
		}
		changed = true

		evt, err := build(appt)
		if err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
	if err != nil {
		return model.Appointment{}, false, err
	}
	return appt, changed, nil
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	return scanAppointment(r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id))
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status string
	err := row.Scan(&a.ID, &a.DoctorID, &a.PatientID, &a.FullName, &a.Email, &a.AppointmentTime, &status,
		&a.AppointmentNumber, &a.Notes, &a.CreatedAt, &a.UpdatedAt, &a.CancelledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Appointment{}, ErrNotFound
		}
		return model.Appointment{}, err
	}
	a.Status = model.Status(status)
	a.AppointmentTime = a.AppointmentTime.UTC()
	a.CreatedAt, a.UpdatedAt = a.CreatedAt.UTC(), a.UpdatedAt.UTC()
	if a.CancelledAt != nil {
		t := a.CancelledAt.UTC()
		a.CancelledAt = &t
	}
	return a, nil
}
