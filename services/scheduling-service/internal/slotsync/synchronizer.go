// Package slotsync keeps slot availability in step with appointment events.
package slotsync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicslots/libs/events"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/slots"
)

type Store interface {
	ApplyBooking(ctx context.Context, change model.BookingChange) (model.BookingOutcome, error)
}

type Invalidator interface {
	Invalidate(ctx context.Context, doctorID string, days ...time.Time)
}

type Synchronizer struct {
	store  Store
	cache  Invalidator
	logger *slog.Logger
}

func New(store Store, cache Invalidator, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{store: store, cache: cache, logger: logger}
}

// Handle applies one appointment-created or appointment-cancelled event.
// Undecodable payloads return an error wrapping events.ErrMalformed.
// Redelivery of an already applied event is a no-op.
func (s *Synchronizer) Handle(ctx context.Context, eventID, eventType string, payload []byte) error {
	ref, err := events.DecodeSlotRef(eventType, payload)
	if err != nil {
		return err
	}
	if eventID == "" {
		return fmt.Errorf("%w: missing event id", events.ErrMalformed)
	}

	state := model.BookingBooked
	if eventType == events.TypeAppointmentCancelled {
		state = model.BookingCancelled
	}
	change := model.BookingChange{
		EventID:       eventID,
		EventType:     eventType,
		AppointmentID: ref.AppointmentID,
		DoctorID:      ref.DoctorID,
		Start:         ref.AppointmentTime,
		State:         state,
	}

	out, err := s.store.ApplyBooking(ctx, change)
	if err != nil {
		return fmt.Errorf("apply %s for appointment %s: %w", eventType, ref.AppointmentID, err)
	}
	if out.Duplicate {
		s.logger.Info("duplicate event ignored", "event_id", eventID, "event_type", eventType)
		return nil
	}

	// Invalidate even when nothing flipped: the entry may have been
	// populated from a read that predates an earlier commit.
	s.cache.Invalidate(ctx, ref.DoctorID, slots.DayOf(ref.AppointmentTime))

	switch {
	case !out.SlotFound:
		s.logger.Info("no slot for appointment, booking recorded",
			"event_id", eventID, "appointment_id", ref.AppointmentID, "doctor_id", ref.DoctorID,
			"appointment_time", ref.AppointmentTime)
	case out.Changed:
		s.logger.Info("slot availability updated",
			"event_id", eventID, "doctor_id", ref.DoctorID, "start", ref.AppointmentTime, "available", out.Available)
	}
	return nil
}
