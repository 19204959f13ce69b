// Package booking creates and cancels appointments. Every state change is
// stored together with its outgoing event.
package booking

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicslots/libs/apperr"
	"github.com/md-rashed-zaman/clinicslots/libs/events"
	"github.com/md-rashed-zaman/clinicslots/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/clinicslots/services/appointment-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicslots/services/appointment-service/internal/storage"
)

type Store interface {
	FindActive(ctx context.Context, doctorID string, t time.Time) (bool, error)
	Create(ctx context.Context, appt model.Appointment, build storage.EventBuilder) (model.Appointment, error)
	Cancel(ctx context.Context, id string, now time.Time, build storage.EventBuilder) (model.Appointment, bool, error)
	Get(ctx context.Context, id string) (model.Appointment, error)
}

type CreateRequest struct {
	DoctorID        string
	PatientID       string
	FullName        string
	Email           string
	AppointmentTime time.Time
	Notes           string
}

var (
	errSlotTaken = apperr.Conflict("slot already taken")
	errNotFound  = apperr.NotFound("appointment not found")
)

const aggregateType = "appointment"

type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

func (s *Service) CreateAppointment(ctx context.Context, req CreateRequest) (model.Appointment, error) {
	req, err := normalize(req)
	if err != nil {
		return model.Appointment{}, err
	}

	taken, err := s.store.FindActive(ctx, req.DoctorID, req.AppointmentTime)
	if err != nil {
		return model.Appointment{}, err
	}
	if taken {
		return model.Appointment{}, errSlotTaken
	}

	appt := model.Appointment{
		ID:              uuid.NewString(),
		DoctorID:        req.DoctorID,
		PatientID:       req.PatientID,
		FullName:        req.FullName,
		Email:           req.Email,
		AppointmentTime: req.AppointmentTime,
		Status:          model.StatusApproved,
		Notes:           req.Notes,
		CreatedAt:       s.now().UTC(),
	}
	created, err := s.store.Create(ctx, appt, createdEvent)
	if err != nil {
		if errors.Is(err, storage.ErrSlotTaken) {
			return model.Appointment{}, apperr.Wrap(errSlotTaken, err)
		}
		return model.Appointment{}, err
	}
	s.logger.Info("appointment created",
		"appointment_id", created.ID, "appointment_number", created.AppointmentNumber,
		"doctor_id", created.DoctorID, "appointment_time", created.AppointmentTime)
	return created, nil
}

// CancelAppointment is idempotent: cancelling a cancelled appointment
// returns it unchanged and emits nothing.
func (s *Service) CancelAppointment(ctx context.Context, id string) (model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Appointment{}, errNotFound
	}
	appt, changed, err := s.store.Cancel(ctx, id, s.now().UTC(), cancelledEvent)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Appointment{}, errNotFound
		}
		return model.Appointment{}, err
	}
	if changed {
		s.logger.Info("appointment cancelled", "appointment_id", appt.ID, "doctor_id", appt.DoctorID)
	}
	return appt, nil
}

func (s *Service) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Appointment{}, errNotFound
	}
	appt, err := s.store.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Appointment{}, errNotFound
	}
	return appt, err
}

func normalize(req CreateRequest) (CreateRequest, error) {
	req.DoctorID = strings.TrimSpace(req.DoctorID)
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.TrimSpace(req.Email)
	req.Notes = strings.TrimSpace(req.Notes)

	switch {
	case req.DoctorID == "":
		return req, apperr.Validation("doctorId is required")
	case req.AppointmentTime.IsZero():
		return req, apperr.Validation("appointmentTime is required")
	case req.FullName == "":
		return req, apperr.Validation("fullName is required")
	case req.Email == "":
		return req, apperr.Validation("email is required")
	}
	if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != req.Email {
		return req, apperr.Validation("email is not a valid address")
	}
	req.AppointmentTime = req.AppointmentTime.UTC().Truncate(time.Minute)
	return req, nil
}

func createdEvent(a model.Appointment) (outbox.Event, error) {
	payload, err := json.Marshal(events.AppointmentCreated{
		ID:                a.ID,
		DoctorID:          a.DoctorID,
		PatientID:         a.PatientID,
		AppointmentTime:   a.AppointmentTime,
		AppointmentNumber: a.AppointmentNumber,
		FullName:          a.FullName,
		Email:             a.Email,
		Notes:             a.Notes,
		CreatedAt:         a.CreatedAt,
	})
	if err != nil {
		return outbox.Event{}, err
	}
	return outbox.Event{AggregateType: aggregateType, AggregateID: a.ID, EventType: events.TypeAppointmentCreated, Payload: payload}, nil
}

func cancelledEvent(a model.Appointment) (outbox.Event, error) {
	var cancelledAt time.Time
	if a.CancelledAt != nil {
		cancelledAt = *a.CancelledAt
	}
	payload, err := json.Marshal(events.AppointmentCancelled{
		ID:                a.ID,
		DoctorID:          a.DoctorID,
		PatientID:         a.PatientID,
		AppointmentTime:   a.AppointmentTime,
		AppointmentNumber: a.AppointmentNumber,
		FullName:          a.FullName,
		Email:             a.Email,
		CancelledAt:       cancelledAt,
	})
	if err != nil {
		return outbox.Event{}, err
	}
	return outbox.Event{AggregateType: aggregateType, AggregateID: a.ID, EventType: events.TypeAppointmentCancelled, Payload: payload}, nil
}
