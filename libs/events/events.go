// Package events is the wire contract between appointment-service and
// scheduling-service. Both sides decode with these types only.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	TypeAppointmentCreated   = "appointment-created"
	TypeAppointmentCancelled = "appointment-cancelled"
)

// DeadLetterSuffix names the parking queue/topic of a subscription.
const DeadLetterSuffix = ".dlq"

// Header keys carried next to the payload on both transports.
const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
)

type AppointmentCreated struct {
	ID                string    `json:"id"`
	DoctorID          string    `json:"doctorId"`
	PatientID         string    `json:"patientId,omitempty"`
	AppointmentTime   time.Time `json:"appointmentTime"`
	AppointmentNumber string    `json:"appointmentNumber"`
	FullName          string    `json:"fullName"`
	Email             string    `json:"email"`
	Notes             string    `json:"notes,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

type AppointmentCancelled struct {
	ID                string    `json:"id"`
	DoctorID          string    `json:"doctorId"`
	PatientID         string    `json:"patientId,omitempty"`
	AppointmentTime   time.Time `json:"appointmentTime"`
	AppointmentNumber string    `json:"appointmentNumber"`
	FullName          string    `json:"fullName"`
	Email             string    `json:"email"`
	CancelledAt       time.Time `json:"cancelledAt"`
}

// SlotRef is what the slot synchronizer needs from either event.
type SlotRef struct {
	AppointmentID   string
	DoctorID        string
	AppointmentTime time.Time
}

var ErrMalformed = errors.New("malformed event")

// DecodeSlotRef extracts the slot locating fields from a created or
// cancelled payload. Errors wrap ErrMalformed so consumers can treat them
// as permanent.
func DecodeSlotRef(eventType string, payload []byte) (SlotRef, error) {
	var ref SlotRef
	switch eventType {
	case TypeAppointmentCreated:
		var evt AppointmentCreated
		if err := json.Unmarshal(payload, &evt); err != nil {
			return SlotRef{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		ref = SlotRef{AppointmentID: evt.ID, DoctorID: evt.DoctorID, AppointmentTime: evt.AppointmentTime}
	case TypeAppointmentCancelled:
		var evt AppointmentCancelled
		if err := json.Unmarshal(payload, &evt); err != nil {
			return SlotRef{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		ref = SlotRef{AppointmentID: evt.ID, DoctorID: evt.DoctorID, AppointmentTime: evt.AppointmentTime}
	default:
		return SlotRef{}, fmt.Errorf("%w: unknown event type %q", ErrMalformed, eventType)
	}
	if ref.AppointmentID == "" || ref.DoctorID == "" || ref.AppointmentTime.IsZero() {
		return SlotRef{}, fmt.Errorf("%w: missing id, doctorId or appointmentTime", ErrMalformed)
	}
	ref.AppointmentTime = ref.AppointmentTime.UTC()
	return ref, nil
}
