package model

import "time"

type BookingState string

const (
	BookingBooked    BookingState = "booked"
	BookingCancelled BookingState = "cancelled"
)

// BookingChange is one appointment event as seen by the slot store.
type BookingChange struct {
	EventID       string
	EventType     string
	AppointmentID string
	DoctorID      string
	Start         time.Time
	State         BookingState
}

// BookingOutcome reports what applying a BookingChange did.
type BookingOutcome struct {
	// Duplicate is set when the event id was already processed; nothing else ran.
	Duplicate bool
	// SlotFound is false when no slot exists at (DoctorID, Start) yet.
	SlotFound bool
	// Changed is set when the slot's availability flipped.
	Changed   bool
	Available bool
}
