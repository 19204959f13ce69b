package model

import "time"

type Status string

const (
	StatusApproved  Status = "APPROVED"
	StatusCancelled Status = "CANCELLED"
)

type Appointment struct {
	ID                string
	DoctorID          string
	PatientID         string
	FullName          string
	Email             string
	AppointmentTime   time.Time
	Status            Status
	AppointmentNumber string
	Notes             string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CancelledAt       *time.Time
}
