package model

import "time"

// ScheduleBlock is a doctor-declared availability window [Start, End).
type ScheduleBlock struct {
	ID        string
	DoctorID  string
	Start     time.Time
	End       time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Slot is one bookable interval generated from a ScheduleBlock.
type Slot struct {
	ID          string    `json:"id"`
	ScheduleID  string    `json:"scheduleId"`
	DoctorID    string    `json:"doctorId"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	IsAvailable bool      `json:"isAvailable"`
}
