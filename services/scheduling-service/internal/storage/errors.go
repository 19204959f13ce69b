package storage

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrOverlap is returned when a schedule block collides with another
	// block of the same doctor.
	ErrOverlap = errors.New("schedule block overlaps an existing block")
)

const (
	constraintBlockRange   = "schedule_blocks_doctor_range_uq"
	constraintBlockOverlap = "schedule_blocks_no_overlap"
	constraintSlotStart    = "slots_doctor_start_uq"
)
