// Package slots expands schedule blocks into fixed-length bookable slots.
package slots

import (
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/model"
)

// Length is the fixed duration of every generated slot.
const Length = 30 * time.Minute

// Generate tiles [block.Start, block.End) with contiguous slots of Length.
// A trailing remainder shorter than Length produces no slot.
// All generated slots start out available.
func Generate(block model.ScheduleBlock) []model.Slot {
	start := block.Start.UTC()
	end := block.End.UTC()
	if !end.After(start) {
		return nil
	}

	var out []model.Slot
	for t := start; !t.Add(Length).After(end); t = t.Add(Length) {
		out = append(out, model.Slot{
			ID:          uuid.NewString(),
			ScheduleID:  block.ID,
			DoctorID:    block.DoctorID,
			Start:       t,
			End:         t.Add(Length),
			IsAvailable: true,
		})
	}
	return out
}

// Days returns the UTC calendar days (at midnight) that [start, end) touches.
func Days(start, end time.Time) []time.Time {
	start, end = start.UTC(), end.UTC()
	if !end.After(start) {
		return nil
	}
	last := DayOf(end.Add(-time.Nanosecond))
	var out []time.Time
	for d := DayOf(start); !d.After(last); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// DayOf truncates t to midnight UTC.
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
