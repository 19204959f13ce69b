package slots

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/model"
)

func TestGenerate_Tiles(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	block := model.ScheduleBlock{ID: "b1", DoctorID: "doctorA", Start: day.Add(9 * time.Hour), End: day.Add(10 * time.Hour)}

	got := Generate(block)
	if len(got) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(got))
	}
	if !got[0].Start.Equal(block.Start) || !got[1].End.Equal(block.End) {
		t.Fatalf("slots do not cover the block: %+v", got)
	}
	for i, s := range got {
		if s.End.Sub(s.Start) != Length {
			t.Fatalf("slot %d has length %s", i, s.End.Sub(s.Start))
		}
		if i > 0 && !got[i-1].End.Equal(s.Start) {
			t.Fatalf("slot %d is not contiguous", i)
		}
		if !s.IsAvailable || s.ScheduleID != "b1" || s.DoctorID != "doctorA" || s.ID == "" {
			t.Fatalf("unexpected slot %+v", s)
		}
	}
}

func TestGenerate_TruncatesRemainder(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	block := model.ScheduleBlock{Start: day.Add(9 * time.Hour), End: day.Add(10*time.Hour + 20*time.Minute)}

	got := Generate(block)
	if len(got) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(got))
	}
	if !got[1].End.Equal(day.Add(10 * time.Hour)) {
		t.Fatalf("expected last slot to end at 10:00, got %s", got[1].End)
	}
}

func TestGenerate_ShorterThanSlot(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	if got := Generate(model.ScheduleBlock{Start: day, End: day.Add(20 * time.Minute)}); len(got) != 0 {
		t.Fatalf("expected no slots, got %d", len(got))
	}
}

func TestGenerate_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+6", 6*3600)
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, loc)
	got := Generate(model.ScheduleBlock{Start: start, End: start.Add(time.Hour)})
	if got[0].Start.Location() != time.UTC || got[0].Start.Hour() != 3 {
		t.Fatalf("expected UTC start 03:00, got %s", got[0].Start)
	}
}

func TestDays(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	if got := Days(day.Add(9*time.Hour), day.Add(10*time.Hour)); len(got) != 1 || !got[0].Equal(day) {
		t.Fatalf("expected single day, got %v", got)
	}
	// A block ending exactly at midnight does not touch the next day.
	if got := Days(day.Add(22*time.Hour), day.AddDate(0, 0, 1)); len(got) != 1 {
		t.Fatalf("expected one day, got %v", got)
	}
	if got := Days(day.Add(23*time.Hour), day.AddDate(0, 0, 1).Add(time.Hour)); len(got) != 2 {
		t.Fatalf("expected two days, got %v", got)
	}
}
