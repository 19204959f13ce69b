package schedule

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicslots/libs/apperr"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/storage"
)

type fakeStore struct {
	blocks map[string]model.ScheduleBlock
	slots  map[string][]model.Slot
}

func newFakeStore() *fakeStore {
	return &fakeStore{blocks: map[string]model.ScheduleBlock{}, slots: map[string][]model.Slot{}}
}

func (f *fakeStore) CreateBlock(_ context.Context, b model.ScheduleBlock, s []model.Slot) error {
	f.blocks[b.ID] = b
	f.slots[b.ID] = s
	return nil
}

func (f *fakeStore) UpdateBlock(_ context.Context, b model.ScheduleBlock, s []model.Slot) (model.ScheduleBlock, error) {
	prev, ok := f.blocks[b.ID]
	if !ok {
		return model.ScheduleBlock{}, storage.ErrNotFound
	}
	f.blocks[b.ID] = b
	f.slots[b.ID] = s
	return prev, nil
}

func (f *fakeStore) DeleteBlock(_ context.Context, id string) (model.ScheduleBlock, error) {
	b, ok := f.blocks[id]
	if !ok {
		return model.ScheduleBlock{}, storage.ErrNotFound
	}
	delete(f.blocks, id)
	delete(f.slots, id)
	return b, nil
}

func (f *fakeStore) GetBlock(_ context.Context, id string) (model.ScheduleBlock, error) {
	b, ok := f.blocks[id]
	if !ok {
		return model.ScheduleBlock{}, storage.ErrNotFound
	}
	return b, nil
}

func (f *fakeStore) ListBlocks(_ context.Context, doctorID string) ([]model.ScheduleBlock, error) {
	var out []model.ScheduleBlock
	for _, b := range f.blocks {
		if b.DoctorID == doctorID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeStore) HasOverlap(_ context.Context, doctorID string, start, end time.Time, excludeID string) (bool, error) {
	for _, b := range f.blocks {
		if b.DoctorID == doctorID && b.ID != excludeID && b.Start.Before(end) && b.End.After(start) {
			return true, nil
		}
	}
	return false, nil
}

type fakeCache struct {
	invalidated []time.Time
}

func (c *fakeCache) GetSlots(context.Context, string, time.Time) ([]model.Slot, error) {
	return nil, nil
}

func (c *fakeCache) Invalidate(_ context.Context, _ string, days ...time.Time) {
	c.invalidated = append(c.invalidated, days...)
}

var day = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func newService() (*Service, *fakeStore, *fakeCache) {
	store := newFakeStore()
	cache := &fakeCache{}
	return NewService(store, cache, slog.New(slog.NewTextHandler(io.Discard, nil))), store, cache
}

func TestAddSchedule_GeneratesSlots(t *testing.T) {
	svc, store, cache := newService()

	block, err := svc.AddSchedule(context.Background(), "doctorA", day.Add(9*time.Hour), day.Add(10*time.Hour))
	if err != nil {
		t.Fatalf("add schedule: %v", err)
	}
	if got := store.slots[block.ID]; len(got) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(got))
	}
	if len(cache.invalidated) != 1 || !cache.invalidated[0].Equal(day) {
		t.Fatalf("expected invalidation of %s, got %v", day, cache.invalidated)
	}
}

func TestAddSchedule_Validation(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	cases := []struct {
		name       string
		doctor     string
		start, end time.Time
	}{
		{"missing doctor", "", day.Add(9 * time.Hour), day.Add(10 * time.Hour)},
		{"zero start", "doctorA", time.Time{}, day.Add(10 * time.Hour)},
		{"reversed", "doctorA", day.Add(10 * time.Hour), day.Add(9 * time.Hour)},
		{"equal", "doctorA", day.Add(9 * time.Hour), day.Add(9 * time.Hour)},
		{"shorter than a slot", "doctorA", day.Add(9 * time.Hour), day.Add(9*time.Hour + 20*time.Minute)},
	}
	for _, tc := range cases {
		if _, err := svc.AddSchedule(ctx, tc.doctor, tc.start, tc.end); apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestAddSchedule_RejectsIdenticalAndOverlapping(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	if _, err := svc.AddSchedule(ctx, "doctorA", day.Add(9*time.Hour), day.Add(10*time.Hour)); err != nil {
		t.Fatalf("add schedule: %v", err)
	}

	_, err := svc.AddSchedule(ctx, "doctorA", day.Add(9*time.Hour), day.Add(10*time.Hour))
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict for identical block, got %v", err)
	}
	_, err = svc.AddSchedule(ctx, "doctorA", day.Add(9*time.Hour+30*time.Minute), day.Add(11*time.Hour))
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict for overlapping block, got %v", err)
	}
	if _, err := svc.AddSchedule(ctx, "doctorB", day.Add(9*time.Hour), day.Add(10*time.Hour)); err != nil {
		t.Fatalf("other doctor must not conflict: %v", err)
	}
	if _, err := svc.AddSchedule(ctx, "doctorA", day.Add(10*time.Hour), day.Add(11*time.Hour)); err != nil {
		t.Fatalf("adjacent block must not conflict: %v", err)
	}
}

func TestAddSchedule_MapsStoreOverlap(t *testing.T) {
	svc, _, _ := newService()
	svc.store = overlapStore{newFakeStore()}
	_, err := svc.AddSchedule(context.Background(), "doctorA", day.Add(9*time.Hour), day.Add(10*time.Hour))
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict from store constraint, got %v", err)
	}
}

type overlapStore struct{ *fakeStore }

func (overlapStore) CreateBlock(context.Context, model.ScheduleBlock, []model.Slot) error {
	return storage.ErrOverlap
}

func TestUpdateSchedule_RegeneratesAndInvalidatesBothRanges(t *testing.T) {
	svc, store, cache := newService()
	ctx := context.Background()
	block, _ := svc.AddSchedule(ctx, "doctorA", day.Add(9*time.Hour), day.Add(10*time.Hour))
	cache.invalidated = nil

	next := day.AddDate(0, 0, 1)
	updated, err := svc.UpdateSchedule(ctx, block.ID, next.Add(9*time.Hour), next.Add(11*time.Hour))
	if err != nil {
		t.Fatalf("update schedule: %v", err)
	}
	if !updated.Start.Equal(next.Add(9 * time.Hour)) {
		t.Fatalf("unexpected start %s", updated.Start)
	}
	if got := store.slots[block.ID]; len(got) != 4 || !got[0].Start.Equal(updated.Start) {
		t.Fatalf("expected 4 regenerated slots, got %+v", got)
	}
	if len(cache.invalidated) != 2 || !cache.invalidated[0].Equal(day) || !cache.invalidated[1].Equal(next) {
		t.Fatalf("expected both days invalidated, got %v", cache.invalidated)
	}
}

func TestUpdateSchedule_IgnoresSelfOverlap(t *testing.T) {
	svc, _, _ := newService()
	ctx := context.Background()
	block, _ := svc.AddSchedule(ctx, "doctorA", day.Add(9*time.Hour), day.Add(10*time.Hour))
	if _, err := svc.UpdateSchedule(ctx, block.ID, day.Add(9*time.Hour), day.Add(11*time.Hour)); err != nil {
		t.Fatalf("extending a block must not conflict with itself: %v", err)
	}
}

func TestRemoveSchedule(t *testing.T) {
	svc, store, cache := newService()
	ctx := context.Background()
	block, _ := svc.AddSchedule(ctx, "doctorA", day.Add(9*time.Hour), day.Add(10*time.Hour))
	cache.invalidated = nil

	if err := svc.RemoveSchedule(ctx, block.ID); err != nil {
		t.Fatalf("remove schedule: %v", err)
	}
	if _, ok := store.slots[block.ID]; ok {
		t.Fatal("expected slots to be removed with the block")
	}
	if len(cache.invalidated) != 1 {
		t.Fatalf("expected invalidation, got %v", cache.invalidated)
	}
	if err := svc.RemoveSchedule(ctx, block.ID); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found on second remove, got %v", err)
	}
}

func TestGetSchedule_NotFound(t *testing.T) {
	svc, _, _ := newService()
	for _, id := range []string{"not-a-uuid", "6f1c1c4e-8a43-4c1e-9d0b-000000000000"} {
		if _, err := svc.GetSchedule(context.Background(), id); apperr.KindOf(err) != apperr.KindNotFound {
			t.Fatalf("%s: expected not found, got %v", id, err)
		}
	}
}

func TestSchedule_RejectsRangesOffWholeMinutes(t *testing.T) {
	svc, store, _ := newService()
	ctx := context.Background()

	cases := []struct {
		name       string
		start, end time.Time
	}{
		{"start seconds", day.Add(9*time.Hour + 30*time.Second), day.Add(10 * time.Hour)},
		{"end seconds", day.Add(9 * time.Hour), day.Add(10*time.Hour + 15*time.Second)},
		{"start nanos", day.Add(9*time.Hour + time.Nanosecond), day.Add(10 * time.Hour)},
	}
	for _, tc := range cases {
		if _, err := svc.AddSchedule(ctx, "doctorA", tc.start, tc.end); apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("add %s: expected validation error, got %v", tc.name, err)
		}
	}
	if len(store.blocks) != 0 {
		t.Fatalf("expected nothing stored, got %d blocks", len(store.blocks))
	}

	block, err := svc.AddSchedule(ctx, "doctorA", day.Add(9*time.Hour), day.Add(10*time.Hour))
	if err != nil {
		t.Fatalf("add aligned schedule: %v", err)
	}
	for _, tc := range cases {
		if _, err := svc.UpdateSchedule(ctx, block.ID, tc.start, tc.end); apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("update %s: expected validation error, got %v", tc.name, err)
		}
	}
	got, _ := svc.GetSchedule(ctx, block.ID)
	if !got.Start.Equal(day.Add(9 * time.Hour)) {
		t.Fatalf("rejected update changed the block: %+v", got)
	}
}
