package schedule

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicslots/libs/apperr"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/slots"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/storage"
)

type Store interface {
	CreateBlock(ctx context.Context, block model.ScheduleBlock, slots []model.Slot) error
	UpdateBlock(ctx context.Context, block model.ScheduleBlock, slots []model.Slot) (model.ScheduleBlock, error)
	DeleteBlock(ctx context.Context, id string) (model.ScheduleBlock, error)
	GetBlock(ctx context.Context, id string) (model.ScheduleBlock, error)
	ListBlocks(ctx context.Context, doctorID string) ([]model.ScheduleBlock, error)
	HasOverlap(ctx context.Context, doctorID string, start, end time.Time, excludeID string) (bool, error)
}

// Availability is the read side and invalidation hook of the slot cache.
type Availability interface {
	GetSlots(ctx context.Context, doctorID string, day time.Time) ([]model.Slot, error)
	Invalidate(ctx context.Context, doctorID string, days ...time.Time)
}

var (
	errOverlap      = apperr.Conflict("schedule block overlaps an existing block")
	errNotFound     = apperr.NotFound("schedule not found")
	errMissingRange = apperr.Validation("start and end are required")
	errBadRange     = apperr.Validation("start must be before end")
	errTooShort     = apperr.Validation("schedule block is shorter than one slot")
	errNotAligned   = apperr.Validation("start and end must fall on whole minutes")
)

type Service struct {
	store  Store
	cache  Availability
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, cache Availability, logger *slog.Logger) *Service {
	return &Service{store: store, cache: cache, logger: logger, now: time.Now}
}

// AddSchedule creates a block and its slots.
func (s *Service) AddSchedule(ctx context.Context, doctorID string, start, end time.Time) (model.ScheduleBlock, error) {
	doctorID = strings.TrimSpace(doctorID)
	if doctorID == "" {
		return model.ScheduleBlock{}, apperr.Validation("doctorId is required")
	}
	start, end, err := validateRange(start, end)
	if err != nil {
		return model.ScheduleBlock{}, err
	}
	if err := s.checkOverlap(ctx, doctorID, start, end, ""); err != nil {
		return model.ScheduleBlock{}, err
	}

	now := s.now().UTC()
	block := model.ScheduleBlock{
		ID:        uuid.NewString(),
		DoctorID:  doctorID,
		Start:     start,
		End:       end,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateBlock(ctx, block, slots.Generate(block)); err != nil {
		return model.ScheduleBlock{}, s.mapStoreErr(err)
	}
	s.cache.Invalidate(ctx, doctorID, slots.Days(start, end)...)
	s.logger.Info("schedule block created", "schedule_id", block.ID, "doctor_id", doctorID)
	return block, nil
}

// UpdateSchedule moves a block to a new range and regenerates its slots.
// Slot availability is re-derived from the bookings already seen.
func (s *Service) UpdateSchedule(ctx context.Context, id string, start, end time.Time) (model.ScheduleBlock, error) {
	start, end, err := validateRange(start, end)
	if err != nil {
		return model.ScheduleBlock{}, err
	}
	cur, err := s.GetSchedule(ctx, id)
	if err != nil {
		return model.ScheduleBlock{}, err
	}
	if err := s.checkOverlap(ctx, cur.DoctorID, start, end, cur.ID); err != nil {
		return model.ScheduleBlock{}, err
	}

	next := cur
	next.Start, next.End = start, end
	next.UpdatedAt = s.now().UTC()
	prev, err := s.store.UpdateBlock(ctx, next, slots.Generate(next))
	if err != nil {
		return model.ScheduleBlock{}, s.mapStoreErr(err)
	}
	days := append(slots.Days(prev.Start, prev.End), slots.Days(start, end)...)
	s.cache.Invalidate(ctx, cur.DoctorID, days...)
	s.logger.Info("schedule block updated", "schedule_id", id, "doctor_id", cur.DoctorID)
	return next, nil
}

// RemoveSchedule deletes a block and, with it, its slots.
func (s *Service) RemoveSchedule(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errNotFound
	}
	block, err := s.store.DeleteBlock(ctx, id)
	if err != nil {
		return s.mapStoreErr(err)
	}
	s.cache.Invalidate(ctx, block.DoctorID, slots.Days(block.Start, block.End)...)
	s.logger.Info("schedule block removed", "schedule_id", id, "doctor_id", block.DoctorID)
	return nil
}

func (s *Service) GetSchedule(ctx context.Context, id string) (model.ScheduleBlock, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.ScheduleBlock{}, errNotFound
	}
	block, err := s.store.GetBlock(ctx, id)
	if err != nil {
		return model.ScheduleBlock{}, s.mapStoreErr(err)
	}
	return block, nil
}

func (s *Service) ListSchedules(ctx context.Context, doctorID string) ([]model.ScheduleBlock, error) {
	doctorID = strings.TrimSpace(doctorID)
	if doctorID == "" {
		return nil, apperr.Validation("doctorId is required")
	}
	return s.store.ListBlocks(ctx, doctorID)
}

// GetSlots returns the doctor's slots for one UTC day, served through the cache.
func (s *Service) GetSlots(ctx context.Context, doctorID string, day time.Time) ([]model.Slot, error) {
	doctorID = strings.TrimSpace(doctorID)
	if doctorID == "" {
		return nil, apperr.Validation("doctorId is required")
	}
	if day.IsZero() {
		return nil, apperr.Validation("date is required")
	}
	return s.cache.GetSlots(ctx, doctorID, day)
}

func (s *Service) checkOverlap(ctx context.Context, doctorID string, start, end time.Time, excludeID string) error {
	overlap, err := s.store.HasOverlap(ctx, doctorID, start, end, excludeID)
	if err != nil {
		return err
	}
	if overlap {
		return errOverlap
	}
	return nil
}

func (s *Service) mapStoreErr(err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return errNotFound
	case errors.Is(err, storage.ErrOverlap):
		return apperr.Wrap(errOverlap, err)
	default:
		return err
	}
}

func validateRange(start, end time.Time) (time.Time, time.Time, error) {
	if start.IsZero() || end.IsZero() {
		return start, end, errMissingRange
	}
	start, end = start.UTC(), end.UTC()
	// Bookings are keyed by minute; a slot starting mid-minute never matches one.
	if !start.Equal(start.Truncate(time.Minute)) || !end.Equal(end.Truncate(time.Minute)) {
		return start, end, errNotAligned
	}
	if !start.Before(end) {
		return start, end, errBadRange
	}
	if end.Sub(start) < slots.Length {
		return start, end, errTooShort
	}
	return start, end, nil
}
