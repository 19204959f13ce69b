package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicslots/libs/db"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/model"
)

type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

// CreateBlock stores block and its slots in one transaction, then derives
// slot availability from bookings that may have arrived before the block.
func (r *ScheduleRepository) CreateBlock(ctx context.Context, block model.ScheduleBlock, slots []model.Slot) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		return createBlock(ctx, tx, block, slots)
	})
}

// UpdateBlock moves block to its new range and replaces its slots. It
// returns the block as it was before the update.
func (r *ScheduleRepository) UpdateBlock(ctx context.Context, block model.ScheduleBlock, slots []model.Slot) (model.ScheduleBlock, error) {
	var prev model.ScheduleBlock
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		prev, err = updateBlock(ctx, tx, block, slots)
		return err
	})
	if err != nil {
		return model.ScheduleBlock{}, err
	}
	return prev, nil
}

func createBlock(ctx context.Context, tx pgx.Tx, block model.ScheduleBlock, slots []model.Slot) error {
	if err := lockDoctor(ctx, tx, block.DoctorID); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO schedule_blocks (id, doctor_id, start_time, end_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, block.ID, block.DoctorID, block.Start, block.End, block.CreatedAt, block.UpdatedAt)
	if err != nil {
		return mapBlockErr(err)
	}
	return insertSlots(ctx, tx, block.ID, slots)
}

// updateBlock expects block.DoctorID to be the stored owner; blocks never
// change doctor.
func updateBlock(ctx context.Context, tx pgx.Tx, block model.ScheduleBlock, slots []model.Slot) (model.ScheduleBlock, error) {
	if err := lockDoctor(ctx, tx, block.DoctorID); err != nil {
		return model.ScheduleBlock{}, err
	}
	prev, err := scanBlock(tx.QueryRow(ctx, `
		SELECT id, doctor_id, start_time, end_time, created_at, updated_at
		FROM schedule_blocks
		WHERE id = $1
		FOR UPDATE
	`, block.ID))
	if err != nil {
		return model.ScheduleBlock{}, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM slots WHERE schedule_id = $1`, block.ID); err != nil {
		return model.ScheduleBlock{}, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE schedule_blocks
		SET start_time = $2, end_time = $3, updated_at = $4
		WHERE id = $1
	`, block.ID, block.Start, block.End, block.UpdatedAt)
	if err != nil {
		return model.ScheduleBlock{}, mapBlockErr(err)
	}
	if err := insertSlots(ctx, tx, block.ID, slots); err != nil {
		return model.ScheduleBlock{}, err
	}
	return prev, nil
}

// DeleteBlock removes the block; its slots go with it (ON DELETE CASCADE).
func (r *ScheduleRepository) DeleteBlock(ctx context.Context, id string) (model.ScheduleBlock, error) {
	block, err := scanBlock(r.pool.QueryRow(ctx, `
		DELETE FROM schedule_blocks
		WHERE id = $1
		RETURNING id, doctor_id, start_time, end_time, created_at, updated_at
	`, id))
	if err != nil {
		return model.ScheduleBlock{}, err
	}
	return block, nil
}

func (r *ScheduleRepository) GetBlock(ctx context.Context, id string) (model.ScheduleBlock, error) {
	return scanBlock(r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, start_time, end_time, created_at, updated_at
		FROM schedule_blocks
		WHERE id = $1
	`, id))
}

func (r *ScheduleRepository) ListBlocks(ctx context.Context, doctorID string) ([]model.ScheduleBlock, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, doctor_id, start_time, end_time, created_at, updated_at
		FROM schedule_blocks
		WHERE doctor_id = $1
		ORDER BY start_time
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ScheduleBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// HasOverlap reports whether another block of doctorID intersects
// [start, end). excludeID skips the block being updated.
func (r *ScheduleRepository) HasOverlap(ctx context.Context, doctorID string, start, end time.Time, excludeID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM schedule_blocks
			WHERE doctor_id = $1
				AND start_time < $3
				AND end_time > $2
				AND ($4 = '' OR id::text <> $4)
		)
	`, doctorID, start, end, excludeID).Scan(&exists)
	return exists, err
}

func insertSlots(ctx context.Context, tx pgx.Tx, scheduleID string, slots []model.Slot) error {
	if len(slots) > 0 {
		rows := make([][]any, 0, len(slots))
		for _, s := range slots {
			rows = append(rows, []any{s.ID, s.ScheduleID, s.DoctorID, s.Start, s.End, s.IsAvailable})
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"slots"},
			[]string{"id", "schedule_id", "doctor_id", "start_time", "end_time", "is_available"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			if db.IsUniqueViolation(err, constraintSlotStart) {
				return ErrOverlap
			}
			return fmt.Errorf("copy slots: %w", err)
		}
	}
	// Bookings may predate the block.
	_, err := tx.Exec(ctx, `
		UPDATE slots s
		SET is_available = false
		WHERE s.schedule_id = $1
			AND EXISTS (
				SELECT 1 FROM slot_bookings b
				WHERE b.doctor_id = s.doctor_id AND b.start_time = s.start_time AND b.state = 'booked'
			)
	`, scheduleID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBlock(row rowScanner) (model.ScheduleBlock, error) {
	var b model.ScheduleBlock
	err := row.Scan(&b.ID, &b.DoctorID, &b.Start, &b.End, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ScheduleBlock{}, ErrNotFound
		}
		return model.ScheduleBlock{}, err
	}
	b.Start, b.End = b.Start.UTC(), b.End.UTC()
	b.CreatedAt, b.UpdatedAt = b.CreatedAt.UTC(), b.UpdatedAt.UTC()
	return b, nil
}

func mapBlockErr(err error) error {
	if db.IsUniqueViolation(err, constraintBlockRange) || db.IsExclusionViolation(err, constraintBlockOverlap) {
		return ErrOverlap
	}
	return err
}
