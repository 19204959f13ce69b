package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// lockSpaceDoctor keys the two-int advisory lock space, which is disjoint
// from the bigint key the migrator locks on.
const lockSpaceDoctor int32 = 1

// lockDoctor holds the doctor's slot lock until tx ends. Block writes and
// booking applies take it before touching slots or the booking ledger, so
// each sees the other's committed rows.
func lockDoctor(ctx context.Context, tx pgx.Tx, doctorID string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1::int4, hashtext($2))`, lockSpaceDoctor, doctorID); err != nil {
		return fmt.Errorf("lock doctor %s: %w", doctorID, err)
	}
	return nil
}
