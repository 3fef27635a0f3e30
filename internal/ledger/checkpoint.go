package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"MarketLedger/internal/persistence"
)

// CheckpointTracker records, per named monitor, the last block number whose
// events were fully applied. Advance must run in the same transaction as
// the ledger mutations it accompanies: after a crash, neither a checkpoint
// ahead of the ledger nor a ledger ahead of the checkpoint is observable.
//
// The tracker keeps no in-memory counter. Advance re-reads the row inside
// the caller's transaction, so a rolled-back apply leaves nothing stale.
type CheckpointTracker struct {
	db *sql.DB
}

func NewCheckpointTracker(db *sql.DB) *CheckpointTracker {
	return &CheckpointTracker{db: db}
}

// Advance increments the monitor's checkpoint by exactly one and upserts
// the new value, returning it. The read and the write both go through q,
// which is the enclosing block-apply transaction.
func (t *CheckpointTracker) Advance(ctx context.Context, q persistence.DBTX, monitor string) (uint64, error) {
	current, err := t.currentBlock(ctx, q, monitor)
	if err != nil {
		return 0, fmt.Errorf("checkpoint read %s: %w", monitor, err)
	}

	next := current + 1
	_, err = q.ExecContext(ctx, `
		INSERT INTO checkpoints (monitor_name, last_block, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (monitor_name)
		DO UPDATE SET last_block = EXCLUDED.last_block, updated_at = NOW()
	`, monitor, int64(next))
	if err != nil {
		return 0, fmt.Errorf("checkpoint advance %s: %w", monitor, err)
	}

	return next, nil
}

// CurrentBlock returns the last fully-applied block for a monitor,
// 0 for a monitor that has never synced.
func (t *CheckpointTracker) CurrentBlock(ctx context.Context, monitor string) (uint64, error) {
	return t.currentBlock(ctx, t.db, monitor)
}

func (t *CheckpointTracker) currentBlock(ctx context.Context, q persistence.DBTX, monitor string) (uint64, error) {
	var block int64
	err := q.QueryRowContext(ctx,
		`SELECT last_block FROM checkpoints WHERE monitor_name = $1`,
		monitor,
	).Scan(&block)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(block), nil
}
