package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"MarketLedger/internal/event"
	"MarketLedger/internal/ledger"
	"MarketLedger/internal/observability"
	"MarketLedger/internal/persistence"
)

// ErrDuplicateApplication means a block at or below the monitor's
// checkpoint was offered again. The replay is skipped, never reapplied.
var ErrDuplicateApplication = errors.New("block already applied")

// ContextEditor is the single entry point that translates decoded chain
// events into ledger mutations, each block wrapped with its checkpoint
// advance in one transaction. It is the unit of idempotency and ordering:
// one editor serves one monitor and must be driven by a single producer.
// Independent monitors get independent editors and may run in parallel.
type ContextEditor struct {
	monitor     string
	db          *sql.DB
	balances    *ledger.BalanceLedger
	market      *ledger.OrderBookLedger
	checkpoints *ledger.CheckpointTracker
	metrics     *observability.Metrics
	logger      zerolog.Logger
}

// NewContextEditor composes the editor from its collaborators. Both
// ledgers and the tracker are constructed by the caller and passed in.
func NewContextEditor(
	monitor string,
	db *sql.DB,
	balances *ledger.BalanceLedger,
	market *ledger.OrderBookLedger,
	checkpoints *ledger.CheckpointTracker,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *ContextEditor {
	return &ContextEditor{
		monitor:     monitor,
		db:          db,
		balances:    balances,
		market:      market,
		checkpoints: checkpoints,
		metrics:     metrics,
		logger:      logger.With().Str("monitor", monitor).Logger(),
	}
}

// Monitor returns the editor's monitor identity.
func (e *ContextEditor) Monitor() string {
	return e.monitor
}

// ApplyReceipt describes one committed block apply.
type ApplyReceipt struct {
	Monitor   string
	Block     uint64
	Events    int
	ApplyID   uuid.UUID
	Timestamp time.Time
}

// ApplyBlock applies every event of one block and advances the checkpoint,
// all inside a single transaction: either every mutation and the advance
// persist, or none do. A block at or below the current checkpoint returns
// ErrDuplicateApplication without touching the ledger.
func (e *ContextEditor) ApplyBlock(ctx context.Context, blk *event.Block) (*ApplyReceipt, error) {
	current, err := e.checkpoints.CurrentBlock(ctx, e.monitor)
	if err != nil {
		return nil, fmt.Errorf("apply block %d: %w", blk.Number, err)
	}
	if blk.Number <= current {
		return nil, fmt.Errorf("block %d at or below checkpoint %d: %w",
			blk.Number, current, ErrDuplicateApplication)
	}

	applyID := uuid.New()
	start := time.Now()

	err = persistence.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		for _, ev := range blk.Events {
			fresh, err := e.recordApplied(ctx, tx, blk, ev, applyID)
			if err != nil {
				return err
			}
			if !fresh {
				// Already in the applied-event log from an earlier
				// partial run; the mutation must not repeat.
				e.metrics.EventsSkipped.WithLabelValues(e.monitor, ev.EventType().String()).Inc()
				continue
			}
			if err := e.applyEvent(ctx, tx, ev); err != nil {
				return fmt.Errorf("block %d event %s: %w", blk.Number, event.DedupKey(ev), err)
			}
		}

		_, err := e.checkpoints.Advance(ctx, tx, e.monitor)
		return err
	})
	if err != nil {
		e.metrics.BlocksRejected.WithLabelValues(e.monitor).Inc()
		return nil, err
	}

	e.metrics.BlocksApplied.WithLabelValues(e.monitor).Inc()
	e.metrics.ApplyDuration.WithLabelValues(e.monitor).Observe(time.Since(start).Seconds())
	e.metrics.CheckpointBlock.WithLabelValues(e.monitor).Set(float64(blk.Number))

	e.logger.Debug().
		Uint64("block", blk.Number).
		Int("events", len(blk.Events)).
		Str("apply_id", applyID.String()).
		Msg("block applied")

	return &ApplyReceipt{
		Monitor:   e.monitor,
		Block:     blk.Number,
		Events:    len(blk.Events),
		ApplyID:   applyID,
		Timestamp: time.Now(),
	}, nil
}

func (e *ContextEditor) applyEvent(ctx context.Context, tx *sql.Tx, ev event.Event) error {
	e.metrics.EventsApplied.WithLabelValues(e.monitor, ev.EventType().String()).Inc()

	switch ev := ev.(type) {
	case *event.ItemTransfer:
		return e.balances.TransferItem(ctx, tx, ev.To, ev.From, ev.ItemID, ev.Amount)
	case *event.LotPlaced:
		_, err := e.market.PlaceLot(ctx, tx, ev.Owner, ev.ItemID, ev.Price, ev.Amount)
		return err
	case *event.LotFilled:
		return e.market.FillLot(ctx, tx, ev.LotID, ev.Buyer, ev.Amount)
	case *event.LotCanceled:
		return e.market.CancelLot(ctx, tx, ev.LotID)
	default:
		return fmt.Errorf("unhandled event type %s", ev.EventType())
	}
}

// recordApplied appends the event to the applied-event log. It returns
// false when the event identity is already present, which backstops
// deduplication below checkpoint granularity.
func (e *ContextEditor) recordApplied(ctx context.Context, tx *sql.Tx, blk *event.Block, ev event.Event, applyID uuid.UUID) (bool, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return false, fmt.Errorf("marshal event payload: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO applied_events (monitor, dedup_key, block, event_type, payload, apply_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (monitor, dedup_key) DO NOTHING
	`, e.monitor, event.DedupKey(ev), int64(blk.Number), ev.EventType().String(), payload, applyID)
	if err != nil {
		return false, fmt.Errorf("record applied event: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// --- Direct operations ---
//
// These mirror the ledger contracts one to one, each committing as its
// own atomic unit. They serve tooling and tests; the event stream goes
// through ApplyBlock.

// CreateItem mints amount of an item to owner.
func (e *ContextEditor) CreateItem(ctx context.Context, owner string, amount, itemID int64) error {
	return e.TransferItem(ctx, owner, ledger.NullAddress, amount, itemID)
}

// RemoveItem burns amount of an item from owner.
func (e *ContextEditor) RemoveItem(ctx context.Context, owner string, amount, itemID int64) error {
	return e.TransferItem(ctx, ledger.NullAddress, owner, amount, itemID)
}

// TransferItem moves amount of an item between accounts.
func (e *ContextEditor) TransferItem(ctx context.Context, to, from string, amount, itemID int64) error {
	return persistence.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		return e.balances.TransferItem(ctx, tx, to, from, itemID, amount)
	})
}

// PlaceLot opens a sell offer and returns the allocated lot identifier.
func (e *ContextEditor) PlaceLot(ctx context.Context, owner string, itemID, price, amount int64) (int64, error) {
	var lotID int64
	err := persistence.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		var err error
		lotID, err = e.market.PlaceLot(ctx, tx, owner, itemID, price, amount)
		return err
	})
	return lotID, err
}

// BuyLot records a fill of amount against a lot.
func (e *ContextEditor) BuyLot(ctx context.Context, lotID int64, buyer string, amount int64) error {
	return persistence.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		return e.market.FillLot(ctx, tx, lotID, buyer, amount)
	})
}

// CancelLot withdraws a lot from the market.
func (e *ContextEditor) CancelLot(ctx context.Context, lotID int64) error {
	return persistence.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		return e.market.CancelLot(ctx, tx, lotID)
	})
}

// RecordBlockProcessed advances this editor's checkpoint by one and
// returns the new value.
func (e *ContextEditor) RecordBlockProcessed(ctx context.Context) (uint64, error) {
	var block uint64
	err := persistence.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		var err error
		block, err = e.checkpoints.Advance(ctx, tx, e.monitor)
		return err
	})
	return block, err
}

// CurrentBlock returns the monitor's checkpoint, 0 if it never synced.
func (e *ContextEditor) CurrentBlock(ctx context.Context) (uint64, error) {
	return e.checkpoints.CurrentBlock(ctx, e.monitor)
}
