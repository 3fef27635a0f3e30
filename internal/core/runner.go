package core

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"MarketLedger/internal/event"
	"MarketLedger/internal/ledger"
	"MarketLedger/internal/observability"
)

// BlockDelivery is one block handed to a runner by the event source,
// with the ACK/NAK handshake of the underlying transport attached.
type BlockDelivery struct {
	Block *event.Block
	Ack   func()
	Nak   func()
}

// MonitorRunner is the single logical writer for one monitor. It drains
// deliveries from its channel strictly in order, so the editor's
// read-modify-write sequences are never interleaved for one monitor.
// Independent monitors run their own runners fully in parallel: they
// touch disjoint checkpoint rows and key spaces.
type MonitorRunner struct {
	editor  *ContextEditor
	input   <-chan BlockDelivery
	applied chan<- ApplyReceipt
	metrics *observability.Metrics
	logger  zerolog.Logger

	maxRetries int
	retryWait  time.Duration
}

// NewMonitorRunner wires a runner. applied may be nil when no downstream
// notification is wanted; sends to it never block.
func NewMonitorRunner(
	editor *ContextEditor,
	input <-chan BlockDelivery,
	applied chan<- ApplyReceipt,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *MonitorRunner {
	return &MonitorRunner{
		editor:     editor,
		input:      input,
		applied:    applied,
		metrics:    metrics,
		logger:     logger.With().Str("monitor", editor.Monitor()).Logger(),
		maxRetries: 5,
		retryWait:  500 * time.Millisecond,
	}
}

// Run processes deliveries until ctx is cancelled or an unrecoverable
// error surfaces. Transient store errors are retried with backoff;
// data-integrity errors halt the runner, duplicates are skipped.
func (r *MonitorRunner) Run(ctx context.Context) error {
	current, err := r.editor.CurrentBlock(ctx)
	if err != nil {
		return err
	}
	guard := NewBlockOrderGuard(current)
	r.logger.Info().Uint64("checkpoint", current).Msg("monitor runner started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case d, ok := <-r.input:
			if !ok {
				return nil
			}

			switch guard.Validate(d.Block.Number) {
			case OrderStale:
				// Replay after resume: already reflected in the checkpoint.
				r.metrics.BlocksSkipped.WithLabelValues(r.editor.Monitor()).Inc()
				d.Ack()
				continue

			case OrderGap:
				d.Nak()
				return guard.GapError(r.editor.Monitor(), d.Block.Number)
			}

			receipt, err := r.applyWithRetry(ctx, d.Block)
			if err != nil {
				if errors.Is(err, ErrDuplicateApplication) {
					r.metrics.BlocksSkipped.WithLabelValues(r.editor.Monitor()).Inc()
					d.Ack()
					continue
				}
				d.Nak()
				return err
			}
			d.Ack()

			if r.applied != nil {
				select {
				case r.applied <- *receipt:
				default:
					// Notifications are best-effort; never stall the apply loop.
				}
			}
		}
	}
}

// applyWithRetry retries transient store errors with linear backoff.
// Integrity and duplicate errors return immediately.
func (r *MonitorRunner) applyWithRetry(ctx context.Context, blk *event.Block) (*ApplyReceipt, error) {
	var err error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			r.metrics.StoreRetries.WithLabelValues(r.editor.Monitor()).Inc()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * r.retryWait):
			}
		}

		var receipt *ApplyReceipt
		receipt, err = r.editor.ApplyBlock(ctx, blk)
		if err == nil {
			return receipt, nil
		}
		if errors.Is(err, ErrDuplicateApplication) || isIntegrityError(err) {
			return nil, err
		}

		r.logger.Warn().
			Err(err).
			Uint64("block", blk.Number).
			Int("attempt", attempt+1).
			Msg("block apply failed, retrying")
	}
	return nil, err
}

// isIntegrityError reports whether err is a data-integrity rejection that
// no retry can fix.
func isIntegrityError(err error) bool {
	return errors.Is(err, ledger.ErrUnknownLot) ||
		errors.Is(err, ledger.ErrLotClosed) ||
		errors.Is(err, ledger.ErrOverFill) ||
		errors.Is(err, ledger.ErrInsufficientBalance) ||
		errors.Is(err, ledger.ErrInvalidAmount)
}
