package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"MarketLedger/internal/observability"
)

// AppliedStreamName is the outbound stream of applied-block notifications.
const AppliedStreamName = "MARKET_LEDGER_APPLIED"

// AppliedNotice tells downstream consumers that a block is durably
// reflected in the ledger and safe to query.
type AppliedNotice struct {
	Monitor   string    `json:"monitor"`
	Block     uint64    `json:"block"`
	Events    int       `json:"events"`
	ApplyID   string    `json:"apply_id"`
	Timestamp time.Time `json:"timestamp"`
}

// AppliedPublisher publishes applied-block notifications after commit.
// Publish failures are non-fatal: consumers can fall back to polling the
// checkpoint through the query API.
type AppliedPublisher struct {
	js      jetstream.JetStream
	input   <-chan AppliedNotice
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewAppliedPublisher(js jetstream.JetStream, input <-chan AppliedNotice, metrics *observability.Metrics, logger zerolog.Logger) *AppliedPublisher {
	return &AppliedPublisher{
		js:      js,
		input:   input,
		metrics: metrics,
		logger:  logger,
	}
}

// Run drains the notice channel until ctx is cancelled.
func (p *AppliedPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case n, ok := <-p.input:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, n); err != nil {
				p.metrics.PublishDrops.Inc()
				p.logger.Warn().Err(err).
					Str("monitor", n.Monitor).
					Uint64("block", n.Block).
					Msg("applied notice dropped")
			}
		}
	}
}

func (p *AppliedPublisher) publish(ctx context.Context, n AppliedNotice) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal applied notice: %w", err)
	}

	subject := fmt.Sprintf("market.ledger.applied.%s", n.Monitor)
	_, err = p.js.Publish(ctx, subject, data)
	return err
}
