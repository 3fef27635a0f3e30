package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"MarketLedger/internal/core"
	"MarketLedger/internal/observability"
)

// StreamName is the inbound stream carrying decoded chain events,
// one subject per monitor.
const StreamName = "CHAIN_EVENTS"

// MonitorSubject returns the inbound subject for one monitor.
func MonitorSubject(monitor string) string {
	return fmt.Sprintf("chain.blocks.%s", monitor)
}

// BlockSubscriber consumes decoded block payloads from JetStream and feeds
// each monitor's channel. One durable consumer per monitor with explicit
// ACK preserves per-monitor ordering; the runner ACKs only after the apply
// transaction commits, so an unacked block is redelivered after a crash.
type BlockSubscriber struct {
	js        jetstream.JetStream
	metrics   *observability.Metrics
	logger    zerolog.Logger
	consumers []jetstream.ConsumeContext
}

func NewBlockSubscriber(js jetstream.JetStream, metrics *observability.Metrics, logger zerolog.Logger) *BlockSubscriber {
	return &BlockSubscriber{
		js:      js,
		metrics: metrics,
		logger:  logger,
	}
}

// Subscribe creates a durable consumer for one monitor and pipes parsed
// blocks into out. Max in-flight is 1: the next block is not delivered
// until the previous one is ACKed, keeping the single-writer contract.
func (s *BlockSubscriber) Subscribe(ctx context.Context, monitor string, out chan<- core.BlockDelivery) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       fmt.Sprintf("ledger-%s", monitor),
		FilterSubject: MonitorSubject(monitor),
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		MaxAckPending: 1,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer for %s: %w", monitor, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		s.metrics.IngestReceived.WithLabelValues(monitor).Inc()

		blk, err := ParseBlock(monitor, msg.Data())
		if err != nil {
			// A payload that does not parse never will; terminate it
			// rather than poison the redelivery loop.
			s.metrics.IngestRejected.WithLabelValues(monitor).Inc()
			s.logger.Error().Err(err).Str("monitor", monitor).Msg("rejecting undecodable block payload")
			msg.Term()
			return
		}

		delivery := core.BlockDelivery{
			Block: blk,
			Ack:   func() { msg.Ack() },
			Nak:   func() { msg.Nak() },
		}

		select {
		case out <- delivery:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", monitor, err)
	}

	s.consumers = append(s.consumers, cc)
	s.logger.Info().Str("monitor", monitor).Str("subject", MonitorSubject(monitor)).Msg("subscribed")
	return nil
}

// Stop gracefully stops all consumers.
func (s *BlockSubscriber) Stop() {
	for _, cc := range s.consumers {
		cc.Stop()
	}
	s.logger.Info().Msg("block subscribers stopped")
}

// EnsureStreams creates the inbound and outbound streams if absent.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      StreamName,
			Subjects:  []string{"chain.blocks.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
		{
			Name:      AppliedStreamName,
			Subjects:  []string{"market.ledger.applied.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
	}
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, reconnectWait time.Duration, logger zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
