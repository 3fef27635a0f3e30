package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the ledger.
type Metrics struct {
	// --- Block application ---
	BlocksApplied   *prometheus.CounterVec
	BlocksRejected  *prometheus.CounterVec
	BlocksSkipped   *prometheus.CounterVec
	ApplyDuration   *prometheus.HistogramVec
	CheckpointBlock *prometheus.GaugeVec

	// --- Events ---
	EventsApplied *prometheus.CounterVec
	EventsSkipped *prometheus.CounterVec

	// --- Store ---
	StoreRetries *prometheus.CounterVec

	// --- Ingestion ---
	IngestReceived *prometheus.CounterVec
	IngestRejected *prometheus.CounterVec
	PublishDrops   prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on the default registry.
func NewMetrics() *Metrics {
	applyBuckets := []float64{
		0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1,
	}

	return &Metrics{
		BlocksApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketledger_blocks_applied_total",
			Help: "Blocks fully applied and checkpointed, per monitor",
		}, []string{"monitor"}),
		BlocksRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketledger_blocks_rejected_total",
			Help: "Block applies rolled back on error, per monitor",
		}, []string{"monitor"}),
		BlocksSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketledger_blocks_skipped_total",
			Help: "Replayed blocks skipped below the checkpoint, per monitor",
		}, []string{"monitor"}),
		ApplyDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketledger_block_apply_duration_seconds",
			Help:    "Wall time of one block apply transaction",
			Buckets: applyBuckets,
		}, []string{"monitor"}),
		CheckpointBlock: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketledger_checkpoint_block",
			Help: "Last fully-applied block number, per monitor",
		}, []string{"monitor"}),

		EventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketledger_events_applied_total",
			Help: "Ledger mutations applied, per monitor and event type",
		}, []string{"monitor", "event_type"}),
		EventsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketledger_events_skipped_total",
			Help: "Events deduplicated by the applied-event log",
		}, []string{"monitor", "event_type"}),

		StoreRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketledger_store_retries_total",
			Help: "Transient store errors retried with backoff, per monitor",
		}, []string{"monitor"}),

		IngestReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketledger_ingest_received_total",
			Help: "Decoded event payloads received from the stream, per monitor",
		}, []string{"monitor"}),
		IngestRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketledger_ingest_rejected_total",
			Help: "Payloads rejected during parsing, per monitor",
		}, []string{"monitor"}),
		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketledger_publish_drops_total",
			Help: "Outbound applied-block notifications dropped",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketledger_query_requests_total",
			Help: "Read API requests, per endpoint",
		}, []string{"endpoint"}),
		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketledger_query_duration_seconds",
			Help:    "Read API latency, per endpoint",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketledger_query_errors_total",
			Help: "Read API failures, per endpoint",
		}, []string{"endpoint"}),
	}
}
