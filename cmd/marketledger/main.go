package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"MarketLedger/internal/config"
	"MarketLedger/internal/core"
	"MarketLedger/internal/ingestion"
	"MarketLedger/internal/ledger"
	"MarketLedger/internal/observability"
	"MarketLedger/internal/persistence"
	"MarketLedger/internal/query"
	"MarketLedger/internal/server"
)

func main() {
	cfg, err := config.Load(os.Getenv("MKTL_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.ServiceName, cfg.LogLevel)
	logger.Info().Strs("monitors", cfg.Monitors).Msg("marketledger starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// --- Postgres ---
	db, err := persistence.Open(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxOpen, cfg.Postgres.MaxIdle)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer db.Close()
	logger.Info().Msg("postgres connected")

	// --- Migrations ---
	migrator := persistence.NewMigrator(db, cfg.MigrationsDir, logger)
	if err := migrator.Up(ctx); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	// --- Observability ---
	metrics := observability.NewMetrics()
	healthChecker := observability.NewHealthChecker()

	// --- Ledgers, explicitly composed ---
	balances := ledger.NewBalanceLedger(db)
	market := ledger.NewOrderBookLedger(db)
	checkpoints := ledger.NewCheckpointTracker(db)

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATS.URL, cfg.NATS.ReconnectWait, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()
	logger.Info().Msg("nats connected")

	if err := ingestion.EnsureStreams(ctx, js); err != nil {
		logger.Fatal().Err(err).Msg("ensure streams")
	}

	errChan := make(chan error, len(cfg.Monitors)+3)

	// --- Outbound applied-block notifications ---
	appliedChan := make(chan core.ApplyReceipt, 1024)
	noticeChan := make(chan ingestion.AppliedNotice, 1024)
	publisher := ingestion.NewAppliedPublisher(js, noticeChan, metrics, logger)
	go func() {
		errChan <- publisher.Run(ctx)
	}()
	go bridgeReceipts(ctx, appliedChan, noticeChan)

	// --- Per-monitor editors and runners ---
	// One runner goroutine per monitor serializes all writes for it;
	// monitors proceed independently of each other.
	subscriber := ingestion.NewBlockSubscriber(js, metrics, logger)
	for _, monitor := range cfg.Monitors {
		blockChan := make(chan core.BlockDelivery, cfg.BlockChanSize)
		if err := subscriber.Subscribe(ctx, monitor, blockChan); err != nil {
			logger.Fatal().Err(err).Str("monitor", monitor).Msg("subscribe")
		}

		editor := core.NewContextEditor(monitor, db, balances, market, checkpoints, metrics, logger)
		runner := core.NewMonitorRunner(editor, blockChan, appliedChan, metrics, logger)
		go func() {
			errChan <- runner.Run(ctx)
		}()
	}
	defer subscriber.Stop()

	// --- Query API ---
	queryService := query.NewService(db, balances, market, checkpoints)
	httpServer := server.New(
		cfg.HTTP.Addr,
		cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout,
		queryService, healthChecker, metrics, logger,
	)
	go func() {
		errChan <- httpServer.Run(ctx)
	}()

	// --- Metrics server ---
	go func() {
		errChan <- runMetricsServer(ctx, cfg.HTTP.MetricsAddr, logger)
	}()

	healthChecker.SetReady(true)
	logger.Info().
		Str("http", cfg.HTTP.Addr).
		Str("metrics", cfg.HTTP.MetricsAddr).
		Msg("marketledger ready")

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errChan:
		if err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("component failed, shutting down")
		}
	}

	cancel()
	healthChecker.SetReady(false)
	time.Sleep(time.Second)
	logger.Info().Msg("marketledger stopped")
}

// bridgeReceipts converts core receipts into outbound notices. The two
// packages would cycle if they shared the type, so the bridge owns it.
func bridgeReceipts(ctx context.Context, in <-chan core.ApplyReceipt, out chan<- ingestion.AppliedNotice) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-in:
			if !ok {
				return
			}
			notice := ingestion.AppliedNotice{
				Monitor:   r.Monitor,
				Block:     r.Block,
				Events:    r.Events,
				ApplyID:   r.ApplyID.String(),
				Timestamp: r.Timestamp,
			}
			select {
			case out <- notice:
			case <-ctx.Done():
				return
			}
		}
	}
}

func runMetricsServer(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
