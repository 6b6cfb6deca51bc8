package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-data-sql/internal/ingestion"
	"market-data-sql/internal/observability"
	"market-data-sql/internal/reconcile"
	"market-data-sql/internal/retention"
	"market-data-sql/internal/storage"
	"market-data-sql/internal/storage/clickhouse"
	"market-data-sql/internal/storage/memory"
	"market-data-sql/internal/storage/migrations"
	pgstore "market-data-sql/internal/storage/postgres"
)

func main() {
	// Parse flags
	busURL := flag.String("bus-url", "", "Websocket URL of the deduplicated message bus")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string for the analytics mirror (empty to disable)")
	batchSize := flag.Int("batch-size", 1000, "Rows per retention phase statement")
	maxAge := flag.Duration("max-age", 24*time.Hour, "How long an order may go unseen before it is retired")
	checkInterval := flag.Duration("check-interval", 1*time.Hour, "Retention scheduling period")
	timeBudget := flag.Float64("time-budget-fraction", 0.75, "Fraction of check-interval one retention invocation may use")
	phasePause := flag.Duration("phase-pause", 10*time.Second, "Pause between retention phases")
	historyMaxAge := flag.Duration("history-max-age", 168*time.Hour, "How long hourly history buckets are kept (0 disables trimming)")
	heartbeatFile := flag.String("heartbeat-file", "last-run.txt", "File retention invocations are recorded to")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address (empty to disable)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")

	flag.Parse()

	// Setup logger
	logger := log.New(os.Stdout, "[ingest] ", log.LstdFlags|log.Lshortfile)

	// Start metrics server if enabled
	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to signal main goroutine completion
	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	err := run(ctx, logger, options{
		busURL:             *busURL,
		postgresDSN:        *postgresDSN,
		clickhouseDSN:      *clickhouseDSN,
		batchSize:          *batchSize,
		maxAge:             *maxAge,
		checkInterval:      *checkInterval,
		timeBudgetFraction: *timeBudget,
		phasePause:         *phasePause,
		historyMaxAge:      *historyMaxAge,
		heartbeatFile:      *heartbeatFile,
		useMemory:          *useMemory,
	})

	// Signal completion to shutdown handler
	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

type options struct {
	busURL             string
	postgresDSN        string
	clickhouseDSN      string
	batchSize          int
	maxAge             time.Duration
	checkInterval      time.Duration
	timeBudgetFraction float64
	phasePause         time.Duration
	historyMaxAge      time.Duration
	heartbeatFile      string
	useMemory          bool
}

// run wires stores, reconcilers, the retention scheduler and the bus
// dispatcher, then blocks until the context is cancelled.
func run(ctx context.Context, logger *log.Logger, opts options) error {
	if opts.busURL == "" {
		return fmt.Errorf("--bus-url is required")
	}

	// Require --postgres-dsn unless --use-memory is explicitly set
	if !opts.useMemory && opts.postgresDSN == "" {
		return fmt.Errorf("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	// Create stores (use interfaces)
	memOrders := memory.NewOrderStore()
	var orderStore storage.OrderStore = memOrders
	var retentionStore storage.RetentionStore = memOrders
	var historyStore storage.HistoryStore = memory.NewHistoryStore()
	var goldStore storage.GoldStore = memory.NewGoldStore()

	if !opts.useMemory {
		pool, err := pgstore.NewPool(ctx, opts.postgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("run postgres migrations: %w", err)
		}

		orderStore = pgstore.NewOrderStore(pool)
		retentionStore = pgstore.NewRetentionStore(pool)
		historyStore = pgstore.NewHistoryStore(pool)
		goldStore = pgstore.NewGoldStore(pool)
	}

	// Optional ClickHouse analytics mirror
	var statStore storage.MarketStatStore
	if opts.clickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, opts.clickhouseDSN)
		if err != nil {
			return fmt.Errorf("run clickhouse migrations: %w", err)
		}
		defer conn.Close()

		statStore = clickhouse.NewMarketStatStore(conn)
		logger.Println("Analytics mirror enabled")
	}

	// Create reconcilers
	orders := reconcile.NewOrderReconciler(orderStore, time.Now)
	histories := reconcile.NewHistoryReconciler(historyStore, statStore, logger)
	gold := reconcile.NewGoldReconciler(goldStore, time.Now)

	// Create retention pipeline and scheduler
	pipeline := retention.NewPipeline(retention.Options{
		Store:     retentionStore,
		History:   historyStore,
		Heartbeat: retention.NewHeartbeat(opts.heartbeatFile),
		Config: retention.Config{
			BatchSize:          opts.batchSize,
			MaxAge:             opts.maxAge,
			CheckInterval:      opts.checkInterval,
			TimeBudgetFraction: opts.timeBudgetFraction,
			PhasePause:         opts.phasePause,
			HistoryMaxAge:      opts.historyMaxAge,
		},
		Logger: logger,
	})
	scheduler := retention.NewScheduler(pipeline, opts.checkInterval, logger)

	schedulerDone := make(chan error, 1)
	go func() {
		schedulerDone <- scheduler.Run(ctx)
	}()

	// Connect to the bus and dispatch until cancelled
	bus, err := ingestion.NewBusClient(ctx, opts.busURL, nil)
	if err != nil {
		return fmt.Errorf("connect to bus: %w", err)
	}
	defer bus.Close()

	dispatcher := ingestion.NewDispatcher(orders, histories, gold, logger)

	logger.Println("Starting live ingestion...")
	err = dispatcher.Run(ctx, bus)

	if schedErr := <-schedulerDone; err == nil {
		err = schedErr
	}
	return err
}
