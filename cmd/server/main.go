// Package main is the entry point for the longjob service. It hosts the
// HTTP API, the in-process queue, the worker pool and the lease reconciler
// in a single process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"longjob/internal/config"
	"longjob/internal/executor"
	"longjob/internal/logger"
	"longjob/internal/notify"
	"longjob/internal/observability"
	"longjob/internal/queue"
	"longjob/internal/server"
	"longjob/internal/server/handlers"
	"longjob/internal/store"
	"longjob/internal/store/memory"
	"longjob/internal/store/postgres"
	"longjob/internal/worker"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

func main() {
	// Parse flags
	migrateFlag := flag.Bool("migrate", false, "Run database migrations before starting")
	flag.Parse()

	// Load Config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	slogger := logger.New()
	slog.SetDefault(slogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Setup Store
	var (
		repo   store.JobRepository
		pinger handlers.Pinger
	)
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to DB: %v", err)
		}
		defer pg.Close()

		if *migrateFlag {
			slogger.Info("running database migrations")
			if err := postgres.Migrate(pg.DB()); err != nil {
				log.Fatalf("Migration failed: %v", err)
			}
			slogger.Info("migrations completed")
		}

		repo = pg
		pinger = pg
	} else {
		slogger.Warn("DATABASE_URL not set, using in-memory store; jobs will not survive a restart")
		repo = memory.New()
	}

	// Tracing
	if cfg.OTELEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(ctx, "longjob", cfg.OTELEndpoint)
		if err != nil {
			log.Fatalf("Failed to init tracing: %v", err)
		}
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				slogger.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			slogger.Error("failed to shutdown metrics", "error", err)
		}
	}()

	q := queue.New(cfg.QueueCapacity)

	// Observable gauge reads the queue only when scraped.
	meter := otel.Meter("longjob")
	_, err = meter.Int64ObservableGauge("longjob.queue.depth",
		metric.WithDescription("Current number of job ids waiting in the queue"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			obs.Observe(int64(q.Len()))
			return nil
		}),
	)
	if err != nil {
		slogger.Error("failed to register queue depth metric", "error", err)
	}

	sse := notify.NewSSEManager(slogger)
	registry := executor.NewRegistry(executor.NewEncodeExecutor(cfg.EncodeStepDelay))

	var wg sync.WaitGroup

	// Worker pool
	for i := 1; i <= cfg.WorkerCount; i++ {
		w := worker.New(repo, q, registry, sse, slogger, worker.Config{
			ID:                 fmt.Sprintf("worker-%d", i),
			LeaseDuration:      cfg.LeaseDuration,
			HeartbeatInterval:  cfg.HeartbeatInterval,
			CancelPollInterval: cfg.CancelPollInterval,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				slogger.Error("worker stopped", "error", err)
			}
		}()
	}

	// Lease reconciler
	cleaner := worker.NewCleaner(repo, q, sse, slogger, worker.CleanerConfig{
		Interval:      cfg.CleanupInterval,
		LeaseDuration: cfg.LeaseDuration,
		MaxRetries:    cfg.MaxRetries,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := cleaner.Run(ctx); err != nil && ctx.Err() == nil {
			slogger.Error("reconciler stopped", "error", err)
		}
	}()

	// HTTP API
	h := handlers.New(repo, q, sse, slogger)
	h.Pinger = pinger

	addr := fmt.Sprintf(":%d", cfg.HTTPPort)
	srv := server.New(addr, h, server.Options{
		AuthUsername: cfg.AuthUsername,
		AuthPassword: cfg.AuthPassword,
		RateLimit:    cfg.RateLimit,
		RateBurst:    cfg.RateBurst,
		Metrics:      metricsHandler,
	})

	slogger.Info("longjob service starting", "addr", addr, "workers", cfg.WorkerCount)
	if err := srv.Run(ctx); err != nil {
		slogger.Error("server stopped", "error", err)
	}

	// Workers observe ctx cancellation and finish in-flight jobs; any lease
	// they leave behind is reclaimed by the reconciler on the next start.
	wg.Wait()
	slogger.Info("service exited")
}
