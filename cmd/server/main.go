package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notifyhub/gyre/internal/api"
	"github.com/notifyhub/gyre/internal/api/handler"
	"github.com/notifyhub/gyre/internal/config"
	"github.com/notifyhub/gyre/internal/db"
	"github.com/notifyhub/gyre/internal/ingest"
	"github.com/notifyhub/gyre/internal/metrics"
	"github.com/notifyhub/gyre/internal/provider"
	"github.com/notifyhub/gyre/internal/ratelimiter"
	"github.com/notifyhub/gyre/internal/repository"
	"github.com/notifyhub/gyre/internal/scheduler"
	"github.com/notifyhub/gyre/internal/service"
	"github.com/notifyhub/gyre/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := map[string]handler.Pinger{}

	// ---- delivery log ----
	var repo repository.DeliveryRepository
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
		logger.Info("database migrations applied")
		repo = repository.NewPgDeliveryRepository(pool)
		deps["postgres"] = pool
	} else {
		logger.Info("DATABASE_URL not set, keeping the delivery log in memory")
		repo = repository.NewMemoryDeliveryRepository()
	}

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	sched := scheduler.New(
		scheduler.WithTimeBudget(cfg.TimeBudget),
		scheduler.WithLogger(logger.Named("scheduler")),
		scheduler.WithHooks(m.SchedulerHooks()),
	)
	driver := worker.NewDriver(sched, cfg.TickInterval, cfg.IngressBuffer, logger.Named("driver"), m.WorkerHooks())

	prov := provider.NewWebhookProvider(cfg.WebhookTimeout)
	limiter := ratelimiter.New(cfg.WebhookRateLimit)
	svc := service.NewProjectionService(driver, repo, prov, limiter, cfg.WebhookMaxAttempts,
		logger.Named("service"), m.ServiceHooks(), service.WithRetryBackoff(cfg.WebhookRetryBackoff...))

	// ---- scheduler loop ----
	// Outlives the HTTP server so in-flight requests can still be served
	// while shutting down.
	loopCtx, cancelLoop := context.WithCancel(context.Background())
	defer cancelLoop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		driver.Run(loopCtx)
		return nil
	})

	// ---- NATS ingress ----
	var sub *ingest.Subscriber
	if cfg.NATSURL != "" {
		sub, err = ingest.Connect(cfg.NATSURL, cfg.NATSSubjectPrefix, svc, cfg.RequestTimeout, logger.Named("ingest"))
		if err != nil {
			logger.Fatal("failed to connect to nats", zap.Error(err))
		}
		if err := sub.Start(); err != nil {
			logger.Fatal("failed to start nats ingest", zap.Error(err))
		}
		deps["nats"] = sub
	}

	// ---- HTTP server ----
	router, err := api.NewRouter(svc, handler.NewHealthHandler(driver.Done(), deps), reg, logger, cfg.RequestTimeout)
	if err != nil {
		logger.Fatal("failed to build router", zap.Error(err))
	}
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	g.Go(func() error {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// ---- graceful shutdown ----
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		// 1. Stop accepting new updates.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if sub != nil {
			if err := sub.Close(); err != nil {
				logger.Error("nats drain error", zap.Error(err))
			}
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", zap.Error(err))
		}

		// 2. Stop the scheduler loop; queued work is discarded.
		cancelLoop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("server stopped cleanly")
}
