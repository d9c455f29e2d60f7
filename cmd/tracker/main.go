package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/app"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/ingest"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/margin"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/observability"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/orders"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/platform/cache"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/platform/db"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()

	repo := orders.NewRepository(pool)
	volume := margin.NewRedisVolumeTracker(redisClient)
	reconciler := orders.NewReconciler(repo, margin.DefaultRates(), volume, logger)

	ledger := ingest.NewPGLedger(pool)
	pipeline := ingest.NewPipeline(ledger, reconciler, metrics, logger)
	ingestHandler := ingest.NewHandler(pipeline, cfg.StoreID, cfg.PaymentWebhookSecret, logger)
	ordersHandler := orders.NewHandler(repo, cfg.StoreID, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		IngestHandler: ingestHandler,
		OrdersHandler: ordersHandler,
		JobHandler:    jobHandler,
		Metrics:       metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
