package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/app"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/ingest"
	jobmetrics "github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/jobs"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/margin"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/orders"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/platform/cache"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/platform/db"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/sources"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	repo := orders.NewRepository(pool)
	volume := margin.NewRedisVolumeTracker(redisClient)
	reconciler := orders.NewReconciler(repo, margin.DefaultRates(), volume, logger)
	ledger := ingest.NewPGLedger(pool)
	pipeline := ingest.NewPipeline(ledger, reconciler, nil, logger)

	metrics := jobmetrics.NewMetrics(nil)

	mailAPI := sources.NewMailAPI(cfg.EmailAPIURL, cfg.ClientTimeout)
	emailJob := jobs.NewEmailPollJob(mailAPI, pipeline, cfg.StoreID, logger, metrics)

	scraper := sources.NewScraper(cfg.ScraperURL, cfg.ClientTimeout)
	scrapeJob := jobs.NewScrapeRunJob(scraper, pipeline, repo, cfg.StoreID, logger, metrics)

	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskEmailPoll, Handler: emailJob.Handle},
		{Type: jobs.TaskScrapeRun, Handler: scrapeJob.Handle},
	}

	// The bookkeeping pull is optional; deployments without an accounting
	// integration simply never see the nightly sync fire a handler.
	if cfg.AccountingAPIURL != "" {
		accountingAPI := sources.NewAccountingAPI(cfg.AccountingAPIURL, cfg.AccountingAPIToken, cfg.ClientTimeout)
		cursor := jobs.NewRedisSyncCursor(redisClient, cfg.StoreID)
		acctJob := jobs.NewAccountingSyncJob(accountingAPI, pipeline, cursor, cfg.StoreID, logger, metrics)
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskAccountingSync, Handler: acctJob.Handle})
	}

	cron, err := jobs.DefaultCron()
	if err != nil {
		logger.Error("build cron tasks", slog.Any("error", err))
		os.Exit(1)
	}
	for i := range cron {
		cron[i].Options = append(cron[i].Options, asynq.MaxRetry(3))
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers:  handlers,
		Cron:      cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
