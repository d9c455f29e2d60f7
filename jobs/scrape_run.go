package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/ingest"
	jobmetrics "github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/jobs"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/orders"
)

// ErrPageUnavailable signals that a negotiation page could not be fetched
// this pass; the order simply waits for the next run.
var ErrPageUnavailable = errors.New("scrape: page unavailable")

// ScrapeRunner fetches a single negotiation page and extracts its fields.
type ScrapeRunner interface {
	Fetch(ctx context.Context, channel, negotiationID string) (ingest.ScrapeResult, error)
}

// ScrapeIngestor is the slice of the ingest pipeline this job drives.
type ScrapeIngestor interface {
	ProcessScrape(ctx context.Context, storeID string, res ingest.ScrapeResult) (ingest.Result, error)
}

// ScrapeLister selects the orders worth another scrape pass.
type ScrapeLister interface {
	ListByStatus(ctx context.Context, storeID string, status orders.OrderStatus) ([]orders.Order, error)
}

// ScrapeRunJob revisits marketplace pages for orders that still miss data.
type ScrapeRunJob struct {
	Runner   ScrapeRunner
	Pipeline ScrapeIngestor
	Repo     ScrapeLister
	StoreID  string
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewScrapeRunJob constructs the scrape pass handler.
func NewScrapeRunJob(runner ScrapeRunner, pipeline ScrapeIngestor, repo ScrapeLister, storeID string, logger *slog.Logger, metrics *jobmetrics.Metrics) *ScrapeRunJob {
	return &ScrapeRunJob{Runner: runner, Pipeline: pipeline, Repo: repo, StoreID: storeID, Logger: logger, Metrics: metrics}
}

// Handle executes one scrape pass.
func (j *ScrapeRunJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Runner == nil || j.Pipeline == nil || j.Repo == nil {
		return errors.New("scrape run: handler not configured")
	}
	var payload ScrapeRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if len(payload.Statuses) == 0 {
		payload.Statuses = []string{string(orders.StatusProvisional), string(orders.StatusNeedsCompletion)}
	}
	if payload.MaxPages <= 0 {
		payload.MaxPages = 50
	}

	tracker := j.metrics().Track(TaskScrapeRun)
	var resultErr error
	defer func() {
		tracker.End(resultErr)
	}()

	logger := j.logger()
	start := time.Now()

	var candidates []orders.Order
	for _, status := range payload.Statuses {
		list, err := j.Repo.ListByStatus(ctx, j.StoreID, orders.OrderStatus(status))
		if err != nil {
			resultErr = err
			logger.Error("list orders", slog.String("status", status), slog.Any("error", err))
			return resultErr
		}
		candidates = append(candidates, list...)
	}
	if len(candidates) > payload.MaxPages {
		candidates = candidates[:payload.MaxPages]
	}

	var applied, unavailable int
	for _, order := range candidates {
		res, err := j.Runner.Fetch(ctx, string(order.Channel), order.ExternalOrderID)
		if errors.Is(err, ErrPageUnavailable) {
			unavailable++
			continue
		}
		if err != nil {
			resultErr = err
			logger.Error("fetch negotiation page",
				slog.String("external_order_id", order.ExternalOrderID),
				slog.Any("error", err),
			)
			return resultErr
		}
		out, err := j.Pipeline.ProcessScrape(ctx, j.StoreID, res)
		if err != nil {
			resultErr = err
			return resultErr
		}
		j.metrics().AddIngested(TaskScrapeRun, string(out.Status), 1)
		if out.Status == ingest.ResultProcessed {
			applied++
		}
	}

	logger.Info("scrape pass finished",
		slog.Int("candidates", len(candidates)),
		slog.Int("applied", applied),
		slog.Int("unavailable", unavailable),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *ScrapeRunJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskScrapeRun))
	}
	return slog.Default().With(slog.String("job", TaskScrapeRun))
}

func (j *ScrapeRunJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
