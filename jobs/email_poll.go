package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/ingest"
	jobmetrics "github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/jobs"
)

const emailPollConcurrency = 4

// EmailSource lists marketplace notification emails awaiting ingestion.
type EmailSource interface {
	ListUnseen(ctx context.Context, max int) ([]ingest.InboundEmail, error)
	MarkSeen(ctx context.Context, messageID string) error
}

// EmailIngestor is the slice of the ingest pipeline this job drives.
type EmailIngestor interface {
	ProcessEmail(ctx context.Context, storeID string, msg ingest.InboundEmail) (ingest.Result, error)
}

// EmailPollJob drains the notification mailbox through the ingest pipeline.
type EmailPollJob struct {
	Source   EmailSource
	Pipeline EmailIngestor
	StoreID  string
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewEmailPollJob constructs the mailbox drain handler.
func NewEmailPollJob(source EmailSource, pipeline EmailIngestor, storeID string, logger *slog.Logger, metrics *jobmetrics.Metrics) *EmailPollJob {
	return &EmailPollJob{Source: source, Pipeline: pipeline, StoreID: storeID, Logger: logger, Metrics: metrics}
}

// Handle executes one mailbox drain.
func (j *EmailPollJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil || j.Pipeline == nil {
		return errors.New("email poll: handler not configured")
	}
	var payload EmailPollPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.MaxMessages <= 0 {
		payload.MaxMessages = 100
	}

	tracker := j.metrics().Track(TaskEmailPoll)
	var resultErr error
	defer func() {
		tracker.End(resultErr)
	}()

	logger := j.logger()
	start := time.Now()

	messages, err := j.Source.ListUnseen(ctx, payload.MaxMessages)
	if err != nil {
		resultErr = err
		logger.Error("list unseen emails", slog.Any("error", err))
		return resultErr
	}
	if len(messages) == 0 {
		logger.Info("mailbox empty")
		return nil
	}

	var processed, skipped atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(emailPollConcurrency)
	for _, msg := range messages {
		msg := msg
		g.Go(func() error {
			res, err := j.Pipeline.ProcessEmail(gctx, j.StoreID, msg)
			if err != nil {
				// Infrastructure failure: leave the message unseen so the
				// next poll retries it.
				return err
			}
			j.metrics().AddIngested(TaskEmailPoll, string(res.Status), 1)
			switch res.Status {
			case ingest.ResultProcessed:
				processed.Add(1)
			default:
				// Duplicates and extraction failures are recorded in the
				// event ledger; re-reading the email cannot improve them.
				skipped.Add(1)
				logger.Warn("email not applied",
					slog.String("message_id", msg.MessageID),
					slog.String("status", string(res.Status)),
					slog.Any("errors", res.Errors),
				)
			}
			if err := j.Source.MarkSeen(gctx, msg.MessageID); err != nil {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		resultErr = err
		logger.Error("mailbox drain aborted", slog.Any("error", err))
		return resultErr
	}

	logger.Info("mailbox drained",
		slog.Int("messages", len(messages)),
		slog.Int64("processed", processed.Load()),
		slog.Int64("skipped", skipped.Load()),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *EmailPollJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskEmailPoll))
	}
	return slog.Default().With(slog.String("job", TaskEmailPoll))
}

func (j *EmailPollJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
