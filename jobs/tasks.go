package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskEmailPoll drains the notification mailbox through the ingest pipeline.
	TaskEmailPoll = "email:poll"
	// TaskScrapeRun re-scrapes marketplace negotiation pages for orders that
	// still miss data.
	TaskScrapeRun = "scrape:run"
	// TaskAccountingSync pulls sales orders modified since the stored cursor.
	TaskAccountingSync = "accounting:sync"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// EmailPollPayload bounds a single mailbox drain.
type EmailPollPayload struct {
	MaxMessages int `json:"max_messages"`
}

// NewEmailPollTask constructs an Asynq task.
func NewEmailPollTask(payload EmailPollPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEmailPoll, data), nil
}

// ScrapeRunPayload selects which order states a scrape pass revisits.
type ScrapeRunPayload struct {
	Statuses []string `json:"statuses"`
	MaxPages int      `json:"max_pages"`
}

// NewScrapeRunTask constructs an Asynq task.
func NewScrapeRunTask(payload ScrapeRunPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskScrapeRun, data), nil
}

// AccountingSyncPayload optionally overrides the stored sync cursor.
type AccountingSyncPayload struct {
	Since string `json:"since,omitempty"`
	Full  bool   `json:"full,omitempty"`
}

// NewAccountingSyncTask constructs an Asynq task.
func NewAccountingSyncTask(payload AccountingSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAccountingSync, data), nil
}
