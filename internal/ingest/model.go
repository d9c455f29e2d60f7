package ingest

import (
	"encoding/json"
	"time"
)

// Source identifies the producer an event came from.
type Source string

const (
	SourceEmail      Source = "email"
	SourcePayment    Source = "payment"
	SourceScrape     Source = "scrape"
	SourceAccounting Source = "accounting"
	SourceShipment   Source = "shipment"
)

// EventStatus is the ingest-ledger state of one event.
type EventStatus string

const (
	EventReceived  EventStatus = "received"
	EventProcessed EventStatus = "processed"
	EventIgnored   EventStatus = "ignored"
	EventFailed    EventStatus = "failed"
)

// Event is the idempotence record for one delivered payload, unique per
// (store_id, source, source_event_id). The ledger only appends and updates;
// nothing ever deletes an event.
type Event struct {
	ID            int64           `json:"id" db:"id"`
	StoreID       string          `json:"store_id" db:"store_id"`
	Source        Source          `json:"source" db:"source"`
	SourceEventID string          `json:"source_event_id" db:"source_event_id"`
	Status        EventStatus     `json:"status" db:"status"`
	Payload       json.RawMessage `json:"payload,omitempty" db:"payload"`
	Errors        []string        `json:"errors,omitempty" db:"errors"`
	OrderID       *int64          `json:"order_id,omitempty" db:"order_id"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// ResultStatus is the per-event outcome reported to callers.
type ResultStatus string

const (
	ResultDuplicate ResultStatus = "duplicate"
	ResultProcessed ResultStatus = "processed"
	ResultIgnored   ResultStatus = "ignored"
	ResultFailed    ResultStatus = "failed"
)

// Result is returned for every submitted event, duplicates included. The
// dashboard/notification layer consumes it to drive refresh and alerting.
type Result struct {
	Status          ResultStatus `json:"status"`
	OrderID         int64        `json:"order_id,omitempty"`
	ExternalOrderID string       `json:"external_order_id,omitempty"`
	TransactionRef  string       `json:"transaction_ref,omitempty"`
	LinesAffected   int          `json:"lines_affected"`
	Errors          []string     `json:"errors,omitempty"`
}
