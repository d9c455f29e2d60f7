package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicateEvent signals that this (store, source, source_event_id) was
// already recorded. Callers must treat it as "duplicate, no-op", not as a
// failure.
var ErrDuplicateEvent = errors.New("ingest: event already recorded")

// Ledger persists ingest events and enforces at-most-once processing per
// idempotence key.
type Ledger interface {
	Record(ctx context.Context, ev Event) (int64, error)
	MarkProcessed(ctx context.Context, id, orderID int64, errs []string) error
	MarkIgnored(ctx context.Context, id int64, errs []string) error
	MarkFailed(ctx context.Context, id int64, errs []string) error
	Get(ctx context.Context, storeID string, source Source, sourceEventID string) (*Event, error)
}

// PGLedger stores events in Postgres. The unique index on
// (store_id, source, source_event_id) is the idempotence mechanism: a
// duplicate insert raises 23505 and becomes ErrDuplicateEvent.
type PGLedger struct {
	pool *pgxpool.Pool
}

func NewPGLedger(pool *pgxpool.Pool) *PGLedger {
	return &PGLedger{pool: pool}
}

func (l *PGLedger) Record(ctx context.Context, ev Event) (int64, error) {
	if ev.StoreID == "" {
		return 0, errors.New("ingest: store id required")
	}
	if ev.SourceEventID == "" {
		return 0, errors.New("ingest: source event id required")
	}
	var id int64
	err := l.pool.QueryRow(ctx, `
		INSERT INTO ingest_events (store_id, source, source_event_id, status, payload, errors, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		ev.StoreID, string(ev.Source), ev.SourceEventID, string(EventReceived), ev.Payload, ev.Errors, time.Now(),
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateEvent
		}
		return 0, fmt.Errorf("ingest: record event: %w", err)
	}
	return id, nil
}

func (l *PGLedger) MarkProcessed(ctx context.Context, id, orderID int64, errs []string) error {
	_, err := l.pool.Exec(ctx, `
		UPDATE ingest_events SET status=$2, order_id=$3, errors=$4, processed_at=$5 WHERE id=$1`,
		id, string(EventProcessed), orderID, errs, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("ingest: mark processed: %w", err)
	}
	return nil
}

func (l *PGLedger) MarkIgnored(ctx context.Context, id int64, errs []string) error {
	_, err := l.pool.Exec(ctx, `
		UPDATE ingest_events SET status=$2, errors=$3, processed_at=$4 WHERE id=$1`,
		id, string(EventIgnored), errs, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("ingest: mark ignored: %w", err)
	}
	return nil
}

func (l *PGLedger) MarkFailed(ctx context.Context, id int64, errs []string) error {
	_, err := l.pool.Exec(ctx, `
		UPDATE ingest_events SET status=$2, errors=$3, processed_at=$4 WHERE id=$1`,
		id, string(EventFailed), errs, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("ingest: mark failed: %w", err)
	}
	return nil
}

func (l *PGLedger) Get(ctx context.Context, storeID string, source Source, sourceEventID string) (*Event, error) {
	var ev Event
	err := l.pool.QueryRow(ctx, `
		SELECT id, store_id, source, source_event_id, status, payload, errors, order_id, processed_at, created_at
		FROM ingest_events WHERE store_id=$1 AND source=$2 AND source_event_id=$3`,
		storeID, string(source), sourceEventID,
	).Scan(&ev.ID, &ev.StoreID, &ev.Source, &ev.SourceEventID, &ev.Status, &ev.Payload, &ev.Errors, &ev.OrderID, &ev.ProcessedAt, &ev.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("ingest: get event: %w", err)
	}
	return &ev, nil
}
