package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/extract"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/margin"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/observability"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/orders"
)

// Applier is the reconciler surface the pipeline needs.
type Applier interface {
	Apply(ctx context.Context, storeID string, fact orders.Fact) (orders.ApplyResult, error)
}

// Pipeline runs one event through ledger, normalizer and reconciler. Every
// per-event problem ends up in the event record and the returned Result;
// only infrastructure failures (ledger unreachable, transaction errors)
// come back as a non-nil error.
type Pipeline struct {
	ledger     Ledger
	reconciler Applier
	metrics    *observability.Metrics
	logger     *slog.Logger
	validate   *validator.Validate
}

func NewPipeline(ledger Ledger, reconciler Applier, metrics *observability.Metrics, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		ledger:     ledger,
		reconciler: reconciler,
		metrics:    metrics,
		logger:     logger,
		validate:   validator.New(),
	}
}

// ProcessEmail ingests one inbound email.
func (p *Pipeline) ProcessEmail(ctx context.Context, storeID string, msg InboundEmail) (Result, error) {
	if err := p.validate.Struct(msg); err != nil {
		return Result{Status: ResultFailed, Errors: []string{"invalid_email_payload"}}, nil
	}
	raw, _ := json.Marshal(msg)
	return p.process(ctx, storeID, SourceEmail, msg.MessageID, raw, func() (orders.Fact, []string) {
		return NormalizeEmail(msg)
	})
}

// ProcessPayment ingests one payment-processor event. The HTTP edge verifies
// the envelope signature before this runs.
func (p *Pipeline) ProcessPayment(ctx context.Context, storeID string, ev PaymentEvent) (Result, error) {
	if err := p.validate.Struct(ev); err != nil {
		return Result{Status: ResultFailed, Errors: []string{"invalid_payment_envelope"}}, nil
	}
	raw, _ := json.Marshal(ev)
	return p.process(ctx, storeID, SourcePayment, ev.ID, raw, func() (orders.Fact, []string) {
		return NormalizePayment(ev)
	})
}

// ProcessScrape ingests one structured scrape result.
func (p *Pipeline) ProcessScrape(ctx context.Context, storeID string, res ScrapeResult) (Result, error) {
	if err := p.validate.Struct(res); err != nil {
		return Result{Status: ResultFailed, Errors: []string{"invalid_scrape_payload"}}, nil
	}
	raw, _ := json.Marshal(res)
	return p.process(ctx, storeID, SourceScrape, scrapeEventID(res), raw, func() (orders.Fact, []string) {
		return NormalizeScrape(res)
	})
}

// ProcessAccounting ingests one accounting sales order. eventID distinguishes
// webhook deliveries from sync-cycle items.
func (p *Pipeline) ProcessAccounting(ctx context.Context, storeID string, so AccountingSalesOrder, eventID string) (Result, error) {
	if err := p.validate.Struct(so); err != nil {
		return Result{Status: ResultFailed, Errors: []string{"invalid_accounting_payload"}}, nil
	}
	if eventID == "" {
		eventID = "acct-" + so.ID + "-" + so.LastModifiedTime
	}
	raw, _ := json.Marshal(so)
	return p.process(ctx, storeID, SourceAccounting, eventID, raw, func() (orders.Fact, []string) {
		return NormalizeAccounting(so, eventID)
	})
}

// ProcessShipment ingests one loosely-typed shipment payload.
func (p *Pipeline) ProcessShipment(ctx context.Context, storeID string, raw json.RawMessage) (Result, error) {
	fact, gaps := NormalizeShipment(raw)
	return p.process(ctx, storeID, SourceShipment, fact.SourceEventID, raw, func() (orders.Fact, []string) {
		return fact, gaps
	})
}

func (p *Pipeline) process(ctx context.Context, storeID string, source Source, sourceEventID string, raw json.RawMessage, normalize func() (orders.Fact, []string)) (Result, error) {
	eventID, err := p.ledger.Record(ctx, Event{
		StoreID:       storeID,
		Source:        source,
		SourceEventID: sourceEventID,
		Payload:       raw,
	})
	if errors.Is(err, ErrDuplicateEvent) {
		p.metrics.ObserveIngest(string(source), string(ResultDuplicate))
		return Result{Status: ResultDuplicate}, nil
	}
	if err != nil {
		return Result{Status: ResultFailed}, err
	}

	fact, gaps := normalize()
	if reasons := ignoreReasons(source, gaps); len(reasons) > 0 {
		// Valid deliveries about merchandise we do not track; kept for audit
		// but never reconciled and never flagged for follow-up.
		if markErr := p.ledger.MarkIgnored(ctx, eventID, reasons); markErr != nil {
			p.logger.Error("mark event ignored", slog.Any("error", markErr))
		}
		p.metrics.ObserveIngest(string(source), string(ResultIgnored))
		return Result{Status: ResultIgnored, ExternalOrderID: fact.ExternalOrderID, Errors: reasons}, nil
	}
	if fatal := fatalGaps(source, fact, gaps); len(fatal) > 0 {
		// Persisted for manual follow-up, not retried automatically.
		if markErr := p.ledger.MarkFailed(ctx, eventID, fatal); markErr != nil {
			p.logger.Error("mark event failed", slog.Any("error", markErr))
		}
		p.metrics.ObserveIngest(string(source), string(ResultFailed))
		return Result{Status: ResultFailed, Errors: fatal}, nil
	}

	started := time.Now()
	applied, err := p.reconciler.Apply(ctx, storeID, fact)
	p.metrics.ObserveReconcile(string(source), time.Since(started))
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			errs := append(gaps, "order_not_found")
			if markErr := p.ledger.MarkFailed(ctx, eventID, errs); markErr != nil {
				p.logger.Error("mark event failed", slog.Any("error", markErr))
			}
			p.metrics.ObserveIngest(string(source), string(ResultFailed))
			return Result{Status: ResultFailed, ExternalOrderID: fact.ExternalOrderID, Errors: errs}, nil
		}
		if markErr := p.ledger.MarkFailed(ctx, eventID, []string{err.Error()}); markErr != nil {
			p.logger.Error("mark event failed", slog.Any("error", markErr))
		}
		p.metrics.ObserveIngest(string(source), string(ResultFailed))
		return Result{Status: ResultFailed, Errors: []string{err.Error()}}, fmt.Errorf("ingest: apply %s/%s: %w", source, sourceEventID, err)
	}

	if err := p.ledger.MarkProcessed(ctx, eventID, applied.OrderID, gaps); err != nil {
		p.logger.Error("mark event processed", slog.Any("error", err))
	}
	p.metrics.ObserveIngest(string(source), string(ResultProcessed))
	return Result{
		Status:          ResultProcessed,
		OrderID:         applied.OrderID,
		ExternalOrderID: applied.ExternalOrderID,
		TransactionRef:  applied.TransactionRef,
		LinesAffected:   applied.LinesAffected,
		Errors:          gaps,
	}, nil
}

// ignoreReasons marks events that are valid but carry nothing to reconcile.
// Accounting syncs return every sales order in the books; orders holding only
// off-brand merchandise are ignored rather than failed.
func ignoreReasons(source Source, gaps []string) []string {
	if source != SourceAccounting {
		return nil
	}
	for _, g := range gaps {
		if g == "no_brand_lines" {
			return []string{g}
		}
	}
	return nil
}

// fatalGaps decides which extraction gaps make a fact unusable for a given
// source, plus cross-field validation no single normalizer can do alone.
func fatalGaps(source Source, fact orders.Fact, gaps []string) []string {
	var fatal []string
	if source == SourceEmail {
		for _, g := range gaps {
			if g == extract.GapChannel || g == extract.GapNegotiationID {
				fatal = append(fatal, g)
			}
		}
	}
	if fact.ExternalOrderID == "" && !fact.MatchOnly {
		fatal = append(fatal, "external_order_id_missing")
	}
	// Power rating is mandatory exactly for SecondSol solar panels; the
	// calculator would silently treat it as zero watts.
	if fact.Channel == margin.ChannelSecondSol {
		for _, l := range fact.Lines {
			if l.Category == margin.CategorySolarPanels && l.PowerRatingW == nil {
				fatal = append(fatal, "power_rating_required")
				break
			}
		}
	}
	return fatal
}
