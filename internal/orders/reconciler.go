package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/margin"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/money"
)

var (
	// ErrOrderNotFound is returned when a match-only fact cannot be tied
	// to any existing order. It is a per-event outcome, not a batch
	// failure.
	ErrOrderNotFound = errors.New("order not found")
)

// ApplyStatus classifies the outcome of applying one fact.
type ApplyStatus string

const (
	ApplyProcessed ApplyStatus = "processed"
	ApplyFailed    ApplyStatus = "failed"
)

// ApplyResult is what the reconciler reports back per fact, consumed by the
// ingest pipeline and the notification layer.
type ApplyResult struct {
	Status          ApplyStatus `json:"status"`
	OrderID         int64       `json:"order_id"`
	ExternalOrderID string      `json:"external_order_id"`
	TransactionRef  string      `json:"transaction_ref,omitempty"`
	LinesAffected   int         `json:"lines_affected"`
}

// Reconciler merges normalized order facts into the canonical order + line
// set. Every apply is a full read-merge-write of one order's state inside a
// transaction: correctness under concurrent producers rests on never patching
// derived fields in place.
type Reconciler struct {
	repo   Repository
	rates  margin.Rates
	volume margin.VolumeTracker
	logger *slog.Logger
}

func NewReconciler(repo Repository, rates margin.Rates, volume margin.VolumeTracker, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{repo: repo, rates: rates, volume: volume, logger: logger}
}

// Apply upserts the canonical order for the fact, replaces or reallocates its
// lines, and recomputes every derived field.
func (r *Reconciler) Apply(ctx context.Context, storeID string, fact Fact) (ApplyResult, error) {
	var result ApplyResult
	var wattsAdded int64

	err := r.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		order, err := r.locate(ctx, repo, storeID, fact)
		if err != nil {
			return err
		}

		created := false
		if order == nil {
			if fact.MatchOnly {
				return ErrOrderNotFound
			}
			order = &Order{
				StoreID:         storeID,
				Channel:         fact.Channel,
				ExternalOrderID: fact.ExternalOrderID,
				Status:          StatusProvisional,
			}
			created = true
		}

		mergeFact(order, fact)

		priorWatts := int64(0)
		if r.volume != nil && order.Channel == margin.ChannelSecondSol {
			priorWatts, err = r.volume.CumulativeWatts(ctx, storeID)
			if err != nil {
				return err
			}
		}

		var lines []SaleLine
		if fact.HasLineData() {
			lines = replaceLines(order, fact.Lines)
		} else {
			lines = order.Lines
		}
		allocateShipping(order, lines)
		wattsAdded, err = r.recompute(order, lines, priorWatts)
		if err != nil {
			return err
		}

		if created {
			id, err := repo.Create(ctx, *order)
			if err != nil {
				return fmt.Errorf("create order: %w", err)
			}
			order.ID = id
		} else {
			if err := repo.Update(ctx, *order); err != nil {
				return fmt.Errorf("update order: %w", err)
			}
		}
		for i := range lines {
			lines[i].OrderID = order.ID
		}
		if err := repo.ReplaceLines(ctx, order.ID, lines); err != nil {
			return fmt.Errorf("replace lines: %w", err)
		}

		result = ApplyResult{
			Status:          ApplyProcessed,
			OrderID:         order.ID,
			ExternalOrderID: order.ExternalOrderID,
			LinesAffected:   len(lines),
		}
		if order.TransactionRef != nil {
			result.TransactionRef = *order.TransactionRef
		}
		return nil
	})
	if err != nil {
		return ApplyResult{Status: ApplyFailed, ExternalOrderID: fact.ExternalOrderID}, err
	}

	// The volume counter only advances after the order committed; a failed
	// apply must not consume threshold headroom.
	if r.volume != nil && wattsAdded > 0 {
		if _, err := r.volume.AddWatts(ctx, storeID, wattsAdded); err != nil {
			r.logger.Warn("advance watts counter", slog.Any("error", err))
		}
	}
	return result, nil
}

// locate finds the order a fact belongs to. Identity lookup is by
// (store, channel, external order id); match-only facts carry no channel of
// their own, so they fall back to a channel-agnostic order-code lookup, then
// transaction-ref equality, then an external-id prefix heuristic.
func (r *Reconciler) locate(ctx context.Context, repo Repository, storeID string, fact Fact) (*Order, error) {
	if fact.ExternalOrderID != "" {
		order, err := repo.GetByExternalID(ctx, storeID, fact.Channel, fact.ExternalOrderID)
		if err != nil && !errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}
		if order != nil {
			return order, nil
		}
	}
	if !fact.MatchOnly {
		return nil, nil
	}
	if fact.ExternalOrderID != "" {
		order, err := repo.FindByExternalID(ctx, storeID, fact.ExternalOrderID)
		if err != nil && !errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}
		if order != nil {
			return order, nil
		}
	}
	if fact.TransactionRef != "" {
		order, err := repo.GetByTransactionRef(ctx, storeID, fact.TransactionRef)
		if err != nil && !errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}
		if order != nil {
			return order, nil
		}
	}
	if len(fact.ExternalOrderID) >= 6 {
		order, err := repo.FindByExternalIDPrefix(ctx, storeID, fact.ExternalOrderID[:6])
		if err != nil && !errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}
		if order != nil {
			return order, nil
		}
	}
	return nil, nil
}

// mergeFact folds a fact's fields into the order: existing non-nil values are
// kept when the fact is silent, status only ever advances.
func mergeFact(order *Order, fact Fact) {
	if order.Channel == "" {
		order.Channel = fact.Channel
	}
	if order.ExternalOrderID == "" {
		order.ExternalOrderID = fact.ExternalOrderID
	}
	if order.OrderDate == nil && fact.OrderDate != nil {
		order.OrderDate = fact.OrderDate
	}
	if order.TransactionRef == nil && fact.TransactionRef != "" {
		ref := fact.TransactionRef
		order.TransactionRef = &ref
	}
	if order.CustomerName == nil && fact.CustomerName != "" {
		name := fact.CustomerName
		order.CustomerName = &name
	}
	if order.CustomerCountry == nil && fact.CustomerCountry != "" {
		country := fact.CustomerCountry
		order.CustomerCountry = &country
	}
	if order.PaymentMethod == nil && fact.PaymentMethod != "" {
		pm := fact.PaymentMethod
		order.PaymentMethod = &pm
	}
	if fact.ShippingCharged != nil {
		order.ShippingCharged = fact.ShippingCharged
	}
	if fact.ShippingChargedGross != nil {
		order.ShippingChargedGross = fact.ShippingChargedGross
	}
	if fact.RealShippingCost != nil {
		order.RealShippingCost = fact.RealShippingCost
	}
	if fact.FeesPlatform != nil {
		order.FeesPlatform = fact.FeesPlatform
	}
	if fact.FeesProcessor != nil {
		order.FeesProcessor = fact.FeesProcessor
	}
	if fact.NetReceived != nil {
		order.NetReceived = fact.NetReceived
	}
	if fact.Tracking != nil {
		if fact.Tracking.Number != "" {
			num := fact.Tracking.Number
			order.TrackingNumber = &num
		}
		if fact.Tracking.URL != "" {
			url := fact.Tracking.URL
			order.TrackingURL = &url
		}
		if fact.Tracking.Status != "" {
			st := fact.Tracking.Status
			order.ShipmentStatus = &st
		}
	}
	if len(fact.Raw) > 0 {
		order.SourcePayload = mergePayload(order.SourcePayload, fact.Raw)
	}
	order.LastSource = fact.Source
	order.Status = order.Status.Advance(fact.StatusHint)
}

// replaceLines builds a fresh line set from the fact, preserving enrichment
// fields from existing lines matched by product reference.
func replaceLines(order *Order, facts []LineFact) []SaleLine {
	existing := order.Lines
	candidates := make([]string, len(existing))
	for i, l := range existing {
		candidates[i] = l.ProductRef
	}

	pm := margin.PaymentMethod("")
	if order.PaymentMethod != nil {
		pm = *order.PaymentMethod
	}

	lines := make([]SaleLine, 0, len(facts))
	for _, lf := range facts {
		line := SaleLine{
			OrderID:       order.ID,
			ProductRef:    lf.ProductRef,
			Category:      lf.Category,
			Quantity:      lf.Quantity,
			UnitSellPrice: lf.UnitSellPrice,
			UnitCost:      lf.UnitCost,
			PowerRatingW:  lf.PowerRatingW,
			PaymentMethod: pm,
		}
		if lf.ShippingChargedPart != nil {
			line.ShippingChargedPart = *lf.ShippingChargedPart
		}
		if ref, ok := BestRefMatch(candidates, lf.ProductRef); ok {
			line.ProductRef = ref
			for _, prev := range existing {
				if prev.ProductRef != ref {
					continue
				}
				line.ID = prev.ID
				line.TrackingNumber = prev.TrackingNumber
				line.TrackingURL = prev.TrackingURL
				line.RealShippingCost = prev.RealShippingCost
				line.AttachmentIDs = prev.AttachmentIDs
				if line.UnitCost.IsZero() && !prev.UnitCost.IsZero() {
					line.UnitCost = prev.UnitCost
				}
				break
			}
		}
		lines = append(lines, line)
	}
	return lines
}

// allocateShipping distributes the order-level shipping amounts across the
// lines. Weights are each line's pre-shipping sell total; when every sell
// total is zero the quantities serve as weights instead.
func allocateShipping(order *Order, lines []SaleLine) {
	if len(lines) == 0 {
		return
	}

	weights := make([]decimal.Decimal, len(lines))
	allZero := true
	for i, l := range lines {
		weights[i] = money.Round2(l.Quantity.Mul(l.UnitSellPrice))
		if !weights[i].IsZero() {
			allZero = false
		}
	}
	if allZero {
		for i, l := range lines {
			weights[i] = l.Quantity
		}
	}

	if order.ShippingCharged != nil {
		parts := money.Allocate(*order.ShippingCharged, weights)
		for i := range lines {
			lines[i].ShippingChargedPart = parts[i]
		}
	}
	if order.ShippingChargedGross != nil {
		parts := money.Allocate(*order.ShippingChargedGross, weights)
		for i := range lines {
			lines[i].ShippingChargedGrossPart = parts[i]
		}
	}
	if order.RealShippingCost != nil {
		parts := money.Allocate(*order.RealShippingCost, weights)
		for i := range lines {
			lines[i].ShippingCostPart = parts[i]
		}
	}
}

// recompute re-derives every money field on every line. Returns the watts
// this apply adds to the store's cumulative SecondSol volume.
func (r *Reconciler) recompute(order *Order, lines []SaleLine, priorWatts int64) (int64, error) {
	var wattsAdded int64
	cumulative := priorWatts
	for i := range lines {
		l := &lines[i]
		res, err := margin.Compute(r.rates, margin.Input{
			Quantity:        l.Quantity,
			UnitSellPrice:   l.UnitSellPrice,
			UnitCost:        l.UnitCost,
			ShippingCharged: l.ShippingChargedPart,
			ShippingCost:    l.ShippingCostPart,
			Channel:         order.Channel,
			Category:        l.Category,
			PaymentMethod:   l.PaymentMethod,
			PowerRatingW:    l.PowerRatingW,
			CumulativeWatts: cumulative,
		})
		if err != nil {
			return 0, fmt.Errorf("line %s: %w", l.ProductRef, err)
		}
		l.SellTotal = res.SellTotal
		l.TransactionValue = res.TransactionValue
		l.Commission = res.Commission
		l.Fee = res.Fee
		l.NetReceived = res.NetReceived
		l.TotalCost = res.TotalCost
		l.GrossMargin = res.GrossMargin
		l.NetMargin = res.NetMargin
		l.NetMarginPct = res.NetMarginPct

		// Only lines seen for the first time advance the volume counter;
		// matched lines were counted when they first appeared.
		if l.ID == 0 && order.Channel == margin.ChannelSecondSol && l.Category == margin.CategorySolarPanels && l.PowerRatingW != nil {
			w := l.Quantity.Mul(*l.PowerRatingW).IntPart()
			cumulative += w
			wattsAdded += w
		}
	}
	return wattsAdded, nil
}
