package orders

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/margin"
)

// OrderStatus tracks how complete our knowledge of an order is. Transitions
// are monotonic; this engine never promotes to VALIDATED (that is a human
// action) and never downgrades.
type OrderStatus string

const (
	StatusProvisional     OrderStatus = "PROVISIONAL"
	StatusEnriched        OrderStatus = "ENRICHED"
	StatusNeedsCompletion OrderStatus = "NEEDS_COMPLETION"
	StatusValidated       OrderStatus = "VALIDATED"
)

func (s OrderStatus) rank() int {
	switch s {
	case StatusProvisional:
		return 1
	case StatusEnriched:
		return 2
	case StatusNeedsCompletion:
		return 3
	case StatusValidated:
		return 4
	default:
		return 0
	}
}

// Advance returns the higher of the two statuses, capped below VALIDATED so
// ingestion can never validate an order on its own.
func (s OrderStatus) Advance(next OrderStatus) OrderStatus {
	if next == "" || next == StatusValidated {
		return s
	}
	if next.rank() > s.rank() {
		return next
	}
	return s
}

// Order is the canonical record binding a set of sale lines, unique per
// (store, channel, external order id).
type Order struct {
	ID              int64                 `json:"id" db:"id"`
	StoreID         string                `json:"store_id" db:"store_id"`
	Channel         margin.Channel        `json:"channel" db:"channel"`
	ExternalOrderID string                `json:"external_order_id" db:"external_order_id"`
	OrderDate       *time.Time            `json:"order_date,omitempty" db:"order_date"`
	TransactionRef  *string               `json:"transaction_ref,omitempty" db:"transaction_ref"`
	CustomerName    *string               `json:"customer_name,omitempty" db:"customer_name"`
	CustomerCountry *string               `json:"customer_country,omitempty" db:"customer_country"`
	PaymentMethod   *margin.PaymentMethod `json:"payment_method,omitempty" db:"payment_method"`
	Status          OrderStatus           `json:"status" db:"status"`

	// Order-level shared amounts. Nil means the fact stream has not
	// supplied them yet.
	ShippingCharged      *decimal.Decimal `json:"shipping_charged,omitempty" db:"shipping_charged"`
	ShippingChargedGross *decimal.Decimal `json:"shipping_charged_gross,omitempty" db:"shipping_charged_gross"`
	RealShippingCost     *decimal.Decimal `json:"real_shipping_cost,omitempty" db:"real_shipping_cost"`
	FeesPlatform         *decimal.Decimal `json:"fees_platform,omitempty" db:"fees_platform"`
	FeesProcessor        *decimal.Decimal `json:"fees_processor,omitempty" db:"fees_processor"`
	NetReceived          *decimal.Decimal `json:"net_received,omitempty" db:"net_received"`

	TrackingNumber *string `json:"tracking_number,omitempty" db:"tracking_number"`
	TrackingURL    *string `json:"tracking_url,omitempty" db:"tracking_url"`
	ShipmentStatus *string `json:"shipment_status,omitempty" db:"shipment_status"`

	LastSource    string          `json:"last_source" db:"last_source"`
	SourcePayload json.RawMessage `json:"source_payload,omitempty" db:"source_payload"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	Lines     []SaleLine `json:"lines,omitempty" db:"-"`
}

// SaleLine is one product reference within an order. Derived fields are a
// pure function of the line's own inputs and are recomputed on every
// mutation, never edited directly.
type SaleLine struct {
	ID            int64                `json:"id" db:"id"`
	OrderID       int64                `json:"order_id" db:"order_id"`
	ProductRef    string               `json:"product_ref" db:"product_ref"`
	Category      margin.Category      `json:"category" db:"category"`
	Quantity      decimal.Decimal      `json:"quantity" db:"quantity"`
	UnitSellPrice decimal.Decimal      `json:"unit_sell_price" db:"unit_sell_price"`
	UnitCost      decimal.Decimal      `json:"unit_cost" db:"unit_cost"`
	PaymentMethod margin.PaymentMethod `json:"payment_method" db:"payment_method"`
	PowerRatingW  *decimal.Decimal     `json:"power_rating_w,omitempty" db:"power_rating_w"`

	// Allocated portions of the order-level shipping amounts.
	ShippingChargedPart      decimal.Decimal `json:"shipping_charged_part" db:"shipping_charged_part"`
	ShippingChargedGrossPart decimal.Decimal `json:"shipping_charged_gross_part" db:"shipping_charged_gross_part"`
	ShippingCostPart         decimal.Decimal `json:"shipping_cost_part" db:"shipping_cost_part"`

	// Derived.
	SellTotal        decimal.Decimal `json:"sell_total" db:"sell_total"`
	TransactionValue decimal.Decimal `json:"transaction_value" db:"transaction_value"`
	Commission       decimal.Decimal `json:"commission" db:"commission"`
	Fee              decimal.Decimal `json:"fee" db:"fee"`
	NetReceived      decimal.Decimal `json:"net_received" db:"net_received"`
	TotalCost        decimal.Decimal `json:"total_cost" db:"total_cost"`
	GrossMargin      decimal.Decimal `json:"gross_margin" db:"gross_margin"`
	NetMargin        decimal.Decimal `json:"net_margin" db:"net_margin"`
	NetMarginPct     decimal.Decimal `json:"net_margin_pct" db:"net_margin_pct"`

	// Enrichment, preserved across wholesale line replacement.
	TrackingNumber   *string          `json:"tracking_number,omitempty" db:"tracking_number"`
	TrackingURL      *string          `json:"tracking_url,omitempty" db:"tracking_url"`
	RealShippingCost *decimal.Decimal `json:"real_shipping_cost,omitempty" db:"real_shipping_cost"`
	AttachmentIDs    []string         `json:"attachment_ids,omitempty" db:"attachment_ids"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Fact is a normalized, source-tagged snapshot of what one event tells us
// about an order. Nil pointer fields mean "this source says nothing about
// that"; the reconciler leaves existing values untouched for them.
type Fact struct {
	Source          string
	SourceEventID   string
	Channel         margin.Channel
	ExternalOrderID string
	OrderDate       *time.Time
	TransactionRef  string
	CustomerName    string
	CustomerCountry string
	PaymentMethod   margin.PaymentMethod

	ShippingCharged      *decimal.Decimal
	ShippingChargedGross *decimal.Decimal
	RealShippingCost     *decimal.Decimal
	FeesPlatform         *decimal.Decimal
	FeesProcessor        *decimal.Decimal
	NetReceived          *decimal.Decimal

	ProductRefs []string
	Lines       []LineFact

	Tracking *TrackingUpdate

	// StatusHint is the status this fact justifies; the reconciler only
	// ever advances.
	StatusHint OrderStatus

	// MatchOnly facts (shipments) may never create an order; an unmatched
	// one surfaces as ErrOrderNotFound.
	MatchOnly bool

	Gaps []string
	Raw  json.RawMessage
}

// LineFact is the line-level payload a wholesale-replacing fact carries.
type LineFact struct {
	ProductRef          string
	Category            margin.Category
	Quantity            decimal.Decimal
	UnitSellPrice       decimal.Decimal
	UnitCost            decimal.Decimal
	PowerRatingW        *decimal.Decimal
	ShippingChargedPart *decimal.Decimal
}

// TrackingUpdate carries shipment-side enrichment.
type TrackingUpdate struct {
	Number string
	URL    string
	Status string
}

// HasLineData reports whether applying this fact replaces the line set.
func (f Fact) HasLineData() bool {
	return len(f.Lines) > 0
}
