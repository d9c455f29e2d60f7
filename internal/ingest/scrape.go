package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/extract"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/orders"
)

// ScrapeResult is the structured output of a headless-browser run against a
// marketplace negotiation page. The automation itself is someone else's
// problem; only its output enters the engine.
type ScrapeResult struct {
	Channel         string    `json:"channel" validate:"required"`
	NegotiationID   string    `json:"negotiation_id" validate:"required"`
	URL             string    `json:"url"`
	ProductRefs     []string  `json:"product_refs"`
	DetectedAmounts []string  `json:"detected_amounts"`
	TransactionRef  string    `json:"transaction_ref"`
	ClientName      string    `json:"client_name"`
	ScrapedAt       time.Time `json:"scraped_at"`
}

// NormalizeScrape maps a scrape result to an order fact. The payload already
// carries refs and amounts; this stage only renames fields and synthesizes a
// line per detected reference, quantity 1 unless the scraped text says
// otherwise.
func NormalizeScrape(res ScrapeResult) (orders.Fact, []string) {
	var gaps []string

	channel, _ := extract.DetectChannel("", res.Channel, res.URL)
	if channel == "" {
		gaps = append(gaps, extract.GapChannel)
	}

	fact := orders.Fact{
		Source:          string(SourceScrape),
		SourceEventID:   scrapeEventID(res),
		Channel:         channel,
		ExternalOrderID: res.NegotiationID,
		TransactionRef:  res.TransactionRef,
		CustomerName:    res.ClientName,
		StatusHint:      orders.StatusEnriched,
	}
	if !res.ScrapedAt.IsZero() {
		date := res.ScrapedAt
		fact.OrderDate = &date
	}

	amounts := make([]decimal.Decimal, 0, len(res.DetectedAmounts))
	for _, raw := range res.DetectedAmounts {
		if v, ok := extract.ParseAmount(raw); ok {
			amounts = append(amounts, v)
		}
	}

	for i, ref := range res.ProductRefs {
		lf := orders.LineFact{
			ProductRef: strings.ToUpper(strings.TrimSpace(ref)),
			Category:   CategoryForRef(ref),
			Quantity:   decimal.NewFromInt(1),
		}
		if len(amounts) == len(res.ProductRefs) {
			lf.UnitSellPrice = amounts[i]
		} else if len(amounts) == 1 && len(res.ProductRefs) == 1 {
			lf.UnitSellPrice = amounts[0]
		}
		fact.Lines = append(fact.Lines, lf)
		fact.ProductRefs = append(fact.ProductRefs, lf.ProductRef)
	}
	if len(fact.Lines) == 0 {
		gaps = append(gaps, extract.GapProductRefs)
	}

	if raw, err := json.Marshal(res); err == nil {
		fact.Raw = raw
	}
	fact.Gaps = gaps
	return fact, gaps
}

// scrapeEventID makes scrape runs idempotent per negotiation and scrape
// timestamp, so a retried cycle does not double-apply.
func scrapeEventID(res ScrapeResult) string {
	if res.ScrapedAt.IsZero() {
		return "scrape-" + res.NegotiationID
	}
	return fmt.Sprintf("scrape-%s-%d", res.NegotiationID, res.ScrapedAt.Unix())
}
