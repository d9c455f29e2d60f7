package ingest

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/margin"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/money"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/orders"
)

// AccountingSalesOrder is the sales-order object the accounting system
// delivers, by webhook or by the nightly sync.
type AccountingSalesOrder struct {
	ID               string               `json:"salesorder_id" validate:"required"`
	Number           string               `json:"salesorder_number"`
	Date             string               `json:"date"`
	ReferenceNumber  string               `json:"reference_number"`
	CustomerName     string               `json:"customer_name"`
	ShippingCharge   json.Number          `json:"shipping_charge"`
	ShippingChargeIn json.Number          `json:"shipping_charge_inclusive_of_tax"`
	LastModifiedTime string               `json:"last_modified_time"`
	BillingAddress   *AccountingAddress   `json:"billing_address"`
	LineItems        []AccountingLineItem `json:"line_items"`
	CustomFields     []AccountingField    `json:"custom_fields"`
}

type AccountingAddress struct {
	Country string `json:"country"`
}

type AccountingLineItem struct {
	SKU          string      `json:"sku"`
	Name         string      `json:"name"`
	Description  string      `json:"description"`
	Quantity     json.Number `json:"quantity"`
	Rate         json.Number `json:"rate"`
	PurchaseRate json.Number `json:"purchase_rate"`
	ItemTotal    json.Number `json:"item_total"`
}

type AccountingField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

var nameCaser = cases.Title(language.German)

func numDec(n json.Number) decimal.Decimal {
	if n == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero
	}
	return v
}

// NormalizeAccounting maps an accounting sales order to an order fact:
// shipping lines are split off from product lines, header and line-level
// shipping is redistributed across the product lines by weight, and only
// brand products survive the filter. An existing record's enrichment fields
// are preserved by the reconciler's merge, not overwritten here.
func NormalizeAccounting(so AccountingSalesOrder, eventID string) (orders.Fact, []string) {
	var gaps []string

	fact := orders.Fact{
		Source:          string(SourceAccounting),
		SourceEventID:   eventID,
		Channel:         accountingChannel(so),
		ExternalOrderID: accountingOrderID(so),
		TransactionRef:  so.ReferenceNumber,
		CustomerName:    normalizeName(so.CustomerName),
		StatusHint:      orders.StatusEnriched,
		PaymentMethod:   accountingPaymentMethod(so),
	}
	if so.BillingAddress != nil {
		fact.CustomerCountry = so.BillingAddress.Country
	}
	if d := parseAccountingDate(so.Date); d != nil {
		fact.OrderDate = d
	}

	// Partition line items: shipping lines contribute to the shared
	// shipping pot, product lines become sale lines, anything off-brand
	// is dropped.
	shippingTotal := numDec(so.ShippingCharge)
	shippingGross := numDec(so.ShippingChargeIn)
	var products []AccountingLineItem
	for _, item := range so.LineItems {
		if orders.IsShippingLine(item.SKU, item.Name) {
			shippingTotal = shippingTotal.Add(numDec(item.ItemTotal))
			continue
		}
		if !orders.IsBrandItem(item.SKU, item.Name) {
			continue
		}
		products = append(products, item)
	}
	if len(products) == 0 {
		gaps = append(gaps, "no_brand_lines")
	}

	if shippingTotal.IsPositive() {
		fact.ShippingCharged = &shippingTotal
	}
	if shippingGross.IsPositive() {
		fact.ShippingChargedGross = &shippingGross
	}

	// Pre-distribute the shipping pot so downstream consumers see the
	// per-line split even before the reconciler re-runs allocation.
	weights := make([]decimal.Decimal, len(products))
	for i, item := range products {
		weights[i] = money.Round2(numDec(item.Quantity).Mul(numDec(item.Rate)))
	}
	var parts []decimal.Decimal
	if shippingTotal.IsPositive() && len(products) > 0 {
		parts = money.Allocate(shippingTotal, weights)
	}

	for i, item := range products {
		ref := productRefFor(item)
		lf := orders.LineFact{
			ProductRef:    ref,
			Category:      CategoryForRef(ref),
			Quantity:      numDec(item.Quantity),
			UnitSellPrice: numDec(item.Rate),
			UnitCost:      numDec(item.PurchaseRate),
		}
		if parts != nil {
			part := parts[i]
			lf.ShippingChargedPart = &part
		}
		fact.Lines = append(fact.Lines, lf)
		fact.ProductRefs = append(fact.ProductRefs, ref)
	}

	if raw, err := json.Marshal(so); err == nil {
		fact.Raw = raw
	}
	fact.Gaps = gaps
	return fact, gaps
}

func accountingOrderID(so AccountingSalesOrder) string {
	if so.Number != "" {
		return so.Number
	}
	return so.ID
}

// accountingChannel reads the channel custom field, defaulting to direct
// sales when the accounting record does not say.
func accountingChannel(so AccountingSalesOrder) margin.Channel {
	for _, f := range so.CustomFields {
		if strings.EqualFold(f.Label, "channel") {
			switch strings.ToLower(strings.TrimSpace(f.Value)) {
			case "sun.store", "sunstore":
				return margin.ChannelSunStore
			case "secondsol":
				return margin.ChannelSecondSol
			case "direct":
				return margin.ChannelDirect
			default:
				return margin.ChannelOther
			}
		}
	}
	return margin.ChannelDirect
}

func accountingPaymentMethod(so AccountingSalesOrder) margin.PaymentMethod {
	for _, f := range so.CustomFields {
		if strings.EqualFold(f.Label, "payment_method") {
			switch strings.ToLower(strings.TrimSpace(f.Value)) {
			case "card", "stripe":
				return margin.PaymentCard
			case "wire", "bank", "sepa":
				return margin.PaymentWire
			case "paypal", "wallet":
				return margin.PaymentWallet
			case "cash":
				return margin.PaymentCash
			}
		}
	}
	return ""
}

// productRefFor prefers the SKU when it looks like a model code, otherwise
// digs the ref out of the display name.
func productRefFor(item AccountingLineItem) string {
	sku := strings.ToUpper(strings.TrimSpace(item.SKU))
	if sku != "" && strings.Contains(sku, "-") {
		return sku
	}
	name := strings.ToUpper(strings.TrimSpace(item.Name))
	for _, tok := range strings.Fields(name) {
		if strings.Contains(tok, "-") && strings.ContainsAny(tok, "0123456789") {
			return tok
		}
	}
	if sku != "" {
		return sku
	}
	return name
}

func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if name == strings.ToUpper(name) || name == strings.ToLower(name) {
		return nameCaser.String(strings.ToLower(name))
	}
	return name
}

func parseAccountingDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
