package ingest

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/extract"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/margin"
)

func TestNormalizeEmailFull(t *testing.T) {
	fact, gaps := NormalizeEmail(InboundEmail{
		MessageID: "msg-1",
		FromEmail: "notifications@sun.store",
		Subject:   "New negotiations [#wpT5sgv0] awaits you!",
		Text:      "Buyer wants SUN2000-12K-MAP0 listed at 2.499,00 EUR",
	})

	assert.Empty(t, gaps)
	assert.Equal(t, "email", fact.Source)
	assert.Equal(t, "msg-1", fact.SourceEventID)
	assert.Equal(t, margin.ChannelSunStore, fact.Channel)
	assert.Equal(t, "wpT5sgv0", fact.ExternalOrderID)
	assert.Equal(t, []string{"SUN2000-12K-MAP0"}, fact.ProductRefs)
	require.Len(t, fact.Lines, 1)
	assert.Equal(t, margin.CategoryInverters, fact.Lines[0].Category)
	assert.Equal(t, "2499.00", fact.Lines[0].UnitSellPrice.StringFixed(2))
	assert.Equal(t, "1", fact.Lines[0].Quantity.String())
}

func TestNormalizeEmailMissingNegotiationID(t *testing.T) {
	fact, gaps := NormalizeEmail(InboundEmail{
		MessageID: "msg-2",
		FromEmail: "notifications@sun.store",
		Subject:   "Weekly digest",
		Text:      "nothing here",
	})

	assert.Empty(t, fact.ExternalOrderID)
	assert.Contains(t, gaps, extract.GapNegotiationID)
}

func TestNormalizePaymentMetadataWins(t *testing.T) {
	object, _ := json.Marshal(map[string]any{
		"id":                   "pi_3abc",
		"object":               "payment_intent",
		"amount":               103000,
		"currency":             "eur",
		"metadata":             map[string]string{"negotiation_id": "wpT5sgv0"},
		"payment_method_types": []string{"card"},
		"balance_transaction": map[string]any{
			"fee": 1500,
			"net": 101500,
		},
		"customer_details": map[string]any{
			"name":    "Jane Smith",
			"address": map[string]string{"country": "DE"},
		},
	})
	ev := PaymentEvent{ID: "evt_1", Type: "payment_intent.succeeded", Created: 1724659200}
	ev.Data.Object = object

	fact, gaps := NormalizePayment(ev)
	assert.Empty(t, gaps)
	assert.Equal(t, "wpT5sgv0", fact.ExternalOrderID)
	assert.Equal(t, "pi_3abc", fact.TransactionRef)
	assert.Equal(t, margin.PaymentCard, fact.PaymentMethod)
	assert.Equal(t, "Jane Smith", fact.CustomerName)
	assert.Equal(t, "DE", fact.CustomerCountry)
	require.NotNil(t, fact.FeesProcessor)
	assert.Equal(t, "15.00", fact.FeesProcessor.StringFixed(2))
	require.NotNil(t, fact.NetReceived)
	assert.Equal(t, "1015.00", fact.NetReceived.StringFixed(2))
}

func TestNormalizePaymentFallbackChain(t *testing.T) {
	// Object id second in the chain.
	object, _ := json.Marshal(map[string]any{"id": "cs_55", "amount": 5000})
	ev := PaymentEvent{ID: "evt_2", Type: "checkout.session.completed"}
	ev.Data.Object = object
	fact, _ := NormalizePayment(ev)
	assert.Equal(t, "cs_55", fact.ExternalOrderID)

	// Nothing usable: synthesized deterministically from the event id.
	empty, _ := json.Marshal(map[string]any{"amount": 5000})
	ev2 := PaymentEvent{ID: "evt_3", Type: "charge.succeeded"}
	ev2.Data.Object = empty
	fact2, gaps := NormalizePayment(ev2)
	assert.Contains(t, gaps, "payment_order_id_synthesized")
	assert.NotEmpty(t, fact2.ExternalOrderID)

	fact2again, _ := NormalizePayment(ev2)
	assert.Equal(t, fact2.ExternalOrderID, fact2again.ExternalOrderID)
}

func TestNormalizePaymentNetFallsBackToGrossMinusFees(t *testing.T) {
	object, _ := json.Marshal(map[string]any{
		"id":                     "pi_9",
		"amount":                 10000,
		"application_fee_amount": 500,
	})
	ev := PaymentEvent{ID: "evt_4", Type: "payment_intent.succeeded"}
	ev.Data.Object = object

	fact, _ := NormalizePayment(ev)
	require.NotNil(t, fact.NetReceived)
	assert.Equal(t, "95.00", fact.NetReceived.StringFixed(2))
}

func TestNormalizeScrapeSynthesizesLines(t *testing.T) {
	fact, gaps := NormalizeScrape(ScrapeResult{
		Channel:         "sun.store",
		NegotiationID:   "wpT5sgv0",
		URL:             "https://sun.store/negotiations/wpT5sgv0",
		ProductRefs:     []string{"SUN2000-12K-MAP0", "LUNA2000-5-S0"},
		DetectedAmounts: []string{"2.499,00", "3.100,00"},
		ClientName:      "Jane Smith",
		ScrapedAt:       time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC),
	})

	assert.Empty(t, gaps)
	assert.Equal(t, margin.ChannelSunStore, fact.Channel)
	require.Len(t, fact.Lines, 2)
	assert.Equal(t, "1", fact.Lines[0].Quantity.String())
	assert.Equal(t, "2499.00", fact.Lines[0].UnitSellPrice.StringFixed(2))
	assert.Equal(t, margin.CategoryBatteries, fact.Lines[1].Category)
	assert.Equal(t, "3100.00", fact.Lines[1].UnitSellPrice.StringFixed(2))
}

func TestNormalizeAccountingSplitsShippingAndFiltersBrand(t *testing.T) {
	so := AccountingSalesOrder{
		ID:              "9000001",
		Number:          "SO-1001",
		Date:            "2026-08-20",
		ReferenceNumber: "pi_3abc",
		CustomerName:    "JANE SMITH GMBH",
		BillingAddress:  &AccountingAddress{Country: "Germany"},
		ShippingCharge:  json.Number("40.00"),
		LineItems: []AccountingLineItem{
			{SKU: "SUN2000-12K-MAP0", Name: "Huawei SUN2000-12K-MAP0", Quantity: "1", Rate: "2000.00", PurchaseRate: "1500.00"},
			{SKU: "LUNA2000-5-S0", Name: "Huawei LUNA2000-5-S0", Quantity: "2", Rate: "1500.00", PurchaseRate: "1100.00"},
			{SKU: "SHIP-STD", Name: "Versandkosten", Quantity: "1", Rate: "60.00", ItemTotal: "60.00"},
			{SKU: "SMA-TP10", Name: "SMA Tripower 10", Quantity: "1", Rate: "900.00"},
		},
		CustomFields: []AccountingField{{Label: "Channel", Value: "sun.store"}},
	}

	fact, gaps := NormalizeAccounting(so, "acct-1")
	assert.Empty(t, gaps)
	assert.Equal(t, "SO-1001", fact.ExternalOrderID)
	assert.Equal(t, margin.ChannelSunStore, fact.Channel)
	assert.Equal(t, "Jane Smith Gmbh", fact.CustomerName)

	// Only the two brand lines survive; the SMA line and the shipping
	// line are gone.
	require.Len(t, fact.Lines, 2)

	// Header shipping 40 plus shipping line 60 = 100, split by weight
	// 2000 : 3000.
	require.NotNil(t, fact.ShippingCharged)
	assert.Equal(t, "100.00", fact.ShippingCharged.StringFixed(2))
	require.NotNil(t, fact.Lines[0].ShippingChargedPart)
	assert.Equal(t, "40.00", fact.Lines[0].ShippingChargedPart.StringFixed(2))
	require.NotNil(t, fact.Lines[1].ShippingChargedPart)
	assert.Equal(t, "60.00", fact.Lines[1].ShippingChargedPart.StringFixed(2))

	assert.Equal(t, "1500.00", fact.Lines[0].UnitCost.StringFixed(2))
}

func TestNormalizeShipmentAliases(t *testing.T) {
	raw := json.RawMessage(`{
		"shipmentId": "shp_77",
		"orderCode": "wpT5sgv0",
		"trackingNumber": "00340434217",
		"track_url": "https://dhl.de/track/00340434217",
		"state": "IN_TRANSIT",
		"price_net": "24,90"
	}`)

	fact, gaps := NormalizeShipment(raw)
	assert.Empty(t, gaps)
	assert.True(t, fact.MatchOnly)
	assert.Equal(t, "shp_77", fact.SourceEventID)
	assert.Equal(t, "wpT5sgv0", fact.ExternalOrderID)
	require.NotNil(t, fact.RealShippingCost)
	assert.Equal(t, "24.90", fact.RealShippingCost.StringFixed(2))
	require.NotNil(t, fact.Tracking)
	assert.Equal(t, "00340434217", fact.Tracking.Number)
	assert.Equal(t, "in_transit", fact.Tracking.Status)
}

func TestNormalizeShipmentOrderCodeFromText(t *testing.T) {
	raw := json.RawMessage(`{"id": "shp_78", "note": "delivery for negotiation #wpT5sgv0"}`)
	fact, gaps := NormalizeShipment(raw)
	assert.Empty(t, gaps)
	assert.Equal(t, "wpT5sgv0", fact.ExternalOrderID)
}

func TestNormalizeShipmentMissingOrderCode(t *testing.T) {
	raw := json.RawMessage(`{"id": "shp_79", "trackingNumber": "XYZ"}`)
	_, gaps := NormalizeShipment(raw)
	assert.Contains(t, gaps, "shipment_order_code_not_detected")
}

func TestCategoryForRef(t *testing.T) {
	assert.Equal(t, margin.CategoryInverters, CategoryForRef("SUN2000-12K-MAP0"))
	assert.Equal(t, margin.CategoryBatteries, CategoryForRef("LUNA2000-5-S0"))
	assert.Equal(t, margin.CategorySolarPanels, CategoryForRef("JKM440N-54HL4R-V"))
	assert.Equal(t, margin.CategoryAccessories, CategoryForRef("DONGLE-WLAN-FE1"))
}
