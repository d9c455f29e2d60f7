package ingest

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/extract"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/orders"
)

// Shipment payloads are loosely typed; providers disagree on field names, so
// every interesting field is resolved through an alias list.
var (
	shipmentIDAliases       = []string{"event_id", "eventId", "id", "shipment_id", "shipmentId"}
	shipmentOrderAliases    = []string{"order_code", "orderCode", "order_id", "orderId", "order_reference", "reference"}
	shipmentTxRefAliases    = []string{"transaction_ref", "transactionRef", "payment_reference", "payment_ref"}
	shipmentTrackingAliases = []string{"tracking_number", "trackingNumber", "tracking", "track_id", "tracking_code"}
	shipmentURLAliases      = []string{"tracking_url", "trackingUrl", "track_url", "label_url"}
	shipmentStatusAliases   = []string{"status", "shipment_status", "state"}
	shipmentCostAliases     = []string{"cost", "shipping_cost", "real_cost", "price_net", "amount_net"}
)

func aliasString(payload map[string]json.RawMessage, aliases []string) string {
	for _, key := range aliases {
		raw, ok := payload[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil && n.String() != "" {
			return n.String()
		}
	}
	return ""
}

func aliasAmount(payload map[string]json.RawMessage, aliases []string) *decimal.Decimal {
	s := aliasString(payload, aliases)
	if s == "" {
		return nil
	}
	v, ok := extract.ParseAmount(s)
	if !ok || !v.IsPositive() {
		return nil
	}
	return &v
}

// NormalizeShipment maps a carrier/fulfillment payload to a match-only order
// fact. When the payload carries a real cost figure the reconciler
// reallocates the cost side; otherwise only status and tracking move.
func NormalizeShipment(raw json.RawMessage) (orders.Fact, []string) {
	var payload map[string]json.RawMessage
	var gaps []string
	if err := json.Unmarshal(raw, &payload); err != nil {
		return orders.Fact{
			Source:    string(SourceShipment),
			MatchOnly: true,
			Gaps:      []string{"shipment_payload_unreadable"},
			Raw:       raw,
		}, []string{"shipment_payload_unreadable"}
	}

	orderCode := aliasString(payload, shipmentOrderAliases)
	if orderCode == "" {
		// Some providers bury the order code in a free-text field.
		if id := extract.NegotiationID(flattenStrings(payload)); id != "" {
			orderCode = id
		}
	}
	txRef := aliasString(payload, shipmentTxRefAliases)
	if orderCode == "" && txRef == "" {
		gaps = append(gaps, "shipment_order_code_not_detected")
	}

	eventID := aliasString(payload, shipmentIDAliases)
	if eventID == "" {
		eventID = "ship-" + orderCode + "-" + aliasString(payload, shipmentTrackingAliases)
	}

	fact := orders.Fact{
		Source:           string(SourceShipment),
		SourceEventID:    eventID,
		ExternalOrderID:  orderCode,
		TransactionRef:   txRef,
		MatchOnly:        true,
		RealShippingCost: aliasAmount(payload, shipmentCostAliases),
		Gaps:             gaps,
		Raw:              raw,
	}

	tracking := orders.TrackingUpdate{
		Number: aliasString(payload, shipmentTrackingAliases),
		URL:    aliasString(payload, shipmentURLAliases),
		Status: strings.ToLower(aliasString(payload, shipmentStatusAliases)),
	}
	if tracking != (orders.TrackingUpdate{}) {
		fact.Tracking = &tracking
	}
	return fact, gaps
}

func flattenStrings(payload map[string]json.RawMessage) string {
	var b strings.Builder
	for _, raw := range payload {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			b.WriteString(s)
			b.WriteByte(' ')
		}
	}
	return b.String()
}
