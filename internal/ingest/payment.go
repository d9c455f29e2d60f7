package ingest

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/margin"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/orders"
)

// PaymentEvent is the signed envelope the payment processor delivers.
// Signature verification happens at the HTTP edge before normalization.
type PaymentEvent struct {
	ID      string `json:"id" validate:"required"`
	Type    string `json:"type" validate:"required"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// paymentObject is the subset of the processor's payment/checkout object the
// normalizer reads. All amounts are minor units.
type paymentObject struct {
	ID                 string            `json:"id"`
	Object             string            `json:"object"`
	Amount             int64             `json:"amount"`
	AmountTotal        int64             `json:"amount_total"`
	Currency           string            `json:"currency"`
	Metadata           map[string]string `json:"metadata"`
	PaymentIntent      string            `json:"payment_intent"`
	CheckoutSession    string            `json:"checkout_session"`
	PaymentMethodTypes []string          `json:"payment_method_types"`
	CustomerDetails    *struct {
		Name    string `json:"name"`
		Address *struct {
			Country string `json:"country"`
		} `json:"address"`
	} `json:"customer_details"`
	ShippingCost *struct {
		AmountTotal int64 `json:"amount_total"`
	} `json:"shipping_cost"`
	BalanceTransaction *struct {
		Fee int64 `json:"fee"`
		Net int64 `json:"net"`
	} `json:"balance_transaction"`
	ApplicationFeeAmount int64 `json:"application_fee_amount"`
}

func minorUnits(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}

// NormalizePayment maps a payment-processor event to an order fact.
func NormalizePayment(ev PaymentEvent) (orders.Fact, []string) {
	var obj paymentObject
	var gaps []string
	if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
		gaps = append(gaps, "payment_object_unreadable")
	}

	fact := orders.Fact{
		Source:        string(SourcePayment),
		SourceEventID: ev.ID,
		Channel:       margin.ChannelSunStore,
		StatusHint:    orders.StatusEnriched,
		Raw:           ev.Data.Object,
	}
	if ch, ok := obj.Metadata["channel"]; ok {
		fact.Channel = margin.Channel(strings.ToLower(ch))
	}

	// Negotiation/order identifier fallback chain: explicit metadata field,
	// then the payment object id, then the checkout-session id, then an id
	// synthesized deterministically from the event id.
	switch {
	case obj.Metadata["negotiation_id"] != "":
		fact.ExternalOrderID = obj.Metadata["negotiation_id"]
	case obj.ID != "":
		fact.ExternalOrderID = obj.ID
	case obj.CheckoutSession != "":
		fact.ExternalOrderID = obj.CheckoutSession
	default:
		fact.ExternalOrderID = "pay-" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(ev.ID)).String()
		gaps = append(gaps, "payment_order_id_synthesized")
	}

	switch {
	case obj.PaymentIntent != "":
		fact.TransactionRef = obj.PaymentIntent
	case obj.ID != "":
		fact.TransactionRef = obj.ID
	}

	if obj.CustomerDetails != nil {
		fact.CustomerName = obj.CustomerDetails.Name
		if obj.CustomerDetails.Address != nil {
			fact.CustomerCountry = obj.CustomerDetails.Address.Country
		}
	}

	fact.PaymentMethod = paymentMethodFor(obj.PaymentMethodTypes)

	gross := obj.Amount
	if gross == 0 {
		gross = obj.AmountTotal
	}
	grossDec := minorUnits(gross)

	if obj.ShippingCost != nil {
		shipping := minorUnits(obj.ShippingCost.AmountTotal)
		fact.ShippingCharged = &shipping
	}

	processorFee := decimal.Zero
	platformFee := minorUnits(obj.ApplicationFeeAmount)
	fact.FeesPlatform = &platformFee

	var net decimal.Decimal
	if obj.BalanceTransaction != nil {
		// The expanded balance transaction is authoritative for fee and
		// net when present.
		processorFee = minorUnits(obj.BalanceTransaction.Fee)
		net = minorUnits(obj.BalanceTransaction.Net)
	} else {
		processorFee = decimal.Zero
		net = grossDec.Sub(platformFee).Sub(processorFee)
	}
	fact.FeesProcessor = &processorFee
	fact.NetReceived = &net

	if ev.Created > 0 {
		date := time.Unix(ev.Created, 0).UTC()
		fact.OrderDate = &date
	}

	fact.Gaps = gaps
	return fact, gaps
}

func paymentMethodFor(types []string) margin.PaymentMethod {
	for _, t := range types {
		switch strings.ToLower(t) {
		case "card":
			return margin.PaymentCard
		case "sepa_debit", "sepa_credit_transfer", "bank_transfer", "customer_balance":
			return margin.PaymentWire
		case "paypal", "wallet":
			return margin.PaymentWallet
		}
	}
	return margin.PaymentCard
}
