package ingest

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/extract"
	"github.com/yohand-byte/huawei-sales-margin-tracker-sub002/internal/orders"
)

// InboundEmail is what the mail collaborator delivers for one message.
type InboundEmail struct {
	MessageID  string          `json:"message_id" validate:"required"`
	ThreadID   string          `json:"thread_id"`
	FromEmail  string          `json:"from_email" validate:"required,email"`
	Subject    string          `json:"subject"`
	Text       string          `json:"text"`
	ReceivedAt time.Time       `json:"received_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// NormalizeEmail turns an inbound marketplace notification into an order
// fact. Extraction gaps come back alongside the fact; a missing channel or
// negotiation id makes the fact unusable and the event is persisted as failed
// for manual follow-up rather than dropped.
func NormalizeEmail(msg InboundEmail) (orders.Fact, []string) {
	ex := extract.FromText(msg.FromEmail, msg.Subject, msg.Text)

	fact := orders.Fact{
		Source:          string(SourceEmail),
		SourceEventID:   msg.MessageID,
		Channel:         ex.Channel,
		ExternalOrderID: ex.NegotiationID,
		CustomerName:    "",
		ProductRefs:     ex.ProductRefs,
		StatusHint:      orders.StatusProvisional,
		Gaps:            ex.Gaps,
	}
	if !msg.ReceivedAt.IsZero() {
		date := msg.ReceivedAt
		fact.OrderDate = &date
	}

	// A single detected amount on a single-ref message is the listing
	// price; it seeds a provisional line so margin shows up before the
	// payment lands.
	if len(ex.ProductRefs) == 1 && len(ex.Amounts) == 1 && ex.Amounts[0].IsPositive() {
		fact.Lines = []orders.LineFact{{
			ProductRef:    ex.ProductRefs[0],
			Category:      CategoryForRef(ex.ProductRefs[0]),
			Quantity:      decimal.NewFromInt(1),
			UnitSellPrice: ex.Amounts[0],
		}}
	}

	if raw, err := json.Marshal(msg); err == nil {
		fact.Raw = raw
	}
	return fact, ex.Gaps
}
