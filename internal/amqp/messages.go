package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"pricememory/internal/core"
	"pricememory/internal/events"
)

// PurchaseEventMessage is the wire form of a store mutation. Created
// events carry the record fields; deleted events carry only the id.
// The photo itself never travels, only whether one exists.
type PurchaseEventMessage struct {
	Type        string           `json:"type"`
	ID          string           `json:"id"`
	ItemName    string           `json:"item_name,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	PurchasedAt *time.Time       `json:"purchased_at,omitempty"`
	Note        string           `json:"note,omitempty"`
	HasPhoto    bool             `json:"has_photo"`
	Timestamp   time.Time        `json:"timestamp"`
}

// NewPurchaseEventMessage converts an in-process event to its wire form.
func NewPurchaseEventMessage(evt events.Event) (*PurchaseEventMessage, error) {
	if evt.PurchaseID == "" {
		return nil, fmt.Errorf("event without purchase id")
	}
	msg := &PurchaseEventMessage{
		Type:      string(evt.Type),
		ID:        evt.PurchaseID,
		Timestamp: evt.At,
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	switch evt.Type {
	case events.PurchaseCreated:
		if evt.Purchase == nil {
			return nil, fmt.Errorf("created event %s without purchase", evt.PurchaseID)
		}
		p := evt.Purchase
		amount := p.Amount
		at := p.PurchasedAt
		msg.ItemName = p.ItemName
		msg.Amount = &amount
		msg.PurchasedAt = &at
		msg.Note = p.Note
		msg.HasPhoto = p.InvoicePhoto != nil
	case events.PurchaseDeleted:
	default:
		return nil, fmt.Errorf("unknown event type %q", evt.Type)
	}
	return msg, nil
}

// Purchase rebuilds the record described by a created message. The
// photo is not part of the message.
func (m *PurchaseEventMessage) Purchase() (core.Purchase, error) {
	if m.Type != string(events.PurchaseCreated) {
		return core.Purchase{}, fmt.Errorf("message %s is %q, not a created event", m.ID, m.Type)
	}
	if m.Amount == nil || m.PurchasedAt == nil {
		return core.Purchase{}, fmt.Errorf("message %s is missing amount or date", m.ID)
	}
	p := core.Purchase{
		ID:          m.ID,
		ItemName:    m.ItemName,
		Amount:      *m.Amount,
		PurchasedAt: *m.PurchasedAt,
		Note:        m.Note,
	}
	if err := p.Validate(); err != nil {
		return core.Purchase{}, fmt.Errorf("message %s: %w", m.ID, err)
	}
	return p, nil
}

// ToJSON converts the message to JSON bytes
func (m *PurchaseEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PurchaseEventMessageFromJSON parses a message body.
func PurchaseEventMessageFromJSON(data []byte) (*PurchaseEventMessage, error) {
	var msg PurchaseEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		return nil, fmt.Errorf("message without id")
	}
	return &msg, nil
}
