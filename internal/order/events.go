package order

import (
	"context"
	"time"

	d "github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated     = "order.created"
	EventPaymentCompleted = "order.payment_completed"
	EventPaymentFailed    = "order.payment_failed"
)

type Event struct {
	Type          string          `json:"event_type"`
	OrderID       uuid.UUID       `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	CustomerID    string          `json:"customer_id"`
	PaymentMethod d.PaymentMethod `json:"payment_method"`
	PaymentStatus d.PaymentStatus `json:"payment_status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Note          string          `json:"note,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func newEvent(eventType string, o *d.Order, note string, at time.Time) Event {
	return Event{
		Type:          eventType,
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		CustomerID:    o.CustomerID,
		PaymentMethod: o.Payment.Method,
		PaymentStatus: o.Payment.Status,
		TotalAmount:   o.TotalAmount,
		Currency:      o.Currency,
		TransactionID: o.Payment.TransactionID,
		Note:          note,
		OccurredAt:    at,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
