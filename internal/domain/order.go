package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
)

func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// CanTransitionTo checks the order payment lifecycle:
// pending -> processing -> completed|failed, pending may resolve directly.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return next == PaymentStatusProcessing || next.IsTerminal()
	case PaymentStatusProcessing:
		return next.IsTerminal()
	default:
		return false
	}
}

var ErrInvalidPaymentTransition = errors.New("invalid payment status transition")

type OrderPayment struct {
	Method        PaymentMethod   `json:"method"`
	Status        PaymentStatus   `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	TransactionID string          `json:"transaction_id,omitempty"`
}

type DeliveryInfo struct {
	Method            ShippingMethod `json:"method"`
	EstimatedDelivery time.Time      `json:"estimated_delivery"`
}

type HistoryEntry struct {
	Timestamp time.Time     `json:"timestamp"`
	Status    PaymentStatus `json:"status"`
	Note      string        `json:"note,omitempty"`
}

type Order struct {
	ID           uuid.UUID       `json:"id"`
	OrderNumber  string          `json:"order_number"`
	CustomerID   string          `json:"customer_id"`
	Items        []OrderItem     `json:"items"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	VATAmount    decimal.Decimal `json:"vat_amount"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Currency     string          `json:"currency"`
	Payment      OrderPayment    `json:"payment"`
	Shipping     ShippingInfo    `json:"shipping"`
	Delivery     DeliveryInfo    `json:"delivery"`
	OrderDate    time.Time       `json:"order_date"`
	History      []HistoryEntry  `json:"history"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// OrderRef is what the checkout flow keeps after the order is persisted.
type OrderRef struct {
	ID          uuid.UUID `json:"id"`
	OrderNumber string    `json:"order_number"`
}

// RecordPaymentStatus moves the payment to status and appends a history
// entry. Existing history entries are never modified.
func (o *Order) RecordPaymentStatus(status PaymentStatus, note, transactionID string, at time.Time) error {
	if !o.Payment.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidPaymentTransition, o.Payment.Status, status)
	}
	o.Payment.Status = status
	if transactionID != "" {
		o.Payment.TransactionID = transactionID
	}
	o.History = append(o.History, HistoryEntry{Timestamp: at, Status: status, Note: note})
	o.UpdatedAt = at
	return nil
}

// Clone returns a deep copy so stored orders are not shared with callers.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	c.History = append([]HistoryEntry(nil), o.History...)
	return &c
}
