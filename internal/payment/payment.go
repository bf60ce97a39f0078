package payment

import (
	"context"
	"errors"

	d "github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// Status is the tracker's own lifecycle, separate from the order's payment status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

func (s Status) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

const (
	ReasonTimeout   = "payment confirmation timed out"
	ReasonCancelled = "payment cancelled"
	ReasonDeclined  = "payment declined"
	ReasonUnknown   = "unknown reason"
)

var ErrInvalidRequest = errors.New("invalid payment request")

type Request struct {
	OrderID     string
	OrderNumber string
	Method      d.PaymentMethod
	Details     d.PaymentInfo
	Amount      decimal.Decimal
	Currency    string
}

type Result struct {
	Success       bool   `json:"success"`
	Status        Status `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

func succeeded(transactionID string) Result {
	return Result{Success: true, Status: StatusSucceeded, TransactionID: transactionID}
}

func failed(reason string) Result {
	return Result{Status: StatusFailed, Reason: reason}
}

// Report is what a provider says about a payment: pending, completed or failed.
type Report struct {
	Status        d.PaymentStatus `json:"status"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Reason        string          `json:"reason,omitempty"`
}

// Charger authorizes a card synchronously. A decline is a Result with
// Success false, an error means the provider could not be reached.
type Charger interface {
	Charge(ctx context.Context, req Request) (Result, error)
}

// MobileMoney sends an STK push to the customer's phone.
type MobileMoney interface {
	InitiatePush(ctx context.Context, req Request) error
}

// StatusSource reports the provider's view of a mobile money payment. Unknown
// orders report pending.
type StatusSource interface {
	GetPaymentStatus(ctx context.Context, orderID string) (Report, error)
}
