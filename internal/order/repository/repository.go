package repository

import (
	"context"
	"errors"

	d "github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("order with this id or number already exists")
	// ErrStatusChanged means the payment status moved since the caller read it.
	ErrStatusChanged = errors.New("order payment status changed concurrently")
)

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// StatusChange is appended to an order's history. Expected is the status the
// caller observed before the change.
type StatusChange struct {
	Expected      d.PaymentStatus
	Entry         d.HistoryEntry
	TransactionID string
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *d.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*d.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID string) ([]*d.Order, error)
	AppendPaymentStatus(ctx context.Context, id uuid.UUID, change StatusChange) error
}
