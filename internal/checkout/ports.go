package checkout

import (
	"context"

	d "github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/order"
	"github.com/fjod/storefront/internal/payment"
	"github.com/google/uuid"
)

// CartStore is the cart as checkout sees it.
type CartStore interface {
	GetCart(ctx context.Context, userID string) (*d.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

type OrderGateway interface {
	CreateOrder(ctx context.Context, in order.CreateInput) (*d.OrderRef, error)
	GetOrderByID(ctx context.Context, id uuid.UUID) (*d.Order, error)
	RecordPayment(ctx context.Context, id uuid.UUID, status d.PaymentStatus, note, transactionID string) (*d.Order, error)
}

type PaymentTracker interface {
	Start(ctx context.Context, req payment.Request, onStatus func(payment.Status)) (*payment.Handle, error)
}
