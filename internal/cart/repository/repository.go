package repository

import (
	"context"
	"errors"

	d "github.com/fjod/storefront/internal/domain"
)

var ErrCartNotFound = errors.New("cart not found")

// CartRepository stores whole carts. Item-level rules live on domain.Cart, so
// the service loads, mutates and saves.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*d.Cart, error)
	SaveCart(ctx context.Context, cart *d.Cart) error
	DeleteCart(ctx context.Context, userID string) error
}
