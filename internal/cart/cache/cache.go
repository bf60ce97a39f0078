package cache

import (
	"context"
	"errors"

	d "github.com/fjod/storefront/internal/domain"
)

type CartCache interface {
	Get(ctx context.Context, userID string) (*d.Cart, error)
	Set(ctx context.Context, userID string, cart *d.Cart) error
	Delete(ctx context.Context, userID string) error
}

var ErrCacheMiss = errors.New("cache miss")

// NopCache always misses. Used when no Redis address is configured.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*d.Cart, error) { return nil, ErrCacheMiss }
func (NopCache) Set(context.Context, string, *d.Cart) error   { return nil }
func (NopCache) Delete(context.Context, string) error         { return nil }
