package repository

import (
	"context"
	"sync"

	d "github.com/fjod/storefront/internal/domain"
)

type MemoryRepository struct {
	mu    sync.RWMutex
	carts map[string]*d.Cart
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{carts: make(map[string]*d.Cart)}
}

func (r *MemoryRepository) GetCart(_ context.Context, userID string) (*d.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.carts[userID]
	if !ok {
		return nil, ErrCartNotFound
	}
	return cart.Clone(), nil
}

func (r *MemoryRepository) SaveCart(_ context.Context, cart *d.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.carts[cart.UserID] = cart.Clone()
	return nil
}

func (r *MemoryRepository) DeleteCart(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.carts[userID]; !ok {
		return ErrCartNotFound
	}
	delete(r.carts, userID)
	return nil
}
