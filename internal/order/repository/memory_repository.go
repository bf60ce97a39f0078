package repository

import (
	"context"
	"sort"
	"sync"

	d "github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
)

type MemoryRepository struct {
	mu       sync.RWMutex
	orders   map[uuid.UUID]*d.Order
	byNumber map[string]uuid.UUID
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders:   make(map[uuid.UUID]*d.Order),
		byNumber: make(map[string]uuid.UUID),
	}
}

func (r *MemoryRepository) CreateOrder(_ context.Context, order *d.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; ok {
		return ErrDuplicateOrder
	}
	if _, ok := r.byNumber[order.OrderNumber]; ok {
		return ErrDuplicateOrder
	}
	r.orders[order.ID] = order.Clone()
	r.byNumber[order.OrderNumber] = order.ID
	return nil
}

func (r *MemoryRepository) GetOrderByID(_ context.Context, id uuid.UUID) (*d.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (r *MemoryRepository) ListOrdersByCustomer(_ context.Context, customerID string) ([]*d.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*d.Order
	for _, order := range r.orders {
		if order.CustomerID == customerID {
			out = append(out, order.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderDate.After(out[j].OrderDate) })
	return out, nil
}

func (r *MemoryRepository) AppendPaymentStatus(_ context.Context, id uuid.UUID, change StatusChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	if order.Payment.Status != change.Expected {
		return ErrStatusChanged
	}

	order.Payment.Status = change.Entry.Status
	if change.TransactionID != "" {
		order.Payment.TransactionID = change.TransactionID
	}
	order.History = append(order.History, change.Entry)
	order.UpdatedAt = change.Entry.Timestamp
	return nil
}
