package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	d "github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/order/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type OrderReader interface {
	GetOrderByID(ctx context.Context, id uuid.UUID) (*d.Order, error)
	ListOrders(ctx context.Context, customerID string) ([]*d.Order, error)
}

type OrdersHandler struct {
	orders  OrderReader
	timeout time.Duration
	logger  *zap.Logger
}

func NewOrdersHandler(orders OrderReader, timeout time.Duration, logger *zap.Logger) *OrdersHandler {
	return &OrdersHandler{orders: orders, timeout: timeout, logger: logger}
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orders, err := h.orders.ListOrders(ctx, getUserIDFromContext(ctx))
	if err != nil {
		h.logger.Error("list orders failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	if orders == nil {
		orders = []*d.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return
	}

	o, err := h.orders.GetOrderByID(ctx, id)
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "not_found", "order not found")
		return
	case err != nil:
		h.logger.Error("get order failed", zap.String("order_id", id.String()), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	// orders of other customers do not exist for the caller
	if o.CustomerID != getUserIDFromContext(ctx) {
		respondError(w, http.StatusNotFound, "not_found", "order not found")
		return
	}
	respondJSON(w, http.StatusOK, o)
}
