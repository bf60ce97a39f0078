package http

import (
	"context"
	"net/http"
	"time"

	d "github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/payment"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CallbackRecorder stores provider results for the tracker to pick up.
type CallbackRecorder interface {
	Record(ctx context.Context, orderID string, r payment.Report) (bool, error)
}

type PaymentsHandler struct {
	store   CallbackRecorder
	timeout time.Duration
	logger  *zap.Logger
}

func NewPaymentsHandler(store CallbackRecorder, timeout time.Duration, logger *zap.Logger) *PaymentsHandler {
	return &PaymentsHandler{store: store, timeout: timeout, logger: logger}
}

type MpesaCallbackDTO struct {
	OrderID       string          `json:"order_id"`
	Status        d.PaymentStatus `json:"status"`
	TransactionID string          `json:"transaction_id"`
	Reason        string          `json:"reason"`
}

// POST /api/v1/payments/mpesa/callback
//
// Duplicate callbacks are acknowledged; only the first result is kept.
func (h *PaymentsHandler) MpesaCallback(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req MpesaCallbackDTO
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if _, err := uuid.Parse(req.OrderID); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return
	}
	if !req.Status.IsTerminal() {
		respondError(w, http.StatusBadRequest, "invalid_status", "status must be completed or failed")
		return
	}

	recorded, err := h.store.Record(ctx, req.OrderID, payment.Report{
		Status:        req.Status,
		TransactionID: req.TransactionID,
		Reason:        req.Reason,
	})
	if err != nil {
		h.logger.Error("record mpesa callback failed", zap.String("order_id", req.OrderID), zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "callback could not be stored")
		return
	}

	h.logger.Info("mpesa_callback",
		zap.String("order_id", req.OrderID),
		zap.String("status", string(req.Status)),
		zap.Bool("recorded", recorded))
	respondJSON(w, http.StatusOK, map[string]bool{"recorded": recorded})
}
