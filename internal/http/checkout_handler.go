package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/checkout"
	d "github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/validation"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CheckoutHandler struct {
	svc     *checkout.Service
	timeout time.Duration
	logger  *zap.Logger
}

func NewCheckoutHandler(svc *checkout.Service, timeout time.Duration, logger *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{svc: svc, timeout: timeout, logger: logger}
}

type TermsRequestDTO struct {
	Accepted bool `json:"accepted"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Begin(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	f, err := h.svc.Begin(ctx, getUserIDFromContext(ctx))
	if err != nil {
		h.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, f.View())
}

// GET /api/v1/checkout/{checkout_id}
func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, f.View())
}

// DELETE /api/v1/checkout/{checkout_id}
func (h *CheckoutHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	err := h.svc.Abandon(chi.URLParam(r, "checkout_id"), getUserIDFromContext(r.Context()))
	if err != nil {
		h.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PUT /api/v1/checkout/{checkout_id}/shipping
func (h *CheckoutHandler) UpdateShipping(w http.ResponseWriter, r *http.Request) {
	var req d.ShippingInfo
	h.mutate(w, r, &req, func(f *checkout.Flow) error { return f.UpdateShipping(req) })
}

// PUT /api/v1/checkout/{checkout_id}/payment
func (h *CheckoutHandler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	var req d.PaymentInfo
	h.mutate(w, r, &req, func(f *checkout.Flow) error { return f.UpdatePayment(req) })
}

// PUT /api/v1/checkout/{checkout_id}/terms
func (h *CheckoutHandler) AcceptTerms(w http.ResponseWriter, r *http.Request) {
	var req TermsRequestDTO
	h.mutate(w, r, &req, func(f *checkout.Flow) error { return f.AcceptTerms(req.Accepted) })
}

// POST /api/v1/checkout/{checkout_id}/next
func (h *CheckoutHandler) Next(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, nil, (*checkout.Flow).Next)
}

// POST /api/v1/checkout/{checkout_id}/back
func (h *CheckoutHandler) Back(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, nil, (*checkout.Flow).Back)
}

// POST /api/v1/checkout/{checkout_id}/submit
//
// Responds 202 while the payment is being confirmed; clients poll the
// checkout until step is CONFIRMATION.
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := f.Submit(ctx); err != nil {
		h.handleError(w, err)
		return
	}

	v := f.View()
	status := http.StatusAccepted
	if v.Step == d.StepConfirmation {
		status = http.StatusOK
	}
	respondJSON(w, status, v)
}

func (h *CheckoutHandler) flow(w http.ResponseWriter, r *http.Request) (*checkout.Flow, bool) {
	f, err := h.svc.Get(chi.URLParam(r, "checkout_id"), getUserIDFromContext(r.Context()))
	if err != nil {
		h.handleError(w, err)
		return nil, false
	}
	return f, true
}

// mutate decodes the body into req when set, applies fn and responds with the
// resulting view.
func (h *CheckoutHandler) mutate(w http.ResponseWriter, r *http.Request, req any, fn func(*checkout.Flow) error) {
	f, ok := h.flow(w, r)
	if !ok {
		return
	}
	if req != nil {
		if err := decodeJSON(r, req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
	}
	if err := fn(f); err != nil {
		h.handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, f.View())
}

func (h *CheckoutHandler) handleError(w http.ResponseWriter, err error) {
	var verr *validation.ValidationError
	var oerr *checkout.OrderCreationError

	switch {
	case errors.As(err, &verr):
		respondErrorDetails(w, http.StatusUnprocessableEntity, "validation_failed", verr.Error(), verr.Fields)
	case errors.As(err, &oerr):
		h.logger.Warn("order creation failed", zap.Error(err))
		respondError(w, http.StatusBadGateway, "order_creation_failed", oerr.Notice())
	case errors.Is(err, checkout.ErrEmptyCart):
		respondError(w, http.StatusConflict, "empty_cart", err.Error())
	case errors.Is(err, checkout.ErrCheckoutNotFound):
		respondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, checkout.ErrSubmissionInFlight):
		respondError(w, http.StatusConflict, "submission_in_flight", err.Error())
	case errors.Is(err, checkout.ErrCheckoutFinished),
		errors.Is(err, checkout.ErrIllegalTransition):
		respondError(w, http.StatusConflict, "illegal_transition", err.Error())
	default:
		h.logger.Error("checkout request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
