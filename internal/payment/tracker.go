package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	d "github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/metrics"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/fjod/storefront/internal/payment")

type Config struct {
	// MaxWait bounds the whole resolution; after it the payment fails with ReasonTimeout.
	MaxWait       time.Duration
	PollInterval  time.Duration
	ChargeTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxWait:       60 * time.Second,
		PollInterval:  3 * time.Second,
		ChargeTimeout: 10 * time.Second,
	}
}

type Tracker struct {
	charger Charger
	mobile  MobileMoney
	status  StatusSource
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewTracker(charger Charger, mobile MobileMoney, status StatusSource, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Tracker {
	return &Tracker{
		charger: charger,
		mobile:  mobile,
		status:  status,
		cfg:     cfg,
		logger:  logger.Named("payment"),
		metrics: m,
	}
}

// Start begins resolving the payment in the background. The returned handle
// outlives ctx: only Cancel or MaxWait stop it early. onStatus, if set, sees
// every status change from the tracker goroutine.
func (t *Tracker) Start(ctx context.Context, req Request, onStatus func(Status)) (*Handle, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.MaxWait)
	h := newHandle(cancel, onStatus)

	go func() {
		defer cancel()
		started := time.Now()

		spanCtx, span := tracer.Start(runCtx, "payment.resolve")
		span.SetAttributes(
			attribute.String("order.id", req.OrderID),
			attribute.String("payment.method", string(req.Method)))

		var r Result
		switch req.Method {
		case d.PaymentCard:
			r = t.runCard(spanCtx, h, req)
		case d.PaymentMpesa:
			r = t.runMpesa(spanCtx, h, req)
		}
		h.resolve(r)

		span.SetAttributes(attribute.String("payment.status", string(r.Status)))
		span.End()

		t.metrics.ObservePayment(string(req.Method), string(r.Status), time.Since(started))
		logger.FromContext(spanCtx, t.logger).Info("payment_resolved",
			zap.String("order_id", req.OrderID),
			zap.String("method", string(req.Method)),
			zap.String("status", string(r.Status)),
			zap.String("reason", r.Reason),
			zap.Duration("elapsed", time.Since(started)))
	}()

	return h, nil
}

func validate(req Request) error {
	if _, err := uuid.Parse(req.OrderID); err != nil {
		return fmt.Errorf("%w: malformed order id %q", ErrInvalidRequest, req.OrderID)
	}
	if !req.Method.IsValid() {
		return fmt.Errorf("%w: unsupported method %q", ErrInvalidRequest, req.Method)
	}
	if !req.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	return nil
}

func (t *Tracker) runCard(ctx context.Context, h *Handle, req Request) Result {
	h.setStatus(StatusProcessing)

	chargeCtx, cancel := context.WithTimeout(ctx, t.cfg.ChargeTimeout)
	defer cancel()

	r, err := t.charger.Charge(chargeCtx, req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(chargeCtx.Err(), context.DeadlineExceeded) {
			return failed("card authorization timed out")
		}
		return t.failure(ctx, req, err)
	}
	if r.Success {
		return succeeded(r.TransactionID)
	}
	if r.Reason == "" {
		r.Reason = ReasonDeclined
	}
	return failed(r.Reason)
}

func (t *Tracker) runMpesa(ctx context.Context, h *Handle, req Request) Result {
	if err := t.mobile.InitiatePush(ctx, req); err != nil {
		return t.failure(ctx, req, err)
	}
	h.setStatus(StatusProcessing)

	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return t.failure(ctx, req, ctx.Err())
		case <-ticker.C:
		}

		report, err := t.status.GetPaymentStatus(ctx, req.OrderID)
		if err != nil {
			if ctx.Err() != nil {
				return t.failure(ctx, req, ctx.Err())
			}
			logger.FromContext(ctx, t.logger).Warn("payment status poll failed",
				zap.String("order_id", req.OrderID), zap.Error(err))
			continue
		}

		switch report.Status {
		case d.PaymentStatusCompleted:
			return succeeded(report.TransactionID)
		case d.PaymentStatusFailed:
			if report.Reason == "" {
				report.Reason = ReasonDeclined
			}
			return failed(report.Reason)
		}
	}
}

// failure maps an error to a failed result; the deadline is the only
// difference between a timeout and a cancel.
func (t *Tracker) failure(ctx context.Context, req Request, err error) Result {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return failed(ReasonTimeout)
	case errors.Is(ctx.Err(), context.Canceled):
		return failed(ReasonCancelled)
	}
	logger.FromContext(ctx, t.logger).Warn("payment provider error",
		zap.String("order_id", req.OrderID), zap.String("method", string(req.Method)), zap.Error(err))
	return failed(fmt.Sprintf("payment provider unavailable: %v", err))
}
