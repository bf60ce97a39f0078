package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	d "github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/order"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/fjod/storefront/internal/checkout")

// View is the read model of a flow.
type View struct {
	ID            string            `json:"checkout_id"`
	Step          d.CheckoutStep    `json:"step"`
	Shipping      d.ShippingInfo    `json:"shipping"`
	Payment       d.PaymentInfo     `json:"payment"`
	TermsAccepted bool              `json:"terms_accepted"`
	Processing    bool              `json:"processing"`
	PaymentStatus payment.Status    `json:"payment_status,omitempty"`
	Items         []d.LineItem      `json:"items"`
	Pricing       pricing.Breakdown `json:"pricing"`
	OrderID       string            `json:"order_id,omitempty"`
	OrderNumber   string            `json:"order_number,omitempty"`
	Outcome       *Outcome          `json:"outcome,omitempty"`
	Notice        string            `json:"notice,omitempty"`
	Order         *d.Order          `json:"order,omitempty"`
}

// Flow is one customer's checkout session. Methods are safe for concurrent use;
// at most one submission runs at a time.
type Flow struct {
	id     string
	userID string
	svc    *Service

	mu      sync.Mutex
	state   State
	cart    *d.Cart
	handle  *payment.Handle
	order   *d.Order
	touched time.Time
	done    chan struct{}
}

func newFlow(svc *Service, userID string, cart *d.Cart, initial State) *Flow {
	return &Flow{
		id:      uuid.NewString(),
		userID:  userID,
		svc:     svc,
		state:   initial,
		cart:    cart,
		touched: svc.now(),
		done:    make(chan struct{}),
	}
}

func (f *Flow) ID() string     { return f.id }
func (f *Flow) UserID() string { return f.userID }

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) UpdateShipping(info d.ShippingInfo) error {
	if err := f.apply(EditShipping{Info: info}); err != nil {
		return err
	}
	f.saveDraft()
	return nil
}

func (f *Flow) UpdatePayment(info d.PaymentInfo) error {
	if err := f.apply(EditPayment{Info: info}); err != nil {
		return err
	}
	f.saveDraft()
	return nil
}

func (f *Flow) AcceptTerms(accepted bool) error {
	return f.apply(SetTerms{Accepted: accepted})
}

// Next advances one step. Entering Review re-reads the cart so the total shown
// there is the one Submit charges.
func (f *Flow) Next() error {
	if err := f.apply(Next{}); err != nil {
		return err
	}
	if f.State().Step == d.StepReview {
		f.refreshCart()
	}
	return nil
}

func (f *Flow) Back() error {
	return f.apply(Back{})
}

// Submit creates the order and starts resolving the payment. It returns once
// the payment is in flight; Wait blocks until Confirmation.
func (f *Flow) Submit(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "checkout.Submit")
	span.SetAttributes(attribute.String("checkout.id", f.id))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := f.apply(SubmitStarted{}); err != nil {
		return err
	}

	log := logger.FromContext(ctx, f.svc.logger).With(
		zap.String("checkout_id", f.id), zap.String("user_id", f.userID))
	log.Info("checkout_submit_start")

	st := f.State()
	cart, err := f.svc.carts.GetCart(ctx, f.userID)
	if err != nil {
		f.abort()
		return &OrderCreationError{Err: fmt.Errorf("load cart: %w", err)}
	}
	if cart.IsEmpty() {
		_ = f.apply(OrderFailed{Notice: emptyCartNotice})
		return ErrEmptyCart
	}

	shipping := st.Shipping.Normalized()
	breakdown := f.svc.calc.Compute(cart.Total(), shipping.ShippingMethod)

	f.mu.Lock()
	f.cart = cart
	f.mu.Unlock()

	gwCtx, cancel := context.WithTimeout(ctx, f.svc.opts.GatewayTimeout)
	ref, err := f.svc.orders.CreateOrder(gwCtx, order.CreateInput{
		CustomerID: f.userID,
		Items:      d.SnapshotItems(cart),
		Pricing:    breakdown,
		Payment:    st.Payment,
		Shipping:   shipping,
	})
	cancel()
	if err != nil {
		f.abort()
		log.Warn("checkout_order_failed", zap.Error(err))
		return &OrderCreationError{Err: err}
	}

	if err := f.apply(OrderCreated{Ref: *ref}); err != nil {
		return err
	}
	log = log.With(zap.String("order_id", ref.ID.String()), zap.String("order_number", ref.OrderNumber))
	log.Info("checkout_order_created", zap.String("total", breakdown.Total.StringFixed(2)))

	// From here the order exists, so every path ends on Confirmation.
	bg := context.WithoutCancel(ctx)
	h, err := f.svc.tracker.Start(bg, payment.Request{
		OrderID:     orderIDString(ref.ID),
		OrderNumber: ref.OrderNumber,
		Method:      st.Payment.Method,
		Details:     st.Payment,
		Amount:      breakdown.Total,
		Currency:    breakdown.Currency,
	}, f.onPaymentStatus(bg, ref.ID, log))
	if err != nil {
		log.Error("checkout_payment_start_failed", zap.Error(err))
		f.finish(bg, ref.ID, Outcome{
			Status: d.PaymentStatusFailed,
			Reason: fmt.Sprintf("unexpected error: %v", err),
			Fatal:  true,
		}, log)
		return nil
	}

	f.mu.Lock()
	f.handle = h
	f.mu.Unlock()

	go f.await(bg, h, ref.ID, log)
	return nil
}

// orderIDString keeps a nil id malformed so the tracker rejects it.
func orderIDString(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}

func (f *Flow) onPaymentStatus(ctx context.Context, orderID uuid.UUID, log *zap.Logger) func(payment.Status) {
	return func(s payment.Status) {
		if s != payment.StatusProcessing {
			return
		}
		rctx, cancel := context.WithTimeout(ctx, f.svc.opts.GatewayTimeout)
		defer cancel()
		if _, err := f.svc.orders.RecordPayment(rctx, orderID, d.PaymentStatusProcessing, "Awaiting payment confirmation", ""); err != nil {
			log.Warn("record processing status failed", zap.Error(err))
		}
	}
}

func (f *Flow) await(ctx context.Context, h *payment.Handle, orderID uuid.UUID, log *zap.Logger) {
	<-h.Done()
	r, _ := h.Result()

	outcome := Outcome{Success: r.Success, TransactionID: r.TransactionID, Reason: r.Reason}
	outcome.Status = d.PaymentStatusFailed
	if r.Success {
		outcome.Status = d.PaymentStatusCompleted
	}
	f.finish(ctx, orderID, outcome, log)
}

// finish records the payment on the order, clears the cart on success and
// moves the flow to Confirmation, in that order.
func (f *Flow) finish(ctx context.Context, orderID uuid.UUID, outcome Outcome, log *zap.Logger) {
	note := "Payment completed"
	if !outcome.Success {
		note = "Payment failed: " + outcome.Reason
	}

	var placed *d.Order
	if orderID != uuid.Nil {
		rctx, cancel := context.WithTimeout(ctx, f.svc.opts.GatewayTimeout)
		o, err := f.svc.orders.RecordPayment(rctx, orderID, outcome.Status, note, outcome.TransactionID)
		cancel()
		if err != nil {
			log.Error("record payment result failed", zap.Error(err))
		} else {
			placed = o
		}
	}

	if outcome.Success {
		rctx, cancel := context.WithTimeout(ctx, f.svc.opts.GatewayTimeout)
		if err := f.svc.carts.ClearCart(rctx, f.userID); err != nil {
			log.Error("clear cart after payment failed", zap.Error(err))
		}
		cancel()
	}

	if err := f.apply(PaymentResolved{Outcome: outcome}); err != nil {
		log.Error("checkout_confirmation_rejected", zap.Error(err))
	}

	f.mu.Lock()
	f.order = placed
	f.mu.Unlock()
	close(f.done)

	log.Info("checkout_confirmation",
		zap.Bool("success", outcome.Success),
		zap.String("payment_status", string(outcome.Status)),
		zap.String("reason", outcome.Reason))
}

func (f *Flow) refreshCart() {
	ctx, cancel := context.WithTimeout(context.Background(), f.svc.opts.GatewayTimeout)
	defer cancel()

	cart, err := f.svc.carts.GetCart(ctx, f.userID)
	if err != nil {
		f.svc.logger.Warn("refresh cart for review failed",
			zap.String("checkout_id", f.id), zap.Error(err))
		return
	}
	f.mu.Lock()
	f.cart = cart
	f.mu.Unlock()
}

func (f *Flow) abort() {
	_ = f.apply(OrderFailed{})
}

// Done is closed when the flow reaches Confirmation.
func (f *Flow) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until Confirmation or ctx ends.
func (f *Flow) Wait(ctx context.Context) (View, error) {
	select {
	case <-f.done:
		return f.View(), nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Cancel stops waiting on the payment provider. The payment resolves failed.
func (f *Flow) Cancel() {
	f.mu.Lock()
	h := f.handle
	f.mu.Unlock()
	if h != nil {
		h.Cancel()
	}
}

func (f *Flow) View() View {
	f.mu.Lock()
	defer f.mu.Unlock()

	st := f.state
	v := View{
		ID:            f.id,
		Step:          st.Step,
		Shipping:      st.Shipping,
		Payment:       st.Payment.Redacted(),
		TermsAccepted: st.TermsAccepted,
		Processing:    st.Processing,
		Items:         append([]d.LineItem(nil), f.cart.Items...),
		Pricing:       f.svc.calc.Compute(f.cart.Total(), st.Shipping.Normalized().ShippingMethod),
		OrderNumber:   st.OrderNumber,
		Outcome:       st.Outcome,
		Notice:        st.Notice,
	}
	if st.OrderPlaced && st.OrderID != uuid.Nil {
		v.OrderID = st.OrderID.String()
	}
	if f.handle != nil {
		v.PaymentStatus = f.handle.Status()
	}
	if f.order != nil {
		v.Order = f.order.Clone()
	}
	return v
}

func (f *Flow) apply(ev Event) error {
	// read before f.mu: Sweep holds the registry lock while taking f.mu
	now := f.svc.now()

	f.mu.Lock()
	defer f.mu.Unlock()

	from := f.state.Step
	next, err := Reduce(f.state, ev, f.svc.rules)
	f.state = next
	f.touched = now

	switch ev.(type) {
	case Next, Back, SubmitStarted, PaymentResolved:
		outcome := "ok"
		if err != nil {
			outcome = "blocked"
		}
		f.svc.metrics.StepTransitions.WithLabelValues(string(from), outcome).Inc()
	}
	return err
}

func (f *Flow) saveDraft() {
	st := f.State()
	f.svc.registry.SaveDraft(f.userID, st.Shipping, st.Payment)
}

// idle reports how long the flow has been untouched. Flows with a submission
// in flight are never idle.
func (f *Flow) idle(now time.Time) (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Processing {
		return 0, false
	}
	return now.Sub(f.touched), true
}
