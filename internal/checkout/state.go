package checkout

import (
	"fmt"

	d "github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/validation"
	"github.com/google/uuid"
)

// Outcome is the payment result shown on the confirmation step.
type Outcome struct {
	Success       bool            `json:"success"`
	Status        d.PaymentStatus `json:"status"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	// Fatal marks an unexpected error rather than a payment decline.
	Fatal bool `json:"fatal,omitempty"`
}

// State is a checkout session at one point in time. It only changes through Reduce.
type State struct {
	Step          d.CheckoutStep
	Shipping      d.ShippingInfo
	Payment       d.PaymentInfo
	TermsAccepted bool
	// Processing is set from submit until the payment resolves or order creation fails.
	Processing bool
	// OrderPlaced is set once the order exists; from then on the flow only
	// waits for the payment.
	OrderPlaced bool
	OrderID     uuid.UUID
	OrderNumber string
	Outcome     *Outcome
	Notice      string
}

func NewState(shipping d.ShippingInfo, payment d.PaymentInfo) State {
	return State{Step: d.StepShipping, Shipping: shipping, Payment: payment}
}

type Event interface {
	event()
}

type (
	EditShipping    struct{ Info d.ShippingInfo }
	EditPayment     struct{ Info d.PaymentInfo }
	SetTerms        struct{ Accepted bool }
	Next            struct{}
	Back            struct{}
	SubmitStarted   struct{}
	OrderCreated    struct{ Ref d.OrderRef }
	OrderFailed     struct{ Notice string } // empty Notice means a gateway failure
	PaymentResolved struct{ Outcome Outcome }
)

func (EditShipping) event()    {}
func (EditPayment) event()     {}
func (SetTerms) event()        {}
func (Next) event()            {}
func (Back) event()            {}
func (SubmitStarted) event()   {}
func (OrderCreated) event()    {}
func (OrderFailed) event()     {}
func (PaymentResolved) event() {}

// Reduce applies ev to s. A rejected event returns an error together with the
// state to keep; for validation failures that state carries the notice.
func Reduce(s State, ev Event, rules *validation.Rules) (State, error) {
	if s.Step.IsTerminal() {
		return s, ErrCheckoutFinished
	}

	switch ev := ev.(type) {
	case EditShipping:
		if s.Processing {
			return s, ErrSubmissionInFlight
		}
		s.Shipping = ev.Info
		s.Notice = ""
		return s, nil

	case EditPayment:
		if s.Processing {
			return s, ErrSubmissionInFlight
		}
		s.Payment = ev.Info
		s.Notice = ""
		return s, nil

	case SetTerms:
		if s.Processing {
			return s, ErrSubmissionInFlight
		}
		s.TermsAccepted = ev.Accepted
		s.Notice = ""
		return s, nil

	case Next:
		if s.Processing {
			return s, ErrSubmissionInFlight
		}
		var res validation.Result
		switch s.Step {
		case d.StepShipping:
			res = rules.Shipping(s.Shipping)
		case d.StepPayment:
			res = rules.Payment(s.Payment)
		default:
			// Review only moves on through submit.
			return s, fmt.Errorf("%w: next from %s", ErrIllegalTransition, s.Step)
		}
		if err := res.Err(s.Step); err != nil {
			s.Notice = res.First()
			return s, err
		}
		s.Step, _ = s.Step.Next()
		s.Notice = ""
		return s, nil

	case Back:
		if s.Processing || s.OrderPlaced {
			return s, ErrSubmissionInFlight
		}
		prev, ok := s.Step.Previous()
		if !ok {
			return s, fmt.Errorf("%w: back from %s", ErrIllegalTransition, s.Step)
		}
		s.Step = prev
		s.Notice = ""
		return s, nil

	case SubmitStarted:
		if s.Processing {
			return s, ErrSubmissionInFlight
		}
		if s.Step != d.StepReview {
			return s, fmt.Errorf("%w: submit from %s", ErrIllegalTransition, s.Step)
		}
		// Fields can be edited on Review, so the earlier guards run again.
		for _, check := range []struct {
			step d.CheckoutStep
			res  validation.Result
		}{
			{d.StepShipping, rules.Shipping(s.Shipping)},
			{d.StepPayment, rules.Payment(s.Payment)},
			{d.StepReview, validation.Review(s.TermsAccepted)},
		} {
			if err := check.res.Err(check.step); err != nil {
				s.Notice = check.res.First()
				return s, err
			}
		}
		s.Processing = true
		s.Notice = ""
		return s, nil

	case OrderCreated:
		if !s.Processing || s.OrderPlaced {
			return s, fmt.Errorf("%w: order created outside a submission", ErrIllegalTransition)
		}
		s.OrderPlaced = true
		s.OrderID = ev.Ref.ID
		s.OrderNumber = ev.Ref.OrderNumber
		return s, nil

	case OrderFailed:
		if !s.Processing || s.OrderPlaced {
			return s, fmt.Errorf("%w: order failure outside a submission", ErrIllegalTransition)
		}
		s.Processing = false
		s.Notice = orderFailedNotice
		if ev.Notice != "" {
			s.Notice = ev.Notice
		}
		return s, nil

	case PaymentResolved:
		if !s.Processing || !s.OrderPlaced {
			return s, fmt.Errorf("%w: payment resolved without an order", ErrIllegalTransition)
		}
		outcome := ev.Outcome
		s.Step = d.StepConfirmation
		s.Processing = false
		s.Outcome = &outcome
		s.Notice = ""
		if !outcome.Success {
			s.Notice = outcome.Reason
		}
		return s, nil
	}

	return s, fmt.Errorf("%w: unknown event %T", ErrIllegalTransition, ev)
}
