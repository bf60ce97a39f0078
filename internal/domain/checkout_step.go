package domain

type CheckoutStep string

const (
	StepShipping     CheckoutStep = "SHIPPING"
	StepPayment      CheckoutStep = "PAYMENT"
	StepReview       CheckoutStep = "REVIEW"
	StepConfirmation CheckoutStep = "CONFIRMATION"
)

func (s CheckoutStep) IsTerminal() bool {
	return s == StepConfirmation
}

// String representation (for logging)
func (s CheckoutStep) String() string {
	return string(s)
}

// Next returns the step that follows s; ok is false for Confirmation.
func (s CheckoutStep) Next() (CheckoutStep, bool) {
	switch s {
	case StepShipping:
		return StepPayment, true
	case StepPayment:
		return StepReview, true
	case StepReview:
		return StepConfirmation, true
	default:
		return s, false
	}
}

// Previous returns the step before s. Only Payment and Review can go back.
func (s CheckoutStep) Previous() (CheckoutStep, bool) {
	switch s {
	case StepPayment:
		return StepShipping, true
	case StepReview:
		return StepPayment, true
	default:
		return s, false
	}
}

// CanTransitionTo reports whether the step sequence allows moving from one
// step to another: one step forward, or one step back from Payment/Review.
func CanTransitionTo(from, to CheckoutStep) bool {
	if next, ok := from.Next(); ok && next == to {
		return true
	}
	if prev, ok := from.Previous(); ok && prev == to {
		return true
	}
	return false
}
