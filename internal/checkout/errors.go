package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart          = errors.New("cart is empty, nothing to checkout")
	ErrIllegalTransition  = errors.New("illegal transition of checkout step")
	ErrSubmissionInFlight = errors.New("checkout submission already in progress")
	ErrCheckoutFinished   = errors.New("checkout already reached confirmation")
	ErrCheckoutNotFound   = errors.New("checkout not found")
)

const (
	orderFailedNotice = "Failed to create order. Please try again or contact customer support."
	emptyCartNotice   = "Your cart is empty. Add items before placing an order."
)

// OrderCreationError means the submission was aborted before any payment was
// attempted. The flow stays on Review and can be submitted again.
type OrderCreationError struct {
	Err error
}

func (e *OrderCreationError) Error() string {
	return fmt.Sprintf("order creation failed: %v", e.Err)
}

func (e *OrderCreationError) Unwrap() error {
	return e.Err
}

// Notice is the message shown to the customer.
func (e *OrderCreationError) Notice() string {
	return orderFailedNotice
}
