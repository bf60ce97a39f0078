package validation

import (
	"fmt"

	d "github.com/fjod/storefront/internal/domain"
)

type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Result lists field failures in form order. An empty Result is valid.
type Result []FieldError

func (r Result) Valid() bool {
	return len(r) == 0
}

// First returns the reason shown as the blocking notice.
func (r Result) First() string {
	if len(r) == 0 {
		return ""
	}
	return r[0].Reason
}

// Err returns nil for a valid result.
func (r Result) Err(step d.CheckoutStep) error {
	if r.Valid() {
		return nil
	}
	return &ValidationError{Step: step, Fields: append(Result(nil), r...)}
}

func (r Result) add(field, reason string) Result {
	return append(r, FieldError{Field: field, Reason: reason})
}

// ValidationError blocks a step transition. Error() is the first reason so it
// can be displayed as is.
type ValidationError struct {
	Step   d.CheckoutStep
	Fields Result
}

func (e *ValidationError) Error() string {
	return e.Fields.First()
}

func (e *ValidationError) Detail() string {
	return fmt.Sprintf("%s step: %d invalid field(s)", e.Step, len(e.Fields))
}
