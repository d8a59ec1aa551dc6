package bookings

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no booking exists with the given id.
	ErrNotFound = errors.New("bookings: booking not found")
	// ErrHoldExpired means the hold lapsed before checkout or payment.
	ErrHoldExpired = errors.New("bookings: hold expired")
	// ErrInvalidStatus means the booking's current status does not allow
	// the requested transition.
	ErrInvalidStatus = errors.New("bookings: invalid status for operation")
)

// ValidationError rejects a client request before any state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("bookings: invalid %s: %s", e.Field, e.Reason)
}

func invalidField(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ReconciliationError wraps a transient failure inside the confirmation
// procedure. The payment is real but the booking could not be brought to
// confirmed; the caller should surface a retriable failure so the webhook
// is redelivered.
type ReconciliationError struct {
	Step string
	Err  error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("bookings: confirm %s: %v", e.Step, e.Err)
}

func (e *ReconciliationError) Unwrap() error { return e.Err }

// Retriable marks the error as safe to retry via webhook redelivery.
func (e *ReconciliationError) Retriable() bool { return true }

func reconciliation(step string, err error) error {
	return &ReconciliationError{Step: step, Err: err}
}

// IsRetriable reports whether err (or anything it wraps) should be
// answered with a retriable status so the sender delivers it again.
func IsRetriable(err error) bool {
	var r interface{ Retriable() bool }
	return errors.As(err, &r) && r.Retriable()
}
