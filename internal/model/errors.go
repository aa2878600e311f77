package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a milestone or document does not exist.
	ErrNotFound = errors.New("not found")

	// ErrIllegalTransition is returned when a command is not valid from the
	// milestone's current status. Not retryable.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrNotReady is returned when a payment release is attempted before both
	// parties have approved a completed milestone.
	ErrNotReady = errors.New("milestone not ready for payment release")

	// ErrAlreadyReleased is returned when a release is attempted on a milestone
	// whose payment has already gone out. The original transaction ref is kept.
	ErrAlreadyReleased = errors.New("payment already released")

	// ErrImmutable is returned when a mutation is attempted on a paid or
	// cancelled milestone. Permanent.
	ErrImmutable = errors.New("milestone is immutable")
)

// ValidationError reports bad input shape. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// PaymentProcessorError wraps a failure from the external payment processor.
// The milestone is left unchanged, so the caller may retry the release.
type PaymentProcessorError struct {
	Err error
}

func (e *PaymentProcessorError) Error() string {
	return fmt.Sprintf("payment processor: %v", e.Err)
}

func (e *PaymentProcessorError) Unwrap() error { return e.Err }
