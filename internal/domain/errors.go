package domain

import (
	"errors"
	"fmt"
)

// InvariantViolation is returned when an operation would leave a balance or
// holding bucket negative. It is always recoverable: the triggering unit of
// work is discarded and surrounding work proceeds.
type InvariantViolation struct {
	Op     string // ledger operation that was refused
	Detail string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation in " + e.Op + ": " + e.Detail
}

// IsInvariantViolation checks whether err is (or wraps) an InvariantViolation.
func IsInvariantViolation(err error) bool {
	var iv *InvariantViolation
	return errors.As(err, &iv)
}

// ValidationError represents malformed or out-of-range caller input. No state
// mutation happens when one is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// IsValidation checks whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundError is returned when a referenced asset, user or order does not
// exist where existence was required.
type NotFoundError struct {
	Kind string // "asset", "order", "user"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// IsNotFound checks whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
