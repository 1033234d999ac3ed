package booking

import (
	"errors"
	"fmt"
)

// Error kinds. Callers classify failures with errors.Is against these values.
var (
	ErrValidation             = errors.New("validation failed")
	ErrNotFound               = errors.New("not found")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrDuplicateRequest       = errors.New("duplicate request")
	ErrDownstreamUnavailable  = errors.New("downstream unavailable")
	ErrInvalidServiceConfig   = errors.New("invalid service config")
	// ErrCorruptCacheEntry is returned by a StockCache whose stored value
	// cannot be read back. The entry is rewritten from the store.
	ErrCorruptCacheEntry = errors.New("corrupt stock cache entry")
)

// Specific failures, each matching one of the kinds above.
var (
	ErrConcurrentUpdate         = fmt.Errorf("%w: concurrent update", ErrInvalidStateTransition)
	ErrInvalidAllocation        = fmt.Errorf("%w: total allocation must be greater than zero", ErrValidation)
	ErrRefundExceedsTotal       = fmt.Errorf("%w: refund exceeds reservation total", ErrValidation)
	ErrCategoryEventMismatch    = fmt.Errorf("%w: category does not belong to event", ErrValidation)
	ErrInvalidVenueID           = fmt.Errorf("%w: invalid venue id", ErrValidation)
	ErrInvalidEventID           = fmt.Errorf("%w: invalid event id", ErrValidation)
	ErrInvalidCategoryID        = fmt.Errorf("%w: invalid category id", ErrValidation)
	ErrInvalidReservationID     = fmt.Errorf("%w: invalid reservation id", ErrValidation)
	ErrInvalidUserID            = fmt.Errorf("%w: invalid user id", ErrValidation)
	ErrInvalidIdempotencyKey    = fmt.Errorf("%w: invalid idempotency key", ErrValidation)
	ErrInvalidEntryID           = fmt.Errorf("%w: invalid entry id", ErrValidation)
	ErrInvalidPaymentID         = fmt.Errorf("%w: invalid payment id", ErrValidation)
	ErrInvalidQuantity          = fmt.Errorf("%w: invalid quantity", ErrValidation)
	ErrInvalidAmount            = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrInvalidReservationStatus = fmt.Errorf("%w: invalid reservation status", ErrValidation)
	ErrInvalidEntryType         = fmt.Errorf("%w: invalid entry type", ErrValidation)
	ErrInvalidPaymentDetails    = fmt.Errorf("%w: invalid payment details", ErrValidation)
	ErrInvalidListLimit         = fmt.Errorf("%w: invalid list limit", ErrValidation)
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}

// Unavailable marks a raw infrastructure failure as ErrDownstreamUnavailable while keeping the cause.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDownstreamUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrDownstreamUnavailable, err)
}
