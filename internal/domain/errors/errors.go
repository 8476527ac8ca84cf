package errors

import (
	"errors"
	"fmt"
)

var (
	// Order / record errors
	ErrOrderNotFound          = errors.New("order not found")
	ErrRecordNotFound         = errors.New("insurance record not found")
	ErrPlanAlreadySelected    = errors.New("insurance plan already selected")
	ErrPolicyAlreadyPurchased = errors.New("policy already purchased")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// Plan errors
	ErrPlanNotFound = errors.New("insurance plan not found")

	// Remote API errors
	ErrAPIBaseNotConfigured = errors.New("insurance API base not configured")
	ErrProviderUnavailable  = errors.New("insurance provider unavailable")

	// Scheduler errors
	ErrSchedulerUnavailable = errors.New("retry scheduler unavailable")

	// Validation errors
	ErrInvalidInput = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// Unwrap makes every validation error match ErrInvalidInput, so callers can
// branch on the sentinel without knowing the field.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
