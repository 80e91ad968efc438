package errors

import (
	"fmt"
)

// EngramError is the structured error type for ccengram.
// It provides context for error handling, logging, and RPC presentation.
type EngramError struct {
	// Code is the unique error code (e.g., "ERR_601_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *EngramError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *EngramError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *EngramError) Is(target error) bool {
	if t, ok := target.(*EngramError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *EngramError) WithDetail(key, value string) *EngramError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new EngramError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *EngramError {
	return &EngramError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an EngramError from an existing error.
func Wrap(code string, err error) *EngramError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// InvalidInput creates a validation error. Never retried.
func InvalidInput(message string) *EngramError {
	return New(ErrCodeInvalidInput, message, nil)
}

// NotFound creates a not-found error for the given entity kind and id.
func NotFound(kind, id string) *EngramError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found: %s", kind, id), nil).
		WithDetail("kind", kind).WithDetail("id", id)
}

// AmbiguousPrefix creates an error for an ID prefix matching multiple rows.
func AmbiguousPrefix(prefix string, count int) *EngramError {
	return New(ErrCodeAmbiguousPrefix,
		fmt.Sprintf("prefix %q matches %d entities, provide more characters", prefix, count), nil).
		WithDetail("prefix", prefix).
		WithDetail("count", fmt.Sprintf("%d", count))
}

// Conflict creates an error for a lost write race.
func Conflict(message string) *EngramError {
	return New(ErrCodeConflict, message, nil)
}

// StoreError creates a store-layer error.
func StoreError(message string, cause error) *EngramError {
	return New(ErrCodeStore, message, cause)
}

// Cancelled creates an error for a cooperatively cancelled operation.
func Cancelled(operation string) *EngramError {
	return New(ErrCodeCancelled, fmt.Sprintf("%s cancelled", operation), nil)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ee, ok := err.(*EngramError); ok {
		return ee.Retryable
	}
	return false
}

// GetCode extracts the error code from an EngramError.
// Returns empty string if not an EngramError.
func GetCode(err error) string {
	if ee, ok := err.(*EngramError); ok {
		return ee.Code
	}
	return ""
}

// RPCCode maps an error to its JSON-RPC error code.
// Validation errors map to -32602 (invalid params), everything else
// surfaces as -32000 (domain error).
func RPCCode(err error) int {
	if ee, ok := err.(*EngramError); ok {
		if ee.Category == CategoryValidation {
			return -32602
		}
	}
	return -32000
}
