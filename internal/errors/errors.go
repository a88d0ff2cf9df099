package errors

import (
	"fmt"
)

// WardenError is the structured error type for indexwarden.
// It provides rich context for error handling, logging, and operator triage.
type WardenError struct {
	// Code is the unique error code (e.g., "ERR_301_INDEX_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Index, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the operator.
	Suggestion string
}

// Error implements the error interface.
func (e *WardenError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *WardenError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with WardenError.
func (e *WardenError) Is(target error) bool {
	if t, ok := target.(*WardenError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *WardenError) WithDetail(key, value string) *WardenError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the operator.
// Returns the error for method chaining.
func (e *WardenError) WithSuggestion(suggestion string) *WardenError {
	e.Suggestion = suggestion
	return e
}

// New creates a new WardenError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *WardenError {
	return &WardenError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a WardenError from an existing error.
// The error's message becomes the WardenError message.
func Wrap(code string, err error) *WardenError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *WardenError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates an I/O-related error.
func IOError(message string, cause error) *WardenError {
	return New(ErrCodeFileNotFound, message, cause)
}

// IndexError creates an index-artifact error.
// Unavailable artifacts are typically retryable.
func IndexError(message string, cause error) *WardenError {
	return New(ErrCodeIndexUnavailable, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *WardenError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *WardenError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a WardenError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if we, ok := err.(*WardenError); ok {
		return we.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if we, ok := err.(*WardenError); ok {
		return we.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a WardenError.
// Returns empty string if not a WardenError.
func GetCode(err error) string {
	if we, ok := err.(*WardenError); ok {
		return we.Code
	}
	return ""
}

// GetCategory extracts the category from a WardenError.
// Returns empty string if not a WardenError.
func GetCategory(err error) Category {
	if we, ok := err.(*WardenError); ok {
		return we.Category
	}
	return ""
}
