package errors

import (
	stderrors "errors"
	"fmt"
)

// CoreError is the structured error type used across the retrieval core.
// It carries a stable code, a category, and a retryable flag so the indexing
// coordinator can distinguish terminal input failures from transient
// provider and index-write failures.
type CoreError struct {
	// Code is the unique error code (e.g., "ERR_301_EMBEDDING_UNAVAILABLE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Provider, etc.).
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
func (e *CoreError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *CoreError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with CoreError.
func (e *CoreError) Is(target error) bool {
	if t, ok := target.(*CoreError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *CoreError) WithDetail(key, value string) *CoreError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new CoreError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *CoreError {
	return &CoreError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a CoreError from an existing error.
// The error's message becomes the CoreError message.
func Wrap(code string, err error) *CoreError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// InvalidInput creates a terminal validation error (malformed document,
// inconsistent page map, bad request parameters).
func InvalidInput(message string, cause error) *CoreError {
	return New(ErrCodeInvalidInput, message, cause)
}

// EmbeddingUnavailable creates a retryable embedding-provider error.
func EmbeddingUnavailable(message string, cause error) *CoreError {
	return New(ErrCodeEmbeddingUnavailable, message, cause)
}

// IndexWrite creates a retryable index-write error.
func IndexWrite(message string, cause error) *CoreError {
	return New(ErrCodeIndexWrite, message, cause)
}

// QueryTimeout creates a query-timeout error. Never surfaced to callers as a
// hard failure; the planner downgrades the affected signal to empty.
func QueryTimeout(message string, cause error) *CoreError {
	return New(ErrCodeQueryTimeout, message, cause)
}

// IsRetryable checks if an error is retryable. It unwraps the chain,
// so a wrapped CoreError (e.g. after retry exhaustion) keeps its flag.
func IsRetryable(err error) bool {
	var ce *CoreError
	if stderrors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors must not be retried.
func IsFatal(err error) bool {
	var ce *CoreError
	if stderrors.As(err, &ce) {
		return ce.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a CoreError anywhere in the
// chain. Returns empty string if no CoreError is present.
func GetCode(err error) string {
	var ce *CoreError
	if stderrors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// GetCategory extracts the category from a CoreError anywhere in the
// chain. Returns empty string if no CoreError is present.
func GetCategory(err error) Category {
	var ce *CoreError
	if stderrors.As(err, &ce) {
		return ce.Category
	}
	return ""
}
