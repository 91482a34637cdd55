// Package apperr provides standardized domain error types for the application.
// Domain services and upstream clients return these typed errors; the HTTP
// layer maps them to status codes and the upload worker uses them to decide
// whether a failed attempt should be retried.
package apperr

import (
	"fmt"
	"net/http"
)

// Kind represents the category of error.
type Kind int

const (
	// KindUnknown is the default error kind when none is specified.
	KindUnknown Kind = iota
	// KindNotFound indicates a resource was not found.
	KindNotFound
	// KindValidation indicates invalid input data.
	KindValidation
	// KindBadRequest indicates a malformed or invalid request.
	KindBadRequest
	// KindUnauthorized indicates authentication is required or failed.
	KindUnauthorized
	// KindUpstreamAuth indicates a credential failure against an upstream API
	// (CRM or ad platform). Fatal for the invocation; never retried blindly.
	KindUpstreamAuth
	// KindRateLimited indicates an upstream rejected the call with a rate
	// limit. Retryable with backoff.
	KindRateLimited
	// KindTransient indicates an upstream network error or 5xx. Retryable.
	KindTransient
	// KindDuplicateConversion indicates the ad platform rejected a repeated
	// conversion. Logged, not escalated.
	KindDuplicateConversion
	// KindInternal indicates an unexpected internal error.
	KindInternal
)

// Error is a domain error with a typed Kind.
type Error struct {
	Kind    Kind
	Message string
	Op      string      // Operation that failed (optional)
	Err     error       // Underlying error (optional)
	Details interface{} // Additional details for response (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the appropriate HTTP status code for this error kind.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstreamAuth, KindTransient:
		return http.StatusBadGateway
	case KindDuplicateConversion:
		return http.StatusConflict
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// New creates a new domain error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a new domain error wrapping an existing error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithOp returns the error with the operation set.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithDetails returns the error with additional details.
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// Convenience constructors for common error types.

// NotFound creates a not found error.
func NotFound(message string) *Error {
	return New(KindNotFound, message)
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return New(KindValidation, message)
}

// BadRequest creates a bad request error.
func BadRequest(message string) *Error {
	return New(KindBadRequest, message)
}

// Unauthorized creates an unauthorized error.
func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message)
}

// UpstreamAuth creates an upstream credential failure error.
func UpstreamAuth(message string) *Error {
	return New(KindUpstreamAuth, message)
}

// RateLimited creates an upstream rate-limit error.
func RateLimited(message string) *Error {
	return New(KindRateLimited, message)
}

// Transient creates an upstream transient (network/5xx) error.
func Transient(message string) *Error {
	return New(KindTransient, message)
}

// DuplicateConversion creates a duplicate conversion error.
func DuplicateConversion(message string) *Error {
	return New(KindDuplicateConversion, message)
}

// Internal creates an internal error.
func Internal(message string) *Error {
	return New(KindInternal, message)
}

// GetKind extracts the error kind from an error.
// Returns KindUnknown if the error is not an *Error.
func GetKind(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindUnknown
}

// Is checks if err is an *Error with the given kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// Retryable reports whether a failed upstream call may be attempted again.
// Only rate-limit and transient failures qualify; credential errors and
// duplicates must not be replayed.
func Retryable(err error) bool {
	switch GetKind(err) {
	case KindRateLimited, KindTransient:
		return true
	default:
		return false
	}
}
