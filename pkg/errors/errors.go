package errors

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness. Details carries
// per-item diagnostics for batch operations.
type Error struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Status  int      `json:"status"`
	Details []string `json:"details,omitempty"`
	Err     error    `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials  = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount     = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrUnauthenticated     = New("UNAUTHENTICATED", http.StatusUnauthorized, "authentication required")
	ErrForbidden           = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrNotFound            = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrValidation          = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrMissingReference    = New("MISSING_REFERENCE", http.StatusUnprocessableEntity, "referenced resource does not exist")
	ErrConflict            = New("CONFLICT", http.StatusConflict, "conflict")
	ErrIllegalTransition   = New("ILLEGAL_TRANSITION", http.StatusConflict, "illegal lifecycle transition")
	ErrDuplicateSubmission = New("DUPLICATE_SUBMISSION", http.StatusConflict, "submission already exists")
	ErrPastDeadline        = New("PAST_DEADLINE", http.StatusUnprocessableEntity, "assignment deadline has passed")
	ErrCapacityExceeded    = New("CAPACITY_EXCEEDED", http.StatusConflict, "class is at capacity")
	ErrStoreUnavailable    = New("STORE_UNAVAILABLE", http.StatusServiceUnavailable, "document store unavailable")
	ErrInternal            = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss           = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError normalises any error into an *Error. Internal errors that wrap
// a dropped connection surface as STORE_UNAVAILABLE so clients know the
// request is safe to retry.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Code == ErrInternal.Code && connectionFailure(e.Err) {
			return Wrap(e.Err, ErrStoreUnavailable.Code, ErrStoreUnavailable.Status, ErrStoreUnavailable.Message)
		}
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

func connectionFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// WithDetails returns a copy of the error carrying per-item diagnostics.
func WithDetails(err *Error, details []string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.Details = details
	return &clone
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// HasCode reports whether err carries the given domain code.
func HasCode(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}
