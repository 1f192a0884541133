// Package errors provides standardized error definitions for the song request hub.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a structured application error.
type Error struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	HTTPStatus int         `json:"-"`
	Details    interface{} `json:"details,omitempty"`
	Err        error       `json:"-"` // Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetails adds details to a copy of the error.
func (e *Error) WithDetails(details interface{}) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

// WithError wraps another error into a copy of the error.
func (e *Error) WithError(err error) *Error {
	clone := *e
	clone.Err = err
	return &clone
}

// New creates a new Error.
func New(code, message string, httpStatus int) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an existing error with error code and message.
func Wrap(err error, code, message string, httpStatus int) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Is reports whether err carries the given error code.
func Is(err error, code string) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Common error codes
const (
	// General errors
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeTooManyRequests = "TOO_MANY_REQUESTS"

	// Queue errors
	ErrCodeRequestNotFound = "REQUEST_NOT_FOUND"
	ErrCodeAlreadyVoted    = "ALREADY_VOTED"
	ErrCodeRequestPlayed   = "REQUEST_PLAYED"
	ErrCodeSongNotFound    = "SONG_NOT_FOUND"

	// Validation errors
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeMissingField     = "MISSING_FIELD"

	// Service errors
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"
	ErrCodeFeedUnavailable  = "FEED_UNAVAILABLE"
	ErrCodeTimeout          = "TIMEOUT"
)

// Predefined errors
var (
	ErrInternal        = New(ErrCodeInternal, "Internal server error", http.StatusInternalServerError)
	ErrInvalidRequest  = New(ErrCodeInvalidRequest, "Invalid request", http.StatusBadRequest)
	ErrNotFound        = New(ErrCodeNotFound, "Resource not found", http.StatusNotFound)
	ErrConflict        = New(ErrCodeConflict, "Resource conflict", http.StatusConflict)
	ErrForbidden       = New(ErrCodeForbidden, "Access forbidden", http.StatusForbidden)
	ErrUnauthorized    = New(ErrCodeUnauthorized, "Authentication required", http.StatusUnauthorized)
	ErrTooManyRequests = New(ErrCodeTooManyRequests, "Too many requests", http.StatusTooManyRequests)

	ErrRequestNotFound = New(ErrCodeRequestNotFound, "Song request not found", http.StatusNotFound)
	ErrAlreadyVoted    = New(ErrCodeAlreadyVoted, "You already voted for this request", http.StatusConflict)
	ErrRequestPlayed   = New(ErrCodeRequestPlayed, "This request was already played", http.StatusConflict)
	ErrSongNotFound    = New(ErrCodeSongNotFound, "Song not found", http.StatusNotFound)

	ErrValidationFailed = New(ErrCodeValidationFailed, "Validation failed", http.StatusBadRequest)
	ErrMissingField     = New(ErrCodeMissingField, "Required field missing", http.StatusBadRequest)

	ErrStoreUnavailable = New(ErrCodeStoreUnavailable, "Storage temporarily unavailable", http.StatusServiceUnavailable)
	ErrFeedUnavailable  = New(ErrCodeFeedUnavailable, "Change feed temporarily unavailable", http.StatusServiceUnavailable)
	ErrTimeout          = New(ErrCodeTimeout, "Operation timed out", http.StatusGatewayTimeout)
)
