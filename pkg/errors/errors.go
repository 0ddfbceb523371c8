package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is an error that knows how it should be rendered to API clients.
// Code identifies the failure kind; Internal is logged but never rendered.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
	Details    any    `json:"details,omitempty"`
}

func define(code string, status int, message string) *AppError {
	return &AppError{Code: code, Message: message, StatusCode: status}
}

var (
	ErrUnauthorized = define("UNAUTHORIZED", http.StatusUnauthorized, "Authentication required")
	ErrForbidden    = define("FORBIDDEN", http.StatusForbidden, "Permission denied")
	ErrNotFound     = define("NOT_FOUND", http.StatusNotFound, "Resource not found")
	ErrBadRequest   = define("BAD_REQUEST", http.StatusBadRequest, "Invalid request")

	// ErrNotificationForbidden is returned when a user touches a notification owned by someone else.
	ErrNotificationForbidden = define("NOTIFICATION_FORBIDDEN", http.StatusForbidden, "Unauthorized access to notification")
	// ErrStreamUnavailable signals that a realtime stream could not be established.
	ErrStreamUnavailable = define("STREAM_UNAVAILABLE", http.StatusServiceUnavailable, "Failed to create notification stream")

	ErrTooManyRequests = define("TOO_MANY_REQUESTS", http.StatusTooManyRequests, "Too many requests")
	ErrInternalServer  = define("INTERNAL_SERVER_ERROR", http.StatusInternalServerError, "Internal server error")
)

func (e *AppError) Error() string {
	switch {
	case e == nil:
		return "<nil>"
	case e.Internal != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	default:
		return e.Message
	}
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is matches on Code, so derived copies still satisfy errors.Is against the
// catalogue entries.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if e == nil || !errors.As(target, &other) || other == nil {
		return false
	}
	return e.Code == other.Code
}

func (e *AppError) derive(mutate func(*AppError)) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	mutate(&cpy)
	return &cpy
}

// WithInternal returns a copy carrying the underlying cause.
func (e *AppError) WithInternal(err error) *AppError {
	return e.derive(func(c *AppError) { c.Internal = err })
}

// WithDetails returns a copy carrying client-visible details such as field errors.
func (e *AppError) WithDetails(details any) *AppError {
	return e.derive(func(c *AppError) { c.Details = details })
}

// WithMessage returns a copy with a more specific client message.
func (e *AppError) WithMessage(message string) *AppError {
	return e.derive(func(c *AppError) { c.Message = message })
}

func NewBadRequest(message string) *AppError { return ErrBadRequest.WithMessage(message) }

func NewNotFound(message string) *AppError { return ErrNotFound.WithMessage(message) }

// FromError returns the AppError in err's chain, or ErrInternalServer wrapping err.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalServer.WithInternal(err)
}
