package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// Error represents an application error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same status code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// JSON returns the error as a JSON string
func (e *Error) JSON() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// New creates a new Error
func New(code int, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewValidation reports malformed or missing input.
func NewValidation(message string) *Error {
	return New(http.StatusBadRequest, message, nil)
}

// NewConflict reports a write that collides with an existing order.
func NewConflict(message string) *Error {
	return New(http.StatusConflict, message, nil)
}

// NewNotFound reports that no order matched the requested key.
func NewNotFound(message string) *Error {
	return New(http.StatusNotFound, message, nil)
}

// NewInternal wraps a store failure. The cause is kept for logging only.
func NewInternal(message string, err error) *Error {
	return New(http.StatusInternalServerError, message, err)
}

// Common error types. They are compared with errors.Is, which matches on Code.
var (
	ErrValidation       = New(http.StatusBadRequest, "Validation error", nil)
	ErrNotFound         = New(http.StatusNotFound, "Not found", nil)
	ErrConflict         = New(http.StatusConflict, "Conflict", nil)
	ErrInternalServer   = New(http.StatusInternalServerError, "Internal server error", nil)
	ErrOrderIDExhausted = New(http.StatusServiceUnavailable, "Could not allocate a unique order ID, please retry", nil)
)

// StatusOf returns the HTTP status carried by err, or 500 for foreign errors.
func StatusOf(err error) (int, string) {
	var appErr *Error
	if stderrors.As(err, &appErr) {
		return appErr.Code, appErr.Message
	}
	return ErrInternalServer.Code, ErrInternalServer.Message
}
