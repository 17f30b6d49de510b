package web

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is an HTTP-typed error. Its message is shown to clients only when
// Expose is set.
type Error struct {
	Status  int
	Message string
	Expose  bool
	Code    string
	Details any
	Err     error
}

// NewError creates an HTTP error. Client errors (< 500) are exposed.
func NewError(status int, message string) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{Status: status, Message: message, Expose: status < 500}
}

// Errorf is NewError with formatting.
func Errorf(status int, format string, args ...any) *Error {
	return NewError(status, fmt.Sprintf(format, args...))
}

// WithDetails attaches client-visible details.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

// Wrap records the underlying cause.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts an HTTP error from err's chain.
func AsError(err error) (*Error, bool) {
	var he *Error
	if errors.As(err, &he) {
		return he, true
	}
	return nil, false
}

// StatusOf returns the status carried by err: an *Error status, or the
// result of a StatusCode() method. Values outside 400..599 yield 500.
func StatusOf(err error) int {
	status := 0
	if he, ok := AsError(err); ok {
		status = he.Status
	} else {
		var sc interface{ StatusCode() int }
		if errors.As(err, &sc) {
			status = sc.StatusCode()
		}
	}
	if status < 400 || status > 599 {
		return http.StatusInternalServerError
	}
	return status
}
