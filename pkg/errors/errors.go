// Package errors defines the service's error sentinels and maps them onto
// HTTP responses.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNoData       = errors.New("no record data available")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnavailable  = errors.New("dependency unavailable")
	ErrInternal     = errors.New("internal error")
	ErrTimeout      = errors.New("operation timed out")
)

// AppError pairs a sentinel with the status code and the message a client
// sees.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return New(sentinel, statusCode, fmt.Sprintf(format, args...))
}

// Invalid is shorthand for a request validation failure.
func Invalid(statusCode int, format string, args ...any) *AppError {
	return Newf(ErrInvalidInput, statusCode, format, args...)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrNoData), errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Detail returns the text placed in a response's "detail" field. Only
// AppError messages and known sentinels reach the client; anything else is
// reported as an internal error.
func Detail(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	for _, sentinel := range []error{ErrInvalidInput, ErrTimeout, ErrNoData, ErrUnavailable} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout.Error()
	}
	return ErrInternal.Error()
}
