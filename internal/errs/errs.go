// Package errs defines the error kinds shared across the core services and
// their mapping onto HTTP status codes.
package errs

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrBusy is returned when a cycle start is requested while one is active.
	ErrBusy = errors.New("a trading cycle is already running")

	// ErrNotFound is returned for unknown cycle, scan, or news identifiers.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks malformed operator or upstream input. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrDependencyDown marks an unreachable persistence store or a required
	// collaborator that failed its health check. Fatal to the cycle.
	ErrDependencyDown = errors.New("dependency unavailable")

	// ErrRateLimited is returned by a source that refused the request; the
	// source sits out the remainder of the current cycle.
	ErrRateLimited = errors.New("rate limited")
)

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// DependencyDown wraps the cause as a fatal dependency failure.
func DependencyDown(cause error) error {
	return fmt.Errorf("%w: %v", ErrDependencyDown, cause)
}

// Transient reports whether err is a remote I/O failure worth retrying
// in-stage. Validation, busy, and not-found errors are never transient.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrBusy) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrRateLimited) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, ErrDependencyDown)
}

// Code returns the machine-readable error code used in HTTP error bodies.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrDependencyDown):
		return "dependency_down"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	default:
		return "internal"
	}
}

// HTTPStatus maps an error kind onto its HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrBusy):
		return http.StatusConflict
	case errors.Is(err, ErrDependencyDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
