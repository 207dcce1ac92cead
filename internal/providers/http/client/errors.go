package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrRateLimited     = errors.New("too many requests, please retry shortly")
	ErrNotFound        = errors.New("resource not found")
	ErrUnavailable     = errors.New("remote service unavailable")
)

// APIError is a non-2xx response from the remote backend
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// Is maps well-known statuses onto sentinel errors
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	case ErrUnauthenticated:
		return e.Status == http.StatusUnauthorized
	}
	return false
}

// clientFault reports whether the error was caused by the request itself
// rather than by the remote service being unhealthy.
func clientFault(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return errors.Is(err, ErrUnauthenticated)
	}
	return apiErr.Status >= 400 && apiErr.Status < 500 && apiErr.Status != http.StatusTooManyRequests
}

// Message returns the text best suited for showing an error to a user
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return ErrRateLimited.Error()
	case errors.Is(err, ErrUnauthenticated):
		return ErrUnauthenticated.Error()
	case errors.Is(err, ErrUnavailable):
		return ErrUnavailable.Error()
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
