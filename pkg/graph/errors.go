package graph

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNotAuthenticated indicates no bearer token is configured.
var ErrNotAuthenticated = errors.New("not authenticated: no token configured")

// HTTPError represents a non-2xx Graph response. Code and Message are taken
// from the Graph error body when present.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("HTTP %d: %s: %s", e.StatusCode, e.Code, e.Message)
	case e.Body != "":
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// IsRetryable returns true if the HTTP error is retryable.
func (e *HTTPError) IsRetryable() bool {
	// 5xx errors are server issues; 429 is throttling.
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Error wraps a Graph API error with the operation that failed.
type Error struct {
	// Op is the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with operation context.
func WrapError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

// IsRetryable returns true if the error is likely transient and the request
// should be retried.
func IsRetryable(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}
	return false
}

// IsNotFound returns true if the error is a 404 or a Graph ResourceNotFound.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusNotFound || httpErr.Code == "Request_ResourceNotFound"
	}
	return false
}

// IsAlreadyExists returns true if Graph rejected an add because the
// reference is already present.
func IsAlreadyExists(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusBadRequest {
		return false
	}
	return strings.Contains(strings.ToLower(httpErr.Message), "already exist")
}

// IsAuthError returns true if the error is an authentication/authorization error.
func IsAuthError(err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden
	}
	return errors.Is(err, ErrNotAuthenticated)
}
