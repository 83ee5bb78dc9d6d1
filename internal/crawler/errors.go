package crawler

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidRequest marks pre-flight validation failures.
	ErrInvalidRequest = errors.New("invalid crawl request")
	// ErrRedirectLimit is returned when a fetch follows too many redirects.
	ErrRedirectLimit = errors.New("redirect limit reached")
	// ErrNonHTML is returned when a response is not an HTML document.
	ErrNonHTML = errors.New("non-html content")
)

// StatusError reports a non-success HTTP status.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.Code, e.URL)
}

// Reason classifies the failure the way diagnostics report it.
func (e *StatusError) Reason() string {
	switch e.Code {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return "blocked"
	default:
		return "http-error"
	}
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	switch e.Code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
