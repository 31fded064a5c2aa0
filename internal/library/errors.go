package library

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSessionExpired means the backend answered 401 or 403. The session
	// layer is notified; callers must not retry.
	ErrSessionExpired = errors.New("session expired")

	// ErrValidation is returned before any network call for bad input, and for
	// 400 responses.
	ErrValidation = errors.New("invalid input")

	ErrNotFound   = errors.New("not found")
	ErrAPIRequest = errors.New("api request failed")

	// ErrTransport covers network failures where no response arrived.
	ErrTransport = errors.New("transport failure")
)

// APIError describes a non-2xx response.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api %s %s returned status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("api %s %s returned status %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// Unwrap maps the status code onto the package sentinels.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return ErrSessionExpired
	case e.Status == http.StatusBadRequest:
		return ErrValidation
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	default:
		return ErrAPIRequest
	}
}

// IsTransient reports whether err is worth retrying later: network failures,
// throttling and server-side errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransport) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}
	return false
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
