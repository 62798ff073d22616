package authclient

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrClientNotReady is returned when a method is called on a nil or closed Client.
	ErrClientNotReady = errors.New("client not initialized")
	// ErrUnauthorized is matched by API errors with status 401 or 403.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited is matched by API errors with status 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrRequestFailed is matched by every other non-2xx API error.
	ErrRequestFailed = errors.New("request failed")
	// ErrInvalidResponse is returned when a 2xx body cannot be decoded.
	ErrInvalidResponse = errors.New("invalid response")
	// ErrMissingToken is returned by Login when a 2xx response carries no token.
	ErrMissingToken = errors.New("response carries no token")
	// ErrInvalidRequest is returned for requests rejected before dispatch.
	ErrInvalidRequest = errors.New("invalid request")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

// Error formats the status code and backend message.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Unwrap maps the status code onto the package sentinels.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrRequestFailed
	}
}
