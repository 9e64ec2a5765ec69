package workspace

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoCredential is returned before any network call when the session has
// no bearer token to offer.
var ErrNoCredential = errors.New("no workspace credential available")

// UnauthorizedError reports a 401. The client also fires its unauthorized
// hook so the session layer can drop readiness.
type UnauthorizedError struct {
	Message string
}

func (e *UnauthorizedError) Error() string {
	if e.Message == "" {
		return "workspace: unauthorized"
	}
	return fmt.Sprintf("workspace: unauthorized: %s", e.Message)
}

// RateLimitedError reports a 429 with the server-specified wait, zero when
// no Retry-After header was present.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("workspace: rate limited, retry after %s", e.RetryAfter)
}

// ServerError reports any other non-2xx response.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("workspace: server error %d", e.StatusCode)
	}
	return fmt.Sprintf("workspace: server error %d: %s", e.StatusCode, e.Message)
}

// TransportError reports a network or timeout failure where no HTTP status
// was received.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("workspace: transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PayloadError reports a malformed request or response body. Never
// retryable: the same bytes will fail the same way.
type PayloadError struct {
	Err error
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("workspace: invalid payload: %v", e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }
