package verification

import (
	"errors"
	"fmt"
)

// ErrorKind is the normalized failure taxonomy for provider registration calls.
type ErrorKind string

const (
	KindBadRequest     ErrorKind = "bad_request"
	KindUnauthorized   ErrorKind = "unauthorized"
	KindForbidden      ErrorKind = "forbidden"
	KindConflict       ErrorKind = "conflict"
	KindProviderOutage ErrorKind = "provider_outage"
	KindTimeout        ErrorKind = "timeout"
	KindBadData        ErrorKind = "bad_data"
)

// ErrNotConfigured is returned by Unconfigured when no base URL or token is set.
var ErrNotConfigured = errors.New("verification provider not configured")

// Error wraps provider failures with normalized categorization.
type Error struct {
	Kind       ErrorKind
	StatusCode int // 0 when no response was received
	Message    string
	Underlying error
	Retryable  bool
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("verification provider [%s] status=%d: %s", e.Kind, e.StatusCode, e.Message)
	}
	if e.Underlying != nil {
		return fmt.Sprintf("verification provider [%s]: %s: %v", e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("verification provider [%s]: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

func newError(kind ErrorKind, status int, message string, underlying error) *Error {
	return &Error{
		Kind:       kind,
		StatusCode: status,
		Message:    message,
		Underlying: underlying,
		Retryable:  kind == KindTimeout || kind == KindProviderOutage,
	}
}

// KindOf extracts the error kind; any non-provider error reads as an outage.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindProviderOutage
}

// kindForStatus maps a non-success registration response.
func kindForStatus(status int) ErrorKind {
	switch status {
	case 400, 422:
		return KindBadRequest
	case 401:
		return KindUnauthorized
	case 403:
		return KindForbidden
	case 409:
		return KindConflict
	default:
		return KindProviderOutage
	}
}
