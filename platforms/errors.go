package platforms

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"cms-publisher/models"
)

// maxMessageBytes bounds how much of a platform's error text is kept.
const maxMessageBytes = 512

// AuthError means the platform rejected the credentials (401/403). The
// orchestrator answers it with a single refresh-and-retry.
type AuthError struct {
	Platform   models.Platform
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: authentication failed: %s", e.Platform, e.Message)
	}
	return fmt.Sprintf("%s: authentication failed (%d): %s", e.Platform, e.StatusCode, e.Message)
}

// PlatformError is any non-auth failure reported by, or on the way to, a
// platform. Kind decides whether the ledger row is eligible for retry.
type PlatformError struct {
	Platform   models.Platform
	Kind       models.ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *PlatformError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Platform, e.Message)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Platform, e.Message, e.StatusCode)
}

func (e *PlatformError) Unwrap() error { return e.Err }

func (e *PlatformError) Transient() bool { return e.Kind == models.ErrorKindTransient }

func NewTransientError(platform models.Platform, message string, err error) *PlatformError {
	return &PlatformError{Platform: platform, Kind: models.ErrorKindTransient, Message: truncate(message), Err: err}
}

func NewPermanentError(platform models.Platform, message string, err error) *PlatformError {
	return &PlatformError{Platform: platform, Kind: models.ErrorKindPermanent, Message: truncate(message), Err: err}
}

// classifyStatus maps an HTTP failure status onto the error taxonomy.
func classifyStatus(platform models.Platform, status int, message string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthError{Platform: platform, StatusCode: status, Message: truncate(message)}
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= http.StatusInternalServerError:
		return &PlatformError{Platform: platform, Kind: models.ErrorKindTransient, StatusCode: status, Message: truncate(message)}
	default:
		return &PlatformError{Platform: platform, Kind: models.ErrorKindPermanent, StatusCode: status, Message: truncate(message)}
	}
}

// classifyTransport wraps an error returned by http.Client.Do. Transport
// failures never reached the platform, so they are always worth retrying.
func classifyTransport(platform models.Platform, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewTransientError(platform, "request timed out", err)
	case errors.Is(err, context.Canceled):
		return NewTransientError(platform, "request cancelled", err)
	case errors.As(err, &netErr):
		return NewTransientError(platform, "network error: "+netErr.Error(), err)
	default:
		return NewTransientError(platform, "request failed: "+err.Error(), err)
	}
}

// KindOf reports how an adapter error should be recorded. Auth errors that
// reach the ledger already survived a refresh attempt, so they are permanent.
func KindOf(err error) models.ErrorKind {
	if err == nil {
		return models.ErrorKindNone
	}
	var platformErr *PlatformError
	if errors.As(err, &platformErr) {
		return platformErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrorKindTransient
	}
	return models.ErrorKindPermanent
}

// Message extracts the user-facing text of an adapter error.
func Message(err error) string {
	var platformErr *PlatformError
	if errors.As(err, &platformErr) {
		return platformErr.Message
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return "authentication failed: " + authErr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	return "publish failed"
}

func truncate(message string) string {
	if len(message) <= maxMessageBytes {
		return message
	}
	cut := maxMessageBytes
	// back off to a rune boundary
	for cut > 0 && message[cut]&0xC0 == 0x80 {
		cut--
	}
	return message[:cut]
}
