package authclient

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an API failure so callers can branch on behavior
// instead of matching message strings. The set is closed; downstream
// switch statements cover every case.
type Kind string

const (
	// KindNetwork covers transport failures and timeouts. Retryable.
	KindNetwork Kind = "network"

	// KindUnauthenticated covers definitive credential rejection by the
	// backend. Not retryable; the local session must be cleared.
	KindUnauthenticated Kind = "unauthenticated"

	// KindValidation covers rejected input (bad code, malformed email).
	// The current session is unaffected.
	KindValidation Kind = "validation"

	// KindConfiguration covers missing client-side setup such as an
	// absent OAuth client ID. Raised before any network call.
	KindConfiguration Kind = "configuration"

	// KindCancelled covers user- or context-initiated abandonment.
	// Not a failure; prior state stands.
	KindCancelled Kind = "cancelled"

	// KindServer covers 5xx responses
	KindServer Kind = "server"

	// KindUnknown covers everything the taxonomy cannot place
	KindUnknown Kind = "unknown"
)

// Backend error codes that change client behavior
const (
	CodeInvalidRefreshToken = "auth/invalid-refresh-token"
)

// Error is the single error type returned by Client methods
type Error struct {
	Kind       Kind
	Code       string // backend error code, empty for transport failures
	Message    string
	HTTPStatus int // zero when no response was received
	cause      error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth api: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("auth api: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf extracts the Kind from any error chain, returning KindUnknown
// for errors that did not originate in this package
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	return KindUnknown
}

// IsAuthInvalid reports whether err means the session credentials are
// definitively rejected and must not be retried
func IsAuthInvalid(err error) bool {
	return KindOf(err) == KindUnauthenticated
}

// IsNetwork reports whether err is a transient transport failure
func IsNetwork(err error) bool {
	return KindOf(err) == KindNetwork
}

// IsCancelled reports whether err represents abandonment rather than failure
func IsCancelled(err error) bool {
	return KindOf(err) == KindCancelled
}

func configErrorf(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

func validationErrorf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}
