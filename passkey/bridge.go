// Package passkey runs WebAuthn ceremonies against the auth backend
// through a platform authenticator bridge. The backend issues
// challenge options, the bridge performs the biometric-gated key
// operation, and the signed result completes the ceremony.
package passkey

import (
	"context"
	"encoding/json"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/pkg/errors"
)

// ErrCancelled means the user dismissed the platform prompt. It is an
// outcome, not a failure; callers return to the prior state without an
// error surface.
var ErrCancelled = errors.New("passkey: ceremony cancelled by user")

// Authenticator is the platform passkey bridge. Implementations wrap
// the OS credential APIs; the fake in bridgefakes covers tests.
type Authenticator interface {
	// Create runs a registration ceremony and returns the platform's
	// attestation response as the JSON the backend expects
	Create(ctx context.Context, options protocol.CredentialCreation) (json.RawMessage, error)

	// Get runs an authentication ceremony and returns the assertion
	// response as JSON
	Get(ctx context.Context, options protocol.CredentialAssertion) (json.RawMessage, error)

	// Supported reports whether the platform can run ceremonies at all
	Supported() bool
}

// BiometryType enumerates the biometric factors a device may offer
type BiometryType string

const (
	BiometryFingerprint BiometryType = "fingerprint"
	BiometryFace        BiometryType = "face"
	BiometryIris        BiometryType = "iris"
)

// Capability reports the device's biometric posture, used by setup
// screens to decide what to offer before any ceremony starts
type Capability interface {
	HasHardware() bool
	Enrolled() bool
	SupportedTypes() []BiometryType
}

// IsCancelled reports whether err is a user dismissal rather than a
// failure
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
