package authclient

import "time"

// Session is the token pair issued by the auth backend.
// Returned inside AuthResult from every credential-producing endpoint.
type Session struct {
	// AccessToken is the JWT presented on authenticated API calls.
	// Example: "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."
	// Usage: Include in Authorization header: "Bearer <access_token>"
	// Lifespan: Short-lived (typically 15-60 minutes)
	AccessToken string `json:"access_token"`

	// RefreshToken is an opaque token used to obtain new sessions.
	// Example: "tGzv3JOkF0XG5Qx2TlKWIA"
	// Usage: Send to /auth/refresh; rotates on each use
	// Security: Stored only in the encrypted secure store
	RefreshToken string `json:"refresh_token"`

	// ExpiresAt is the access token expiry as epoch milliseconds.
	// Example: 1767225600000
	// Usage: Refresh is scheduled ahead of this instant
	ExpiresAt int64 `json:"expires_at"`
}

// ExpiryTime returns ExpiresAt as a time.Time
func (s Session) ExpiryTime() time.Time {
	return time.UnixMilli(s.ExpiresAt)
}

// ExpiresWithin reports whether the session expires before now+leeway.
// A zero ExpiresAt always reports true.
func (s Session) ExpiresWithin(leeway time.Duration, now time.Time) bool {
	return !now.Add(leeway).Before(s.ExpiryTime())
}

// User is the backend's identity record for the signed-in account
type User struct {
	ID               string  `json:"id"`
	Email            string  `json:"email"`
	Phone            *string `json:"phone,omitempty"`
	PhoneConfirmedAt *string `json:"phone_confirmed_at,omitempty"`
}

// AuthResult is the common response of every endpoint that establishes
// or renews credentials. The two flags steer onboarding:
//
//	SecuritySetupRequired true  -> account must enroll a second factor
//	ProfileExists false          -> account must create a profile
//
// Both are optional on the wire; absence means "no action needed".
type AuthResult struct {
	Session               Session `json:"session"`
	User                  User    `json:"user"`
	ProfileExists         *bool   `json:"profileExists,omitempty"`
	SecuritySetupRequired *bool   `json:"securitySetupRequired,omitempty"`
}

// MeResult is the whoami response used to validate a stored session
type MeResult struct {
	User                  User  `json:"user"`
	ProfileExists         *bool `json:"profileExists,omitempty"`
	SecuritySetupRequired *bool `json:"securitySetupRequired,omitempty"`
}

// PasskeyCredential describes one registered passkey
type PasskeyCredential struct {
	ID           string  `json:"id"`
	CredentialID string  `json:"credentialId"`
	DeviceName   *string `json:"deviceName,omitempty"`
	CreatedAt    string  `json:"createdAt"`
	LastUsedAt   *string `json:"lastUsedAt,omitempty"`
}

// TOTPEnrollment carries the shared secret for authenticator apps.
// URI is the otpauth:// provisioning string when the backend renders it.
type TOTPEnrollment struct {
	Secret string `json:"secret"`
	URI    string `json:"uri,omitempty"`
}
