// Package totp runs authenticator-app enrollment and verification.
// The backend owns the shared secret; this package shapes the
// provisioning URI and feeds completed ceremonies into the session
// store.
package totp

import (
	"context"
	"net/url"

	"github.com/pkg/errors"

	"github.com/Jai-Dhiman/capture-sub001/authclient"
	"github.com/Jai-Dhiman/capture-sub001/session"
)

// DefaultIssuer labels enrollments inside authenticator apps
const DefaultIssuer = "Capture"

// API is the slice of the auth backend the flow drives
type API interface {
	TOTPSetupBegin(ctx context.Context, accessToken string) (*authclient.TOTPEnrollment, error)
	TOTPSetupComplete(ctx context.Context, accessToken, code string) (*authclient.AuthResult, error)
	TOTPVerify(ctx context.Context, accessToken, code string) (*authclient.AuthResult, error)
	TOTPBackupCodes(ctx context.Context, accessToken string) ([]string, error)
	TOTPDisable(ctx context.Context, accessToken string) error
}

// Sessions is the slice of the session store completed ceremonies
// feed into
type Sessions interface {
	Snapshot() session.Snapshot
	SetAuthData(ctx context.Context, result *authclient.AuthResult) error
}

// Flow wires TOTP ceremonies between the backend and the session store
type Flow struct {
	api    API
	store  Sessions
	issuer string
}

type FlowOption func(*Flow)

// WithIssuer overrides the label rendered into provisioning URIs
func WithIssuer(issuer string) FlowOption {
	return func(f *Flow) {
		f.issuer = issuer
	}
}

// NewFlow creates a TOTP Flow
func NewFlow(api API, store Sessions, options ...FlowOption) (*Flow, error) {
	if api == nil {
		return nil, errors.New("[NewFlow] api is required")
	}
	if store == nil {
		return nil, errors.New("[NewFlow] session store is required")
	}

	f := &Flow{api: api, store: store, issuer: DefaultIssuer}
	for _, opt := range options {
		opt(f)
	}
	return f, nil
}

// SetupBegin provisions a new shared secret. When the backend returns
// only the raw secret, the otpauth provisioning URI is rendered here
// so callers always get something a QR code can carry.
func (f *Flow) SetupBegin(ctx context.Context) (*authclient.TOTPEnrollment, error) {
	snap, err := f.requireSession()
	if err != nil {
		return nil, err
	}

	enrollment, err := f.api.TOTPSetupBegin(ctx, snap.Session.AccessToken)
	if err != nil {
		return nil, errors.Wrap(err, "[SetupBegin] failed")
	}

	if enrollment.URI == "" {
		account := ""
		if snap.User != nil {
			account = snap.User.Email
		}
		enrollment.URI = ProvisioningURI(f.issuer, account, enrollment.Secret)
	}
	return enrollment, nil
}

// SetupComplete confirms enrollment with a code from the authenticator
// app and feeds the resulting auth data into the session store, which
// advances past the security-setup stage
func (f *Flow) SetupComplete(ctx context.Context, code string) error {
	snap, err := f.requireSession()
	if err != nil {
		return err
	}

	result, err := f.api.TOTPSetupComplete(ctx, snap.Session.AccessToken, code)
	if err != nil {
		return errors.Wrap(err, "[SetupComplete] failed")
	}
	return f.store.SetAuthData(ctx, result)
}

// Verify presents a login-time second factor code
func (f *Flow) Verify(ctx context.Context, code string) error {
	snap, err := f.requireSession()
	if err != nil {
		return err
	}

	result, err := f.api.TOTPVerify(ctx, snap.Session.AccessToken, code)
	if err != nil {
		return errors.Wrap(err, "[Verify] failed")
	}
	return f.store.SetAuthData(ctx, result)
}

// BackupCodes returns single-use recovery codes, invalidating any
// previously issued set
func (f *Flow) BackupCodes(ctx context.Context) ([]string, error) {
	snap, err := f.requireSession()
	if err != nil {
		return nil, err
	}
	return f.api.TOTPBackupCodes(ctx, snap.Session.AccessToken)
}

// Disable turns the second factor off for the account
func (f *Flow) Disable(ctx context.Context) error {
	snap, err := f.requireSession()
	if err != nil {
		return err
	}
	return f.api.TOTPDisable(ctx, snap.Session.AccessToken)
}

// ProvisioningURI renders the otpauth URI authenticator apps import
func ProvisioningURI(issuer, account, secret string) string {
	label := issuer
	if account != "" {
		label = issuer + ":" + account
	}
	query := url.Values{}
	query.Set("secret", secret)
	query.Set("issuer", issuer)
	return "otpauth://totp/" + url.PathEscape(label) + "?" + query.Encode()
}

func (f *Flow) requireSession() (session.Snapshot, error) {
	snap := f.store.Snapshot()
	if snap.Session == nil {
		return snap, &authclient.Error{Kind: authclient.KindUnauthenticated, Message: "a signed-in session is required"}
	}
	return snap, nil
}
