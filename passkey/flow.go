package passkey

import (
	"context"
	"encoding/json"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/Jai-Dhiman/capture-sub001/authclient"
	"github.com/Jai-Dhiman/capture-sub001/session"
)

// API is the slice of the auth backend the ceremonies run against
type API interface {
	PasskeyRegisterBegin(ctx context.Context, accessToken string) (*authclient.PasskeyBeginResponse, error)
	PasskeyRegisterComplete(ctx context.Context, accessToken, challengeID string, credential json.RawMessage) (*authclient.AuthResult, error)
	PasskeyLoginBegin(ctx context.Context, email string) (*authclient.PasskeyBeginResponse, error)
	PasskeyLoginComplete(ctx context.Context, challengeID string, credential json.RawMessage) (*authclient.AuthResult, error)
	PasskeyList(ctx context.Context, accessToken string) ([]authclient.PasskeyCredential, error)
	PasskeyDelete(ctx context.Context, accessToken, credentialID string) error
}

// Sessions is the slice of the session store a completed ceremony
// feeds into
type Sessions interface {
	Snapshot() session.Snapshot
	SetAuthData(ctx context.Context, result *authclient.AuthResult) error
}

// Flow wires ceremonies end to end: backend begin, bridge operation,
// backend complete, session store update
type Flow struct {
	api    API
	store  Sessions
	bridge Authenticator
}

// NewFlow creates a passkey Flow
func NewFlow(api API, store Sessions, bridge Authenticator) (*Flow, error) {
	if api == nil {
		return nil, errors.New("[NewFlow] api is required")
	}
	if store == nil {
		return nil, errors.New("[NewFlow] session store is required")
	}
	if bridge == nil {
		return nil, errors.New("[NewFlow] authenticator bridge is required")
	}
	return &Flow{api: api, store: store, bridge: bridge}, nil
}

// Register enrolls a new passkey for the signed-in account and feeds
// the resulting auth data into the session store, which advances the
// lifecycle stage when the backend drops the security-setup flag.
// A dismissed platform prompt returns ErrCancelled with no state
// touched.
func (f *Flow) Register(ctx context.Context) error {
	accessToken, err := f.requireBridgeAndSession()
	if err != nil {
		return err
	}

	begin, err := f.api.PasskeyRegisterBegin(ctx, accessToken)
	if err != nil {
		return errors.Wrap(err, "[Register] begin failed")
	}

	var options protocol.CredentialCreation
	if err := json.Unmarshal(begin.Options, &options); err != nil {
		return errors.Wrap(err, "[Register] backend sent undecodable creation options")
	}

	credential, err := f.bridge.Create(ctx, options)
	if err != nil {
		if IsCancelled(err) {
			log.Debug().Msg("passkey registration dismissed")
			return ErrCancelled
		}
		return errors.Wrap(err, "[Register] authenticator failed")
	}

	result, err := f.api.PasskeyRegisterComplete(ctx, accessToken, begin.ChallengeID, credential)
	if err != nil {
		return errors.Wrap(err, "[Register] complete failed")
	}
	return f.store.SetAuthData(ctx, result)
}

// Login signs in with a passkey. Email is optional; without it the
// backend issues a discoverable-credential challenge and the
// authenticator picks the account.
func (f *Flow) Login(ctx context.Context, email string) error {
	if !f.bridge.Supported() {
		return &authclient.Error{Kind: authclient.KindConfiguration, Message: "passkeys are not supported on this device"}
	}

	begin, err := f.api.PasskeyLoginBegin(ctx, email)
	if err != nil {
		return errors.Wrap(err, "[Login] begin failed")
	}

	var options protocol.CredentialAssertion
	if err := json.Unmarshal(begin.Options, &options); err != nil {
		return errors.Wrap(err, "[Login] backend sent undecodable assertion options")
	}

	credential, err := f.bridge.Get(ctx, options)
	if err != nil {
		if IsCancelled(err) {
			log.Debug().Msg("passkey sign-in dismissed")
			return ErrCancelled
		}
		return errors.Wrap(err, "[Login] authenticator failed")
	}

	result, err := f.api.PasskeyLoginComplete(ctx, begin.ChallengeID, credential)
	if err != nil {
		return errors.Wrap(err, "[Login] complete failed")
	}
	return f.store.SetAuthData(ctx, result)
}

// List returns the account's registered passkeys
func (f *Flow) List(ctx context.Context) ([]authclient.PasskeyCredential, error) {
	accessToken, err := f.requireSession()
	if err != nil {
		return nil, err
	}
	return f.api.PasskeyList(ctx, accessToken)
}

// Remove deletes one registered passkey by its record ID
func (f *Flow) Remove(ctx context.Context, credentialID string) error {
	accessToken, err := f.requireSession()
	if err != nil {
		return err
	}
	return f.api.PasskeyDelete(ctx, accessToken, credentialID)
}

func (f *Flow) requireBridgeAndSession() (string, error) {
	if !f.bridge.Supported() {
		return "", &authclient.Error{Kind: authclient.KindConfiguration, Message: "passkeys are not supported on this device"}
	}
	return f.requireSession()
}

func (f *Flow) requireSession() (string, error) {
	snap := f.store.Snapshot()
	if snap.Session == nil {
		return "", &authclient.Error{Kind: authclient.KindUnauthenticated, Message: "a signed-in session is required"}
	}
	return snap.Session.AccessToken, nil
}
