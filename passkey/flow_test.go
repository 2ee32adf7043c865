package passkey_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/Jai-Dhiman/capture-sub001/authclient"
	"github.com/Jai-Dhiman/capture-sub001/passkey"
	"github.com/Jai-Dhiman/capture-sub001/passkey/bridgefakes"
	"github.com/Jai-Dhiman/capture-sub001/session"
)

const (
	testAccessToken = "access-token-1"
	testChallengeID = "challenge-1"
)

var (
	creationOptions = json.RawMessage(`{
		"publicKey": {
			"challenge": "Y2hhbGxlbmdl",
			"rp": {"name": "Capture", "id": "capture.example"},
			"user": {"id": "dXNlci0x", "name": "john.doe@example.com", "displayName": "John"},
			"pubKeyCredParams": [{"type": "public-key", "alg": -7}]
		}
	}`)

	assertionOptions = json.RawMessage(`{
		"publicKey": {
			"challenge": "Y2hhbGxlbmdl",
			"rpId": "capture.example"
		}
	}`)

	fakeCredential = json.RawMessage(`{"id":"cred-1","type":"public-key"}`)
)

type fakeAPI struct {
	mu sync.Mutex

	beginErr    error
	completeErr error

	registerCompleteCalls []json.RawMessage
	loginCompleteCalls    []json.RawMessage
	loginBeginEmails      []string
	deleted               []string
	credentials           []authclient.PasskeyCredential
}

func (f *fakeAPI) PasskeyRegisterBegin(ctx context.Context, accessToken string) (*authclient.PasskeyBeginResponse, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return &authclient.PasskeyBeginResponse{Options: creationOptions, ChallengeID: testChallengeID}, nil
}

func (f *fakeAPI) PasskeyRegisterComplete(ctx context.Context, accessToken, challengeID string, credential json.RawMessage) (*authclient.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	f.registerCompleteCalls = append(f.registerCompleteCalls, credential)
	return authResult(), nil
}

func (f *fakeAPI) PasskeyLoginBegin(ctx context.Context, email string) (*authclient.PasskeyBeginResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginBeginEmails = append(f.loginBeginEmails, email)
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return &authclient.PasskeyBeginResponse{Options: assertionOptions, ChallengeID: testChallengeID}, nil
}

func (f *fakeAPI) PasskeyLoginComplete(ctx context.Context, challengeID string, credential json.RawMessage) (*authclient.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	f.loginCompleteCalls = append(f.loginCompleteCalls, credential)
	return authResult(), nil
}

func (f *fakeAPI) PasskeyList(ctx context.Context, accessToken string) ([]authclient.PasskeyCredential, error) {
	return f.credentials, nil
}

func (f *fakeAPI) PasskeyDelete(ctx context.Context, accessToken, credentialID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, credentialID)
	return nil
}

func authResult() *authclient.AuthResult {
	return &authclient.AuthResult{
		Session: authclient.Session{AccessToken: "at-2", RefreshToken: "rt-2", ExpiresAt: 1767225600000},
		User:    authclient.User{ID: "user-1", Email: "john.doe@example.com"},
	}
}

// fakeSessions records SetAuthData calls without a real store
type fakeSessions struct {
	mu       sync.Mutex
	snapshot session.Snapshot
	applied  []*authclient.AuthResult
}

func signedInSessions() *fakeSessions {
	return &fakeSessions{
		snapshot: session.Snapshot{
			Session: &authclient.Session{AccessToken: testAccessToken, RefreshToken: "rt-1"},
			Stage:   session.StageAuthenticated,
		},
	}
}

func (f *fakeSessions) Snapshot() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot
}

func (f *fakeSessions) SetAuthData(ctx context.Context, result *authclient.AuthResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, result)
	return nil
}

func TestRegisterRunsFullCeremony(t *testing.T) {
	api := &fakeAPI{}
	store := signedInSessions()
	bridge := bridgefakes.NewFakeAuthenticator(fakeCredential)

	flow, err := passkey.NewFlow(api, store, bridge)
	require.NoError(t, err)

	require.NoError(t, flow.Register(context.Background()))

	require.Len(t, bridge.CreateCalls, 1)
	require.Equal(t, "Capture", bridge.CreateCalls[0].Response.RelyingParty.Name)
	require.Equal(t, []json.RawMessage{fakeCredential}, api.registerCompleteCalls)
	require.Len(t, store.applied, 1)
	require.Equal(t, "at-2", store.applied[0].Session.AccessToken)
}

func TestRegisterRequiresSession(t *testing.T) {
	flow, err := passkey.NewFlow(&fakeAPI{}, &fakeSessions{}, bridgefakes.NewFakeAuthenticator(fakeCredential))
	require.NoError(t, err)

	err = flow.Register(context.Background())
	require.Equal(t, authclient.KindUnauthenticated, authclient.KindOf(err))
}

func TestRegisterUnsupportedBridgeIsConfigurationError(t *testing.T) {
	bridge := bridgefakes.NewFakeAuthenticator(fakeCredential)
	bridge.Unsupported = true
	store := signedInSessions()

	flow, err := passkey.NewFlow(&fakeAPI{}, store, bridge)
	require.NoError(t, err)

	err = flow.Register(context.Background())
	require.Equal(t, authclient.KindConfiguration, authclient.KindOf(err))
	require.Empty(t, store.applied)
}

func TestRegisterCancellationLeavesStoreUntouched(t *testing.T) {
	bridge := bridgefakes.NewFakeAuthenticator(fakeCredential)
	bridge.CreateErr = passkey.ErrCancelled
	api := &fakeAPI{}
	store := signedInSessions()

	flow, err := passkey.NewFlow(api, store, bridge)
	require.NoError(t, err)

	err = flow.Register(context.Background())
	require.True(t, passkey.IsCancelled(err))
	require.Empty(t, api.registerCompleteCalls)
	require.Empty(t, store.applied)
}

func TestLoginFeedsSessionStore(t *testing.T) {
	api := &fakeAPI{}
	store := &fakeSessions{}
	bridge := bridgefakes.NewFakeAuthenticator(fakeCredential)

	flow, err := passkey.NewFlow(api, store, bridge)
	require.NoError(t, err)

	require.NoError(t, flow.Login(context.Background(), "john.doe@example.com"))

	require.Equal(t, []string{"john.doe@example.com"}, api.loginBeginEmails)
	require.Len(t, bridge.GetCalls, 1)
	require.Equal(t, "capture.example", bridge.GetCalls[0].Response.RelyingPartyID)
	require.Len(t, store.applied, 1)
}

func TestLoginCancellation(t *testing.T) {
	bridge := bridgefakes.NewFakeAuthenticator(fakeCredential)
	bridge.GetErr = passkey.ErrCancelled
	store := &fakeSessions{}

	flow, err := passkey.NewFlow(&fakeAPI{}, store, bridge)
	require.NoError(t, err)

	err = flow.Login(context.Background(), "")
	require.True(t, passkey.IsCancelled(err))
	require.Empty(t, store.applied)
}

func TestLoginAuthenticatorFailureIsNotCancellation(t *testing.T) {
	bridge := bridgefakes.NewFakeAuthenticator(fakeCredential)
	bridge.GetErr = errors.New("key blob unreadable")

	flow, err := passkey.NewFlow(&fakeAPI{}, &fakeSessions{}, bridge)
	require.NoError(t, err)

	err = flow.Login(context.Background(), "")
	require.Error(t, err)
	require.False(t, passkey.IsCancelled(err))
}

func TestListAndRemove(t *testing.T) {
	api := &fakeAPI{credentials: []authclient.PasskeyCredential{{ID: "pk-1", CredentialID: "cred-1"}}}
	store := signedInSessions()

	flow, err := passkey.NewFlow(api, store, bridgefakes.NewFakeAuthenticator(fakeCredential))
	require.NoError(t, err)

	creds, err := flow.List(context.Background())
	require.NoError(t, err)
	require.Len(t, creds, 1)

	require.NoError(t, flow.Remove(context.Background(), "pk-1"))
	require.Equal(t, []string{"pk-1"}, api.deleted)
}
