package oauthflow_test

import (
	"context"
	"net/url"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/Jai-Dhiman/capture-sub001/authclient"
	"github.com/Jai-Dhiman/capture-sub001/oauthflow"
	"github.com/Jai-Dhiman/capture-sub001/pkce"
)

const (
	testClientID    = "client-123.apps.example"
	testRedirectURI = "capture://auth/callback"
)

type fakeAPI struct {
	mu sync.Mutex

	exchangeCalls []exchangeCall
	exchangeErr   error

	idTokenCalls []string
	idTokenErr   error

	result *authclient.AuthResult
}

type exchangeCall struct {
	provider    authclient.OAuthProvider
	code        string
	verifier    string
	redirectURI string
}

func (f *fakeAPI) ExchangeOAuthCode(ctx context.Context, provider authclient.OAuthProvider, code, codeVerifier, redirectURI string) (*authclient.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchangeCalls = append(f.exchangeCalls, exchangeCall{provider, code, codeVerifier, redirectURI})
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return f.result, nil
}

func (f *fakeAPI) GoogleIDToken(ctx context.Context, idToken string) (*authclient.AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idTokenCalls = append(f.idTokenCalls, idToken)
	if f.idTokenErr != nil {
		return nil, f.idTokenErr
	}
	return f.result, nil
}

func authResult() *authclient.AuthResult {
	return &authclient.AuthResult{
		Session: authclient.Session{AccessToken: "at", RefreshToken: "rt", ExpiresAt: 1767225600000},
		User:    authclient.User{ID: "user-1", Email: "john.doe@example.com"},
	}
}

// staticProvider skips OIDC discovery so tests never touch the network
func staticProvider(name authclient.OAuthProvider, clientID string) oauthflow.Provider {
	return oauthflow.Provider{
		Name:     name,
		ClientID: clientID,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://provider.example/authorize",
			TokenURL: "https://provider.example/token",
		},
		RedirectURI: testRedirectURI,
		Scopes:      []string{"openid", "email"},
	}
}

func newFlow(t *testing.T, api *fakeAPI, providers ...oauthflow.Provider) (*oauthflow.Flow, *pkce.Attempts) {
	t.Helper()
	attempts := pkce.NewAttempts()
	flow, err := oauthflow.NewFlow(api, attempts, providers,
		oauthflow.WithIDTokenVerifier(func(ctx context.Context, p oauthflow.Provider, idToken string) error {
			if idToken == "tampered" {
				return errors.New("signature mismatch")
			}
			return nil
		}))
	require.NoError(t, err)
	return flow, attempts
}

func TestStartBuildsPKCEProtectedAuthorizeURL(t *testing.T) {
	flow, attempts := newFlow(t, &fakeAPI{result: authResult()}, staticProvider(authclient.ProviderGoogle, testClientID))

	rawURL, err := flow.Start(context.Background(), authclient.ProviderGoogle)
	require.NoError(t, err)

	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)
	query := parsed.Query()

	require.Equal(t, testClientID, query.Get("client_id"))
	require.Equal(t, testRedirectURI, query.Get("redirect_uri"))
	require.Equal(t, "S256", query.Get("code_challenge_method"))

	params, ok := attempts.Get("google")
	require.True(t, ok)
	require.Equal(t, params.Challenge, query.Get("code_challenge"))
	require.Equal(t, params.State, query.Get("state"))
}

func TestStartWithoutClientIDIsConfigurationError(t *testing.T) {
	flow, _ := newFlow(t, &fakeAPI{}, staticProvider(authclient.ProviderGoogle, ""))

	_, err := flow.Start(context.Background(), authclient.ProviderGoogle)
	require.Equal(t, authclient.KindConfiguration, authclient.KindOf(err))
}

func TestStartUnknownProviderIsConfigurationError(t *testing.T) {
	flow, _ := newFlow(t, &fakeAPI{}, staticProvider(authclient.ProviderGoogle, testClientID))

	_, err := flow.Start(context.Background(), authclient.ProviderApple)
	require.Equal(t, authclient.KindConfiguration, authclient.KindOf(err))
}

func TestHandleCallbackExchangesCodeWithStoredVerifier(t *testing.T) {
	api := &fakeAPI{result: authResult()}
	flow, attempts := newFlow(t, api, staticProvider(authclient.ProviderGoogle, testClientID))

	_, err := flow.Start(context.Background(), authclient.ProviderGoogle)
	require.NoError(t, err)
	params, ok := attempts.Get("google")
	require.True(t, ok)

	result, err := flow.HandleCallback(context.Background(),
		testRedirectURI+"?code=auth-code-1&state="+params.State)
	require.NoError(t, err)
	require.Equal(t, "at", result.Session.AccessToken)

	require.Len(t, api.exchangeCalls, 1)
	call := api.exchangeCalls[0]
	require.Equal(t, authclient.ProviderGoogle, call.provider)
	require.Equal(t, "auth-code-1", call.code)
	require.Equal(t, params.Verifier, call.verifier)
	require.Equal(t, testRedirectURI, call.redirectURI)

	// Attempt is consumed; the same callback cannot redeem twice.
	_, err = flow.HandleCallback(context.Background(),
		testRedirectURI+"?code=auth-code-1&state="+params.State)
	require.Equal(t, authclient.KindValidation, authclient.KindOf(err))
}

func TestHandleCallbackStateMismatchClearsAttempt(t *testing.T) {
	api := &fakeAPI{result: authResult()}
	flow, attempts := newFlow(t, api, staticProvider(authclient.ProviderGoogle, testClientID))

	_, err := flow.Start(context.Background(), authclient.ProviderGoogle)
	require.NoError(t, err)

	_, err = flow.HandleCallback(context.Background(), testRedirectURI+"?code=c&state=forged")
	require.Equal(t, authclient.KindValidation, authclient.KindOf(err))
	require.Empty(t, api.exchangeCalls)

	_, ok := attempts.Get("google")
	require.False(t, ok, "stale attempt must not survive a forged callback")
}

func TestHandleCallbackErrorWithUnmatchedStateClearsAttempt(t *testing.T) {
	flow, attempts := newFlow(t, &fakeAPI{}, staticProvider(authclient.ProviderGoogle, testClientID))

	_, err := flow.Start(context.Background(), authclient.ProviderGoogle)
	require.NoError(t, err)

	_, err = flow.HandleCallback(context.Background(), testRedirectURI+"?error=access_denied&state=forged")
	require.True(t, authclient.IsCancelled(err))

	_, ok := attempts.Get("google")
	require.False(t, ok, "stale attempt must not survive an error callback")
}

func TestHandleCallbackAccessDeniedIsCancelled(t *testing.T) {
	flow, _ := newFlow(t, &fakeAPI{}, staticProvider(authclient.ProviderGoogle, testClientID))

	_, err := flow.HandleCallback(context.Background(), testRedirectURI+"?error=access_denied")
	require.True(t, authclient.IsCancelled(err))
}

func TestHandleCallbackProviderErrorIsValidation(t *testing.T) {
	flow, _ := newFlow(t, &fakeAPI{}, staticProvider(authclient.ProviderGoogle, testClientID))

	_, err := flow.HandleCallback(context.Background(),
		testRedirectURI+"?error=invalid_scope&error_description=bad+scope")
	require.Equal(t, authclient.KindValidation, authclient.KindOf(err))
	require.Contains(t, err.Error(), "bad scope")
}

func TestHandleCallbackRejectsForeignURL(t *testing.T) {
	flow, _ := newFlow(t, &fakeAPI{}, staticProvider(authclient.ProviderGoogle, testClientID))

	_, err := flow.HandleCallback(context.Background(), "https://phisher.example/auth/callback?code=c&state=s")
	require.Equal(t, authclient.KindValidation, authclient.KindOf(err))
}

func TestCallbackURLMatchesConfiguredRedirects(t *testing.T) {
	flow, _ := newFlow(t, &fakeAPI{}, staticProvider(authclient.ProviderGoogle, testClientID))

	require.True(t, flow.CallbackURL(testRedirectURI+"?code=c"))
	require.False(t, flow.CallbackURL("capture://other/path"))
	require.False(t, flow.CallbackURL("https://phisher.example/auth/callback"))
	require.False(t, flow.CallbackURL("::not a url"))
}

func TestLoginWithGoogleIDToken(t *testing.T) {
	api := &fakeAPI{result: authResult()}
	flow, _ := newFlow(t, api, staticProvider(authclient.ProviderGoogle, testClientID))

	result, err := flow.LoginWithGoogleIDToken(context.Background(), "good-token")
	require.NoError(t, err)
	require.Equal(t, "user-1", result.User.ID)
	require.Equal(t, []string{"good-token"}, api.idTokenCalls)
}

func TestLoginWithGoogleIDTokenRejectsTamperedToken(t *testing.T) {
	api := &fakeAPI{result: authResult()}
	flow, _ := newFlow(t, api, staticProvider(authclient.ProviderGoogle, testClientID))

	_, err := flow.LoginWithGoogleIDToken(context.Background(), "tampered")
	require.Equal(t, authclient.KindValidation, authclient.KindOf(err))
	require.Empty(t, api.idTokenCalls, "rejected token must never reach the backend")
}

func TestLoginWithGoogleIDTokenRequiresToken(t *testing.T) {
	flow, _ := newFlow(t, &fakeAPI{}, staticProvider(authclient.ProviderGoogle, testClientID))

	_, err := flow.LoginWithGoogleIDToken(context.Background(), "")
	require.Equal(t, authclient.KindValidation, authclient.KindOf(err))
}
