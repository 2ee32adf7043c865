// Package oauthflow orchestrates social sign-in: building the
// PKCE-protected authorize URL, redeeming the callback, and the
// Google ID-token shortcut path. The backend performs the provider
// token exchange; this package owns the client side of the dance.
package oauthflow

import (
	"context"
	"net/url"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/Jai-Dhiman/capture-sub001/authclient"
	"github.com/Jai-Dhiman/capture-sub001/pkce"
)

// GoogleIssuer is the OIDC issuer used when a Google provider entry
// does not name one
const GoogleIssuer = "https://accounts.google.com"

// API is the slice of the auth backend this flow drives
type API interface {
	ExchangeOAuthCode(ctx context.Context, provider authclient.OAuthProvider, code, codeVerifier, redirectURI string) (*authclient.AuthResult, error)
	GoogleIDToken(ctx context.Context, idToken string) (*authclient.AuthResult, error)
}

// Provider configures one social sign-in entry. Issuer-based entries
// resolve their endpoints through OIDC discovery; entries with a
// static Endpoint skip discovery.
type Provider struct {
	Name        authclient.OAuthProvider
	ClientID    string
	Issuer      string
	Endpoint    oauth2.Endpoint
	RedirectURI string
	Scopes      []string
}

// Flow runs the authorization-code sign-in for the configured
// providers, one pending attempt per provider at a time
type Flow struct {
	api       API
	attempts  *pkce.Attempts
	providers map[authclient.OAuthProvider]Provider

	verifyIDToken func(ctx context.Context, p Provider, idToken string) error

	discoveryMu sync.Mutex
	discovered  map[string]*oidc.Provider
}

type FlowOption func(*Flow)

// WithIDTokenVerifier overrides how Google ID tokens are checked
// before they are sent to the backend (primarily for testing)
func WithIDTokenVerifier(verify func(ctx context.Context, p Provider, idToken string) error) FlowOption {
	return func(f *Flow) {
		f.verifyIDToken = verify
	}
}

// NewFlow creates a Flow over the given providers
func NewFlow(api API, attempts *pkce.Attempts, providers []Provider, options ...FlowOption) (*Flow, error) {
	if api == nil {
		return nil, errors.New("[NewFlow] api is required")
	}
	if attempts == nil {
		return nil, errors.New("[NewFlow] attempts store is required")
	}

	f := &Flow{
		api:        api,
		attempts:   attempts,
		providers:  make(map[authclient.OAuthProvider]Provider),
		discovered: make(map[string]*oidc.Provider),
	}
	f.verifyIDToken = f.oidcVerifyIDToken

	for _, p := range providers {
		if p.Name == "" {
			return nil, errors.New("[NewFlow] provider name is required")
		}
		if p.RedirectURI == "" {
			return nil, errors.Errorf("[NewFlow] provider %q needs a redirect URI", p.Name)
		}
		f.providers[p.Name] = p
	}
	for _, opt := range options {
		opt(f)
	}
	return f, nil
}

// Start begins a sign-in attempt and returns the authorize URL to open
// in the system browser. Any prior pending attempt for the provider is
// replaced.
func (f *Flow) Start(ctx context.Context, name authclient.OAuthProvider) (string, error) {
	provider, err := f.provider(name)
	if err != nil {
		return "", err
	}

	endpoint, err := f.endpoint(ctx, provider)
	if err != nil {
		return "", err
	}

	params, err := f.attempts.Begin(string(name))
	if err != nil {
		return "", errors.Wrap(err, "[Start] failed to create sign-in attempt")
	}

	cfg := oauth2.Config{
		ClientID:    provider.ClientID,
		Endpoint:    endpoint,
		RedirectURL: provider.RedirectURI,
		Scopes:      provider.Scopes,
	}
	return cfg.AuthCodeURL(params.State, oauth2.S256ChallengeOption(params.Verifier)), nil
}

// HandleCallback redeems an auth-callback URL against the pending
// attempt it belongs to. The attempt is consumed on every exit, so a
// replayed callback can never redeem twice.
func (f *Flow) HandleCallback(ctx context.Context, rawURL string) (*authclient.AuthResult, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, &authclient.Error{Kind: authclient.KindValidation, Message: "malformed callback URL"}
	}
	if !f.CallbackURL(rawURL) {
		return nil, &authclient.Error{Kind: authclient.KindValidation, Message: "URL is not an auth callback"}
	}

	query := parsed.Query()
	params, matched := f.attempts.Take(query.Get("state"))

	if errParam := query.Get("error"); errParam != "" {
		if !matched {
			// An error callback with an unmatched state still ends
			// the sign-in; stale attempts must not outlive it.
			f.attempts.ClearAll()
		}
		if errParam == "access_denied" {
			return nil, &authclient.Error{Kind: authclient.KindCancelled, Message: "sign-in was cancelled"}
		}
		return nil, &authclient.Error{
			Kind:    authclient.KindValidation,
			Code:    errParam,
			Message: "authorization failed: " + firstNonEmpty(query.Get("error_description"), errParam),
		}
	}

	if !matched {
		// An unmatched state is either a replay or a forged callback.
		// Stale attempts are cleared so their verifiers cannot be
		// replayed against a later redirect.
		f.attempts.ClearAll()
		return nil, &authclient.Error{Kind: authclient.KindValidation, Message: "callback state does not match any pending sign-in"}
	}

	code := query.Get("code")
	if code == "" {
		return nil, &authclient.Error{Kind: authclient.KindValidation, Message: "callback is missing the authorization code"}
	}

	provider, err := f.provider(authclient.OAuthProvider(params.Provider))
	if err != nil {
		return nil, err
	}

	result, err := f.api.ExchangeOAuthCode(ctx, provider.Name, code, params.Verifier, provider.RedirectURI)
	if err != nil {
		return nil, errors.Wrapf(err, "[HandleCallback] %s exchange failed", provider.Name)
	}
	return result, nil
}

// LoginWithGoogleIDToken signs in with an ID token obtained from a
// native Google sign-in SDK. The token is verified against the Google
// issuer before it leaves the device, so a tampered token fails here
// rather than in a round trip.
func (f *Flow) LoginWithGoogleIDToken(ctx context.Context, idToken string) (*authclient.AuthResult, error) {
	if idToken == "" {
		return nil, &authclient.Error{Kind: authclient.KindValidation, Message: "id token is required"}
	}

	provider, err := f.provider(authclient.ProviderGoogle)
	if err != nil {
		return nil, err
	}

	if err := f.verifyIDToken(ctx, provider, idToken); err != nil {
		return nil, &authclient.Error{Kind: authclient.KindValidation, Message: "google id token rejected: " + err.Error()}
	}

	result, err := f.api.GoogleIDToken(ctx, idToken)
	if err != nil {
		return nil, errors.Wrap(err, "[LoginWithGoogleIDToken] exchange failed")
	}
	return result, nil
}

// CallbackURL reports whether rawURL targets a configured redirect URI
func (f *Flow) CallbackURL(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	for _, p := range f.providers {
		registered, err := url.Parse(p.RedirectURI)
		if err != nil {
			continue
		}
		if parsed.Scheme == registered.Scheme && parsed.Host == registered.Host && parsed.Path == registered.Path {
			return true
		}
	}
	return false
}

func (f *Flow) provider(name authclient.OAuthProvider) (Provider, error) {
	provider, ok := f.providers[name]
	if !ok {
		return Provider{}, &authclient.Error{Kind: authclient.KindConfiguration, Message: "oauth provider " + string(name) + " is not configured"}
	}
	if provider.ClientID == "" {
		return Provider{}, &authclient.Error{Kind: authclient.KindConfiguration, Message: "missing " + string(name) + " client id"}
	}
	return provider, nil
}

// endpoint resolves the authorize/token endpoints, via OIDC discovery
// for issuer-based providers. Discovery results are cached for the
// flow's lifetime.
func (f *Flow) endpoint(ctx context.Context, provider Provider) (oauth2.Endpoint, error) {
	if provider.Issuer == "" {
		if provider.Endpoint.AuthURL == "" {
			return oauth2.Endpoint{}, &authclient.Error{Kind: authclient.KindConfiguration, Message: "provider " + string(provider.Name) + " has neither issuer nor endpoints"}
		}
		return provider.Endpoint, nil
	}

	discovered, err := f.discover(ctx, provider.Issuer)
	if err != nil {
		return oauth2.Endpoint{}, errors.Wrapf(err, "[endpoint] discovery failed for %s", provider.Issuer)
	}
	return discovered.Endpoint(), nil
}

func (f *Flow) discover(ctx context.Context, issuer string) (*oidc.Provider, error) {
	f.discoveryMu.Lock()
	defer f.discoveryMu.Unlock()

	if cached, ok := f.discovered[issuer]; ok {
		return cached, nil
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, err
	}
	f.discovered[issuer] = provider
	log.Debug().Str("issuer", issuer).Msg("resolved oidc endpoints")
	return provider, nil
}

func (f *Flow) oidcVerifyIDToken(ctx context.Context, provider Provider, idToken string) error {
	issuer := provider.Issuer
	if issuer == "" {
		issuer = GoogleIssuer
	}
	discovered, err := f.discover(ctx, issuer)
	if err != nil {
		return err
	}
	_, err = discovered.Verifier(&oidc.Config{ClientID: provider.ClientID}).Verify(ctx, idToken)
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
