package authclient

import (
	"context"
	"net/http"
)

// OAuthProvider identifies a supported social sign-in provider
type OAuthProvider string

const (
	ProviderGoogle OAuthProvider = "google"
	ProviderApple  OAuthProvider = "apple"
)

func (p OAuthProvider) valid() bool {
	return p == ProviderGoogle || p == ProviderApple
}

type oauthExchangeRequest struct {
	Code         string `json:"code"`
	CodeVerifier string `json:"codeVerifier"`
	RedirectURI  string `json:"redirectUri"`
}

type googleIDTokenRequest struct {
	IDToken string `json:"idToken"`
}

// ExchangeOAuthCode sends an authorization code plus its PKCE verifier
// to the backend, which performs the provider token exchange and mints
// a first-party session
func (c *Client) ExchangeOAuthCode(ctx context.Context, provider OAuthProvider, code, codeVerifier, redirectURI string) (*AuthResult, error) {
	if !provider.valid() {
		return nil, configErrorf("unsupported oauth provider %q", provider)
	}
	if code == "" {
		return nil, validationErrorf("authorization code is required")
	}
	if codeVerifier == "" {
		return nil, validationErrorf("code verifier is required")
	}

	body := oauthExchangeRequest{
		Code:         code,
		CodeVerifier: codeVerifier,
		RedirectURI:  redirectURI,
	}

	var result AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/oauth/"+string(provider), body, &result, ""); err != nil {
		return nil, err
	}
	return &result, nil
}

// GoogleIDToken trades a native Google Sign-In ID token for a session.
// Used by the platform-native flow that never leaves the device.
func (c *Client) GoogleIDToken(ctx context.Context, idToken string) (*AuthResult, error) {
	if idToken == "" {
		return nil, validationErrorf("id token is required")
	}

	var result AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/oauth/google/token", googleIDTokenRequest{IDToken: idToken}, &result, ""); err != nil {
		return nil, err
	}
	return &result, nil
}
