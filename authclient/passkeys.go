package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
)

// PasskeyBeginResponse carries WebAuthn ceremony options from the
// backend. Options is the raw publicKey options document; the ceremony
// layer decodes it into protocol types.
type PasskeyBeginResponse struct {
	Options     json.RawMessage `json:"options"`
	ChallengeID string          `json:"challengeId"`
}

type passkeyCompleteRequest struct {
	ChallengeID string          `json:"challengeId"`
	Credential  json.RawMessage `json:"credential"`
}

type passkeyLoginBeginRequest struct {
	Email string `json:"email,omitempty"`
}

type passkeyListResponse struct {
	Credentials []PasskeyCredential `json:"credentials"`
}

// PasskeyRegisterBegin starts a credential registration ceremony for
// the signed-in account
func (c *Client) PasskeyRegisterBegin(ctx context.Context, accessToken string) (*PasskeyBeginResponse, error) {
	if accessToken == "" {
		return nil, validationErrorf("access token is required")
	}

	var result PasskeyBeginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/passkey/register/begin", struct{}{}, &result, accessToken); err != nil {
		return nil, err
	}
	return &result, nil
}

// PasskeyRegisterComplete finishes registration with the authenticator's
// attestation response
func (c *Client) PasskeyRegisterComplete(ctx context.Context, accessToken, challengeID string, credential json.RawMessage) (*AuthResult, error) {
	if accessToken == "" {
		return nil, validationErrorf("access token is required")
	}
	if challengeID == "" {
		return nil, validationErrorf("challenge id is required")
	}

	body := passkeyCompleteRequest{ChallengeID: challengeID, Credential: credential}
	var result AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/passkey/register/complete", body, &result, accessToken); err != nil {
		return nil, err
	}
	return &result, nil
}

// PasskeyLoginBegin starts an authentication ceremony. Email is
// optional; without it the backend issues a discoverable-credential
// challenge.
func (c *Client) PasskeyLoginBegin(ctx context.Context, email string) (*PasskeyBeginResponse, error) {
	var result PasskeyBeginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/passkey/authenticate/begin", passkeyLoginBeginRequest{Email: email}, &result, ""); err != nil {
		return nil, err
	}
	return &result, nil
}

// PasskeyLoginComplete finishes authentication with the authenticator's
// assertion response and returns a session
func (c *Client) PasskeyLoginComplete(ctx context.Context, challengeID string, credential json.RawMessage) (*AuthResult, error) {
	if challengeID == "" {
		return nil, validationErrorf("challenge id is required")
	}

	body := passkeyCompleteRequest{ChallengeID: challengeID, Credential: credential}
	var result AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/passkey/authenticate/complete", body, &result, ""); err != nil {
		return nil, err
	}
	return &result, nil
}

// PasskeyList returns the account's registered passkeys
func (c *Client) PasskeyList(ctx context.Context, accessToken string) ([]PasskeyCredential, error) {
	if accessToken == "" {
		return nil, validationErrorf("access token is required")
	}

	var result passkeyListResponse
	if err := c.do(ctx, http.MethodGet, "/auth/passkey/list", nil, &result, accessToken); err != nil {
		return nil, err
	}
	return result.Credentials, nil
}

// PasskeyDelete removes one registered passkey by its record ID
func (c *Client) PasskeyDelete(ctx context.Context, accessToken, credentialID string) error {
	if accessToken == "" {
		return validationErrorf("access token is required")
	}
	if credentialID == "" {
		return validationErrorf("credential id is required")
	}
	return c.do(ctx, http.MethodDelete, "/auth/passkey/"+url.PathEscape(credentialID), nil, nil, accessToken)
}
