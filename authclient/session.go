package authclient

import (
	"context"
	"net/http"
)

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Refresh exchanges a refresh token for a new session. The backend
// rotates the refresh token; the old one is dead after this call
// succeeds.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, validationErrorf("refresh token is required")
	}

	var result AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", refreshRequest{RefreshToken: refreshToken}, &result, ""); err != nil {
		return nil, err
	}
	return &result, nil
}

// Logout revokes the refresh token server-side. The token is optional;
// the backend treats a missing token as a no-op.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", logoutRequest{RefreshToken: refreshToken}, nil, "")
}

// Me validates an access token and returns the account plus its
// onboarding flags
func (c *Client) Me(ctx context.Context, accessToken string) (*MeResult, error) {
	if accessToken == "" {
		return nil, validationErrorf("access token is required")
	}

	var result MeResult
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &result, accessToken); err != nil {
		return nil, err
	}
	return &result, nil
}
