package authclient

import (
	"context"
	"net/http"
)

type totpCodeRequest struct {
	Code string `json:"code"`
}

type backupCodesResponse struct {
	Codes []string `json:"codes"`
}

// TOTPSetupBegin provisions a new TOTP secret for the signed-in account.
// The secret replaces any previous unconfirmed enrollment.
func (c *Client) TOTPSetupBegin(ctx context.Context, accessToken string) (*TOTPEnrollment, error) {
	if accessToken == "" {
		return nil, validationErrorf("access token is required")
	}

	var result TOTPEnrollment
	if err := c.do(ctx, http.MethodPost, "/auth/totp/setup/begin", struct{}{}, &result, accessToken); err != nil {
		return nil, err
	}
	return &result, nil
}

// TOTPSetupComplete confirms enrollment with a code from the
// authenticator app
func (c *Client) TOTPSetupComplete(ctx context.Context, accessToken, code string) (*AuthResult, error) {
	if accessToken == "" {
		return nil, validationErrorf("access token is required")
	}
	if err := checkTOTPCode(code); err != nil {
		return nil, err
	}

	var result AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/totp/setup/complete", totpCodeRequest{Code: code}, &result, accessToken); err != nil {
		return nil, err
	}
	return &result, nil
}

// TOTPVerify presents a login-time second factor code
func (c *Client) TOTPVerify(ctx context.Context, accessToken, code string) (*AuthResult, error) {
	if accessToken == "" {
		return nil, validationErrorf("access token is required")
	}
	if err := checkTOTPCode(code); err != nil {
		return nil, err
	}

	var result AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/totp/verify", totpCodeRequest{Code: code}, &result, accessToken); err != nil {
		return nil, err
	}
	return &result, nil
}

// TOTPBackupCodes generates a fresh set of single-use backup codes,
// invalidating any previous set
func (c *Client) TOTPBackupCodes(ctx context.Context, accessToken string) ([]string, error) {
	if accessToken == "" {
		return nil, validationErrorf("access token is required")
	}

	var result backupCodesResponse
	if err := c.do(ctx, http.MethodPost, "/auth/totp/backup-codes", struct{}{}, &result, accessToken); err != nil {
		return nil, err
	}
	return result.Codes, nil
}

// TOTPDisable removes the TOTP factor from the account
func (c *Client) TOTPDisable(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return validationErrorf("access token is required")
	}
	return c.do(ctx, http.MethodDelete, "/auth/totp/disable", nil, nil, accessToken)
}

// checkTOTPCode rejects obviously malformed codes before any network
// round trip. Authenticator codes are six digits.
func checkTOTPCode(code string) error {
	if len(code) != 6 {
		return validationErrorf("code must be 6 digits")
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return validationErrorf("code must be 6 digits")
		}
	}
	return nil
}
