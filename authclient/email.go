package authclient

import (
	"context"
	"net/http"
	"strings"
)

type sendCodeRequest struct {
	Email string `json:"email"`
}

type verifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// SendCode asks the backend to email a one-time login code
func (c *Client) SendCode(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return validationErrorf("email is required")
	}
	return c.do(ctx, http.MethodPost, "/auth/send-code", sendCodeRequest{Email: email}, nil, "")
}

// VerifyCode exchanges an emailed code for a session
func (c *Client) VerifyCode(ctx context.Context, email, code string) (*AuthResult, error) {
	email = strings.TrimSpace(email)
	code = strings.TrimSpace(code)
	if email == "" {
		return nil, validationErrorf("email is required")
	}
	if code == "" {
		return nil, validationErrorf("code is required")
	}

	var result AuthResult
	if err := c.do(ctx, http.MethodPost, "/auth/verify-code", verifyCodeRequest{Email: email, Code: code}, &result, ""); err != nil {
		return nil, err
	}
	return &result, nil
}
