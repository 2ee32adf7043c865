package authclient

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// TokenClaims is the subset of access token claims the client inspects.
// The client never verifies signatures; only the backend holds keys.
// These values are display and scheduling hints, not trust decisions.
type TokenClaims struct {
	Subject   string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// InspectToken parses an access token without verification and extracts
// the claims the client cares about
func InspectToken(rawToken string) (*TokenClaims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, errors.New("token cannot be empty")
	}

	unverifiedToken, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse token")
	}

	claims, ok := unverifiedToken.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("error extracting claims")
	}

	out := &TokenClaims{}
	out.Subject, _ = claims["sub"].(string)
	out.Email, _ = claims["email"].(string)
	if iat, ok := claims["iat"].(float64); ok {
		out.IssuedAt = time.Unix(int64(iat), 0)
	}
	if exp, ok := claims["exp"].(float64); ok {
		out.ExpiresAt = time.Unix(int64(exp), 0)
	}
	return out, nil
}

// TokenExpiry returns the exp claim of an unverified access token.
// Used as a fallback when a session arrives without expires_at.
func TokenExpiry(rawToken string) (time.Time, error) {
	claims, err := InspectToken(rawToken)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt.IsZero() {
		return time.Time{}, errors.New("token has no exp claim")
	}
	return claims.ExpiresAt, nil
}
