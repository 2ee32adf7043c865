package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// DefaultTTL bounds how long a sign-in attempt stays redeemable. OAuth
// redirects complete in seconds; anything older is abandoned.
const DefaultTTL = 10 * time.Minute

// ErrChallengeMismatch means the independently recomputed challenge did
// not equal the generated one. This is a programming or runtime fault,
// never user error, and the attempt must not be used.
var ErrChallengeMismatch = errors.New("pkce: challenge self-check failed")

// Params holds the PKCE material for one sign-in attempt.
// The verifier never leaves the device except inside the final code
// exchange; only Challenge and State appear in the authorize URL.
type Params struct {
	Provider  string
	Verifier  string
	Challenge string
	State     string
	CreatedAt time.Time
}

// VerifyChallenge recomputes the S256 challenge from a verifier and
// compares it to the stored challenge
func VerifyChallenge(verifier, challenge string) error {
	hash := sha256.Sum256([]byte(verifier))
	if base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(hash[:]) != challenge {
		return ErrChallengeMismatch
	}
	return nil
}

func newState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "failed to generate state")
	}
	return hex.EncodeToString(buf), nil
}

func generate(provider string, now time.Time) (*Params, error) {
	verifier := oauth2.GenerateVerifier()
	challenge := oauth2.S256ChallengeFromVerifier(verifier)

	// The challenge goes to the provider while the verifier stays
	// local. A divergence here would produce an exchange that can
	// never succeed, so fail loudly now.
	if err := VerifyChallenge(verifier, challenge); err != nil {
		return nil, err
	}

	state, err := newState()
	if err != nil {
		return nil, err
	}

	return &Params{
		Provider:  provider,
		Verifier:  verifier,
		Challenge: challenge,
		State:     state,
		CreatedAt: now,
	}, nil
}
