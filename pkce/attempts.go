package pkce

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Attempts is a thread-safe in-memory store of pending sign-in
// attempts, at most one per provider. Attempts live only in memory;
// an app restart mid-flow means starting over.
type Attempts struct {
	mu       sync.Mutex
	attempts map[string]*Params
	ttl      time.Duration
	nowFunc  func() time.Time
}

type AttemptsOption func(*Attempts)

// WithTTL overrides how long an attempt stays redeemable
func WithTTL(ttl time.Duration) AttemptsOption {
	return func(a *Attempts) {
		a.ttl = ttl
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(now func() time.Time) AttemptsOption {
	return func(a *Attempts) {
		a.nowFunc = now
	}
}

// NewAttempts creates an empty attempt store
func NewAttempts(opts ...AttemptsOption) *Attempts {
	a := &Attempts{
		attempts: make(map[string]*Params),
		ttl:      DefaultTTL,
		nowFunc:  time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Begin generates fresh PKCE material for the provider, replacing any
// prior pending attempt for it
func (a *Attempts) Begin(provider string) (*Params, error) {
	if provider == "" {
		return nil, errors.New("provider cannot be empty")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	params, err := generate(provider, a.nowFunc())
	if err != nil {
		return nil, err
	}
	a.attempts[provider] = params

	out := *params
	return &out, nil
}

// Get returns the pending attempt for a provider. Expired attempts are
// dropped and reported as missing.
func (a *Attempts) Get(provider string) (*Params, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	params, exists := a.attempts[provider]
	if !exists {
		return nil, false
	}
	if a.expired(params) {
		delete(a.attempts, provider)
		return nil, false
	}

	out := *params
	return &out, true
}

// Take removes and returns the attempt whose State matches. Callbacks
// are redeemable exactly once.
func (a *Attempts) Take(state string) (*Params, bool) {
	if state == "" {
		return nil, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for provider, params := range a.attempts {
		if params.State != state {
			continue
		}
		delete(a.attempts, provider)
		if a.expired(params) {
			return nil, false
		}
		out := *params
		return &out, true
	}
	return nil, false
}

// Clear removes the pending attempt for a provider
func (a *Attempts) Clear(provider string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.attempts, provider)
}

// ClearAll removes every pending attempt
func (a *Attempts) ClearAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.attempts = make(map[string]*Params)
}

func (a *Attempts) expired(params *Params) bool {
	return a.nowFunc().Sub(params.CreatedAt) > a.ttl
}
