package storefakes

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/Jai-Dhiman/capture-sub001/authclient"
	"github.com/Jai-Dhiman/capture-sub001/session"
)

// FakeAuthAPI is a scriptable implementation of the session API
// interface. Set the *Func fields to control responses; unset Refresh
// and Me fail loudly so tests never pass on accident.
type FakeAuthAPI struct {
	mu sync.Mutex

	RefreshFunc func(ctx context.Context, refreshToken string) (*authclient.AuthResult, error)
	LogoutFunc  func(ctx context.Context, refreshToken string) error
	MeFunc      func(ctx context.Context, accessToken string) (*authclient.MeResult, error)

	refreshArgs []string
	logoutArgs  []string
	meArgs      []string
}

// NewFakeAuthAPI creates an unscripted fake
func NewFakeAuthAPI() *FakeAuthAPI {
	return &FakeAuthAPI{}
}

func (f *FakeAuthAPI) Refresh(ctx context.Context, refreshToken string) (*authclient.AuthResult, error) {
	f.mu.Lock()
	f.refreshArgs = append(f.refreshArgs, refreshToken)
	fn := f.RefreshFunc
	f.mu.Unlock()

	if fn == nil {
		return nil, errors.New("FakeAuthAPI: RefreshFunc not set")
	}
	return fn(ctx, refreshToken)
}

func (f *FakeAuthAPI) Logout(ctx context.Context, refreshToken string) error {
	f.mu.Lock()
	f.logoutArgs = append(f.logoutArgs, refreshToken)
	fn := f.LogoutFunc
	f.mu.Unlock()

	if fn == nil {
		return nil
	}
	return fn(ctx, refreshToken)
}

func (f *FakeAuthAPI) Me(ctx context.Context, accessToken string) (*authclient.MeResult, error) {
	f.mu.Lock()
	f.meArgs = append(f.meArgs, accessToken)
	fn := f.MeFunc
	f.mu.Unlock()

	if fn == nil {
		return nil, errors.New("FakeAuthAPI: MeFunc not set")
	}
	return fn(ctx, accessToken)
}

// RefreshCallCount returns how many times Refresh was invoked
func (f *FakeAuthAPI) RefreshCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.refreshArgs)
}

// RefreshArgs returns the refresh tokens passed to Refresh, in order
func (f *FakeAuthAPI) RefreshArgs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.refreshArgs...)
}

// LogoutCallCount returns how many times Logout was invoked
func (f *FakeAuthAPI) LogoutCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logoutArgs)
}

// LogoutArgs returns the refresh tokens passed to Logout, in order
func (f *FakeAuthAPI) LogoutArgs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.logoutArgs...)
}

// MeCallCount returns how many times Me was invoked
func (f *FakeAuthAPI) MeCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.meArgs)
}

var _ session.API = (*FakeAuthAPI)(nil)
