// Package bridgefakes provides a scripted Authenticator for tests
package bridgefakes

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/Jai-Dhiman/capture-sub001/passkey"
)

// FakeAuthenticator is a scripted platform bridge. Zero value is a
// supported authenticator that returns empty credentials.
type FakeAuthenticator struct {
	mu sync.Mutex

	Unsupported bool
	CreateErr   error
	GetErr      error
	Credential  json.RawMessage

	CreateCalls []protocol.CredentialCreation
	GetCalls    []protocol.CredentialAssertion
}

// NewFakeAuthenticator returns a supported fake producing the given
// credential JSON
func NewFakeAuthenticator(credential json.RawMessage) *FakeAuthenticator {
	return &FakeAuthenticator{Credential: credential}
}

func (f *FakeAuthenticator) Create(ctx context.Context, options protocol.CredentialCreation) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateCalls = append(f.CreateCalls, options)
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	return f.Credential, nil
}

func (f *FakeAuthenticator) Get(ctx context.Context, options protocol.CredentialAssertion) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetCalls = append(f.GetCalls, options)
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	return f.Credential, nil
}

func (f *FakeAuthenticator) Supported() bool {
	return !f.Unsupported
}

// FakeCapability is a scripted biometric capability report
type FakeCapability struct {
	Hardware bool
	Enrol    bool
	Types    []passkey.BiometryType
}

func (f *FakeCapability) HasHardware() bool { return f.Hardware }

func (f *FakeCapability) Enrolled() bool { return f.Enrol }

func (f *FakeCapability) SupportedTypes() []passkey.BiometryType { return f.Types }
