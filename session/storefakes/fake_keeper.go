package storefakes

import (
	"context"
	"sync"

	"github.com/Jai-Dhiman/capture-sub001/securestore"
	"github.com/Jai-Dhiman/capture-sub001/session"
)

// FakeKeeper is an in-memory implementation of the session Keeper
// interface with optional error injection
type FakeKeeper struct {
	mu     sync.Mutex
	record *securestore.Record

	SaveErr  error
	LoadErr  error
	ClearErr error

	saveCalls  int
	loadCalls  int
	clearCalls int
}

// NewFakeKeeper creates an empty fake keeper
func NewFakeKeeper() *FakeKeeper {
	return &FakeKeeper{}
}

func (f *FakeKeeper) Save(_ context.Context, record securestore.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.saveCalls++
	if f.SaveErr != nil {
		return f.SaveErr
	}
	stored := record
	f.record = &stored
	return nil
}

func (f *FakeKeeper) Load(_ context.Context) (*securestore.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.loadCalls++
	if f.LoadErr != nil {
		return nil, f.LoadErr
	}
	if f.record == nil {
		return nil, nil
	}
	out := *f.record
	return &out, nil
}

func (f *FakeKeeper) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.clearCalls++
	if f.ClearErr != nil {
		return f.ClearErr
	}
	f.record = nil
	return nil
}

// SetRecord seeds the stored record directly
func (f *FakeKeeper) SetRecord(record *securestore.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if record == nil {
		f.record = nil
		return
	}
	stored := *record
	f.record = &stored
}

// Record returns a copy of the stored record, nil when empty
func (f *FakeKeeper) Record() *securestore.Record {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.record == nil {
		return nil
	}
	out := *f.record
	return &out
}

// SaveCallCount returns how many times Save was invoked
func (f *FakeKeeper) SaveCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveCalls
}

// ClearCallCount returns how many times Clear was invoked
func (f *FakeKeeper) ClearCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clearCalls
}

var _ session.Keeper = (*FakeKeeper)(nil)
