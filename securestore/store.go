package securestore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when no value exists for the requested key
	ErrNotFound = errors.New("secure store: key not found")

	// ErrCorrupted is returned when stored ciphertext cannot be opened,
	// either because the payload was tampered with or the key material
	// does not match. Callers treat the stored state as absent.
	ErrCorrupted = errors.New("secure store: payload corrupted or key mismatch")
)

// Store is an encrypted key-value container for auth material. Values are
// opaque bytes; encryption at rest is the implementation's concern, not
// the caller's.
type Store interface {
	GetItem(ctx context.Context, key string) ([]byte, error)
	SetItem(ctx context.Context, key string, value []byte) error
	RemoveItem(ctx context.Context, key string) error
	Close() error
}
