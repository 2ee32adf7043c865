package securestore

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/Jai-Dhiman/capture-sub001/authclient"
)

// recordVersion is bumped when the envelope shape changes. Older or
// unknown versions are discarded, forcing a fresh sign-in.
const recordVersion = 1

// DefaultRecordKey is the store key holding the auth record
const DefaultRecordKey = "capture.auth.record"

// Record is the persisted auth state envelope. It is written by the
// session store on every state change that carries a session and read
// exactly once at cold start.
type Record struct {
	Version int                 `json:"version"`
	User    *authclient.User    `json:"user,omitempty"`
	Session *authclient.Session `json:"session,omitempty"`
	Stage   string              `json:"stage,omitempty"`
}

// Keeper is the single reader and writer of the auth record inside a
// Store. Anything it cannot decode is treated as absent state rather
// than an error; the worst outcome of a damaged record is a re-login.
type Keeper struct {
	store Store
	key   string
}

type KeeperOption func(*Keeper)

// WithRecordKey overrides the storage key for the auth record
func WithRecordKey(key string) KeeperOption {
	return func(k *Keeper) {
		k.key = key
	}
}

// NewKeeper creates a Keeper over the given store
func NewKeeper(store Store, opts ...KeeperOption) *Keeper {
	k := &Keeper{
		store: store,
		key:   DefaultRecordKey,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Save writes the record, stamping the current schema version
func (k *Keeper) Save(ctx context.Context, record Record) error {
	record.Version = recordVersion
	encoded, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "failed to encode auth record")
	}
	return k.store.SetItem(ctx, k.key, encoded)
}

// Load reads the stored record. A missing, corrupted, or
// unknown-version record loads as nil with no error.
func (k *Keeper) Load(ctx context.Context) (*Record, error) {
	raw, err := k.store.GetItem(ctx, k.key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if errors.Is(err, ErrCorrupted) {
			log.Warn().Msg("auth record unreadable, discarding")
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to load auth record")
	}

	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		log.Warn().Err(err).Msg("auth record malformed, discarding")
		return nil, nil
	}
	if record.Version != recordVersion {
		log.Warn().Int("version", record.Version).Msg("auth record version unknown, discarding")
		return nil, nil
	}
	return &record, nil
}

// Clear removes the stored record
func (k *Keeper) Clear(ctx context.Context) error {
	return k.store.RemoveItem(ctx, k.key)
}
