package securestore

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// fileMagic identifies the on-disk format. Header layout:
// magic(4) | mode(1) | salt(16) | sealed payload.
var fileMagic = []byte("CAS1")

const (
	fileModeKeyFile    = 0x00
	fileModePassphrase = 0x01

	fileHeaderSize = 4 + 1 + saltSize
)

type keyConfig struct {
	passphrase string
	key        []byte
}

type Option func(*keyConfig)

// WithPassphrase derives the encryption key from a passphrase via scrypt.
// The salt lives alongside the sealed data.
func WithPassphrase(passphrase string) Option {
	return func(c *keyConfig) {
		c.passphrase = passphrase
	}
}

// WithKey uses the given 32-byte key directly, bypassing derivation
func WithKey(key []byte) Option {
	return func(c *keyConfig) {
		c.key = key
	}
}

// File is a Store backed by a single encrypted file. The whole key-value
// map is sealed as one payload; writes replace the file atomically.
// Without WithPassphrase or WithKey a random key is kept in a sidecar
// file next to the store.
type File struct {
	mu     sync.Mutex
	path   string
	mode   byte
	salt   []byte
	sealer *sealer
	items  map[string][]byte
}

// NewFile opens or creates an encrypted file store at path
func NewFile(path string, opts ...Option) (*File, error) {
	if path == "" {
		return nil, errors.New("path cannot be empty")
	}

	cfg := &keyConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	f := &File{
		path:  filepath.Clean(path),
		items: make(map[string][]byte),
	}

	raw, err := os.ReadFile(f.path)
	switch {
	case err == nil:
		if err := f.loadExisting(raw, cfg); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
		if err := f.initFresh(cfg); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Wrap(err, "failed to read store file")
	}

	return f, nil
}

func (f *File) loadExisting(raw []byte, cfg *keyConfig) error {
	if len(raw) < fileHeaderSize || !bytes.Equal(raw[:4], fileMagic) {
		return ErrCorrupted
	}
	f.mode = raw[4]
	f.salt = append([]byte(nil), raw[5:5+saltSize]...)

	key, err := f.resolveKey(cfg)
	if err != nil {
		return err
	}
	f.sealer, err = newSealer(key)
	if err != nil {
		return err
	}

	plain, err := f.sealer.open(raw[fileHeaderSize:])
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plain, &f.items); err != nil {
		return ErrCorrupted
	}
	return nil
}

func (f *File) initFresh(cfg *keyConfig) error {
	switch {
	case cfg.passphrase != "":
		f.mode = fileModePassphrase
		salt, err := newSalt()
		if err != nil {
			return err
		}
		f.salt = salt
	default:
		f.mode = fileModeKeyFile
		f.salt = make([]byte, saltSize)
	}

	key, err := f.resolveKey(cfg)
	if err != nil {
		return err
	}
	f.sealer, err = newSealer(key)
	return err
}

func (f *File) resolveKey(cfg *keyConfig) ([]byte, error) {
	if cfg.key != nil {
		return cfg.key, nil
	}
	if f.mode == fileModePassphrase {
		if cfg.passphrase == "" {
			return nil, errors.New("store requires a passphrase")
		}
		return deriveKey(cfg.passphrase, f.salt)
	}
	return f.sidecarKey()
}

// sidecarKey loads the hex-encoded key file next to the store, creating
// it with a fresh random key on first use
func (f *File) sidecarKey() ([]byte, error) {
	keyPath := f.path + ".key"

	raw, err := os.ReadFile(keyPath)
	if err == nil {
		key, decErr := hex.DecodeString(string(bytes.TrimSpace(raw)))
		if decErr != nil || len(key) != keySize {
			return nil, ErrCorrupted
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to read key file")
	}

	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Wrap(err, "failed to generate key")
	}
	if err := os.WriteFile(keyPath, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, errors.Wrap(err, "failed to write key file")
	}
	return key, nil
}

// GetItem retrieves a value by key
func (f *File) GetItem(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	value, exists := f.items[key]
	if !exists {
		return nil, ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// SetItem stores a value and persists the store
func (f *File) SetItem(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	f.items[key] = stored
	return f.persist()
}

// RemoveItem deletes a value and persists the store
func (f *File) RemoveItem(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.items, key)
	return f.persist()
}

// Close is a no-op; every write is flushed eagerly
func (f *File) Close() error {
	return nil
}

// persist writes header plus sealed payload via a temp file and rename,
// so a crash mid-write never leaves a half-written store. Caller holds mu.
func (f *File) persist() error {
	plain, err := json.Marshal(f.items)
	if err != nil {
		return errors.Wrap(err, "failed to encode store")
	}
	box, err := f.sealer.seal(plain)
	if err != nil {
		return err
	}

	buf := make([]byte, 0, fileHeaderSize+len(box))
	buf = append(buf, fileMagic...)
	buf = append(buf, f.mode)
	buf = append(buf, f.salt...)
	buf = append(buf, box...)

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o600); err != nil {
		return errors.Wrap(err, "failed to write store file")
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return errors.Wrap(err, "failed to replace store file")
	}
	return nil
}

var _ Store = (*File)(nil)
