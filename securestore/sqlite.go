package securestore

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// SQLite is a Store backed by a local SQLite database. Each value is
// sealed individually; key material resolution matches the File store.
type SQLite struct {
	sqlDB  *sql.DB
	sealer *sealer
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS secure_kv (
    key        TEXT PRIMARY KEY,
    value      BLOB NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS secure_kv_meta (
    name  TEXT PRIMARY KEY,
    value BLOB NOT NULL
);`

// NewSQLite opens a SQLite secure store and ensures its schema
func NewSQLite(path string, opts ...Option) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("path cannot be empty")
	}

	cfg := &keyConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite store")
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "failed to ping sqlite store")
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "failed to ensure schema")
	}

	s := &SQLite{sqlDB: sqlDB}
	key, err := s.resolveKey(cleanPath, cfg)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	s.sealer, err = newSealer(key)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// resolveKey mirrors the File store: explicit key, passphrase with a
// persisted salt, or a sidecar key file as the fallback
func (s *SQLite) resolveKey(path string, cfg *keyConfig) ([]byte, error) {
	if cfg.key != nil {
		return cfg.key, nil
	}

	if cfg.passphrase != "" {
		salt, err := s.loadOrCreateSalt()
		if err != nil {
			return nil, err
		}
		return deriveKey(cfg.passphrase, salt)
	}

	keyPath := path + ".key"
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

func (s *SQLite) loadOrCreateSalt() ([]byte, error) {
	row := s.sqlDB.QueryRow(`SELECT value FROM secure_kv_meta WHERE name = 'salt'`)
	var salt []byte
	err := row.Scan(&salt)
	switch {
	case err == nil:
		if len(salt) != saltSize {
			return nil, ErrCorrupted
		}
		return salt, nil
	case errors.Is(err, sql.ErrNoRows):
		salt, err := newSalt()
		if err != nil {
			return nil, err
		}
		if _, err := s.sqlDB.Exec(`INSERT INTO secure_kv_meta (name, value) VALUES ('salt', ?)`, salt); err != nil {
			return nil, errors.Wrap(err, "failed to store salt")
		}
		return salt, nil
	default:
		return nil, errors.Wrap(err, "failed to load salt")
	}
}

// GetItem retrieves and opens a value by key
func (s *SQLite) GetItem(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `SELECT value FROM secure_kv WHERE key = ?`, key)
	var box []byte
	if err := row.Scan(&box); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to get item")
	}
	return s.sealer.open(box)
}

// SetItem seals and upserts a value
func (s *SQLite) SetItem(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	box, err := s.sealer.seal(value)
	if err != nil {
		return err
	}
	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO secure_kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key,
		box,
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to set item")
	}
	return nil
}

// RemoveItem deletes a value; removing a missing key is not an error
func (s *SQLite) RemoveItem(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM secure_kv WHERE key = ?`, key); err != nil {
		return errors.Wrap(err, "failed to remove item")
	}
	return nil
}

// Close closes the database handle
func (s *SQLite) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

var _ Store = (*SQLite)(nil)
