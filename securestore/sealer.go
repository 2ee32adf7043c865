package securestore

import (
	"crypto/rand"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	keySize   = 32
	nonceSize = 24
	saltSize  = 16

	// scrypt cost parameters, interactive profile
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// sealer encrypts and decrypts payloads with a fixed symmetric key.
// Each seal uses a fresh random nonce prepended to the box.
type sealer struct {
	key [keySize]byte
}

func newSealer(key []byte) (*sealer, error) {
	if len(key) != keySize {
		return nil, errors.Errorf("key must be %d bytes, got %d", keySize, len(key))
	}
	s := &sealer{}
	copy(s.key[:], key)
	return s, nil
}

func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase cannot be empty")
	}
	if len(salt) != saltSize {
		return nil, errors.Errorf("salt must be %d bytes, got %d", saltSize, len(salt))
	}
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive key")
	}
	return key, nil
}

func newSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, "failed to generate salt")
	}
	return salt, nil
}

func (s *sealer) seal(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, errors.Wrap(err, "failed to generate nonce")
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &s.key), nil
}

func (s *sealer) open(box []byte) ([]byte, error) {
	if len(box) < nonceSize+secretbox.Overhead {
		return nil, ErrCorrupted
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrCorrupted
	}
	return plain, nil
}
