package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	sealedPrefix = "v1:"
	plainPrefix  = "plain:"
)

// sealSalt is fixed so the same session key always yields the same AES key.
var sealSalt = []byte("relaybot/session-store/v1")

var (
	// ErrSealed is returned when a sealed value cannot be opened with the
	// configured key.
	ErrSealed = errors.New("session is encrypted with a different key")

	// ErrNoSessionKey is returned by NewSealer for an empty secret.
	ErrNoSessionKey = errors.New("security.session_key is required to store sessions")
)

// Sealer encrypts session strings at rest with AES-256-GCM.
type Sealer struct {
	gcm cipher.AEAD
}

// NewSealer derives an AES key from secret with argon2id.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, ErrNoSessionKey
	}
	key := argon2.IDKey([]byte(secret), sealSalt, 1, 64*1024, 4, 32)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{gcm: gcm}, nil
}

// Seal encrypts plaintext for storage.
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := s.gcm.Seal(nonce, nonce, plaintext, nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open decodes a stored value. Rows written in clear by older releases
// still open; SaveSession reseals them on the next write.
func (s *Sealer) Open(stored string) ([]byte, error) {
	switch {
	case strings.HasPrefix(stored, plainPrefix):
		return base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, plainPrefix))
	case strings.HasPrefix(stored, sealedPrefix):
		raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
		if err != nil {
			return nil, fmt.Errorf("decoding sealed value: %w", err)
		}
		n := s.gcm.NonceSize()
		if len(raw) < n {
			return nil, fmt.Errorf("sealed value too short")
		}
		plaintext, err := s.gcm.Open(nil, raw[:n], raw[n:], nil)
		if err != nil {
			return nil, ErrSealed
		}
		return plaintext, nil
	default:
		return nil, fmt.Errorf("unknown session encoding")
	}
}
