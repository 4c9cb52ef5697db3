// Package secretbox encrypts shared secrets before they are written to the database.
package secretbox

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/tech-arch1tect/fuelqr/faults"
	"golang.org/x/crypto/chacha20poly1305"
)

const envelopePrefix = "v1:"

var (
	ErrMissingKey    = errors.New("encryption key is not configured")
	ErrInvalidKey    = errors.New("encryption key must be 32 bytes, base64 encoded")
	ErrDecryptFailed = errors.New("failed to decrypt secret")
)

type Service struct {
	aead cipher.AEAD
}

func NewService(encodedKey string) (*Service, error) {
	encodedKey = strings.TrimSpace(encodedKey)
	if encodedKey == "" {
		return nil, faults.Configuration("encryption", ErrMissingKey)
	}

	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil || len(key) != chacha20poly1305.KeySize {
		return nil, faults.Configuration("encryption", ErrInvalidKey)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, faults.Configuration("encryption", err)
	}

	return &Service{aead: aead}, nil
}

// GenerateKey returns a random key in the encoding NewService expects.
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

func (s *Service) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return envelopePrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (s *Service) Decrypt(envelope string) (string, error) {
	if !strings.HasPrefix(envelope, envelopePrefix) {
		return "", ErrDecryptFailed
	}

	sealed, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(envelope, envelopePrefix))
	if err != nil || len(sealed) < s.aead.NonceSize()+s.aead.Overhead() {
		return "", ErrDecryptFailed
	}

	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptFailed
	}

	return string(plaintext), nil
}
