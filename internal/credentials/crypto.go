package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/officeflow/officeflow/internal/domain"
)

// cipherBox seals and opens token material with AES-256-GCM. The key is
// derived from the configured passphrase with HKDF-SHA256 so the raw
// passphrase never acts as key material directly.
type cipherBox struct {
	aead cipher.AEAD
}

const keyDerivationInfo = "officeflow/credentials/v1"

func newCipherBox(passphrase string) (*cipherBox, error) {
	if len(passphrase) < domain.MinEncryptionKeyLength {
		return nil, domain.NewValidationError("encryption_key",
			"encryption key must be at least 32 characters")
	}

	key := make([]byte, 32)
	reader := hkdf.New(sha256.New, []byte(passphrase), nil, []byte(keyDerivationInfo))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, domain.Error{
			Type:    domain.ErrorTypeInternal,
			Message: "failed to derive encryption key",
			Details: map[string]interface{}{"error": err.Error()},
		}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return &cipherBox{aead: aead}, nil
}

func (c *cipherBox) seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *cipherBox) open(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", domain.NewExecutionError(domain.ErrClassCredentialsNotFound,
			"credential ciphertext is not valid base64")
	}
	if len(raw) < c.aead.NonceSize() {
		return "", domain.NewExecutionError(domain.ErrClassCredentialsNotFound,
			"credential ciphertext is truncated")
	}

	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", domain.NewExecutionError(domain.ErrClassCredentialsNotFound,
			"credential could not be decrypted")
	}
	return string(plaintext), nil
}
