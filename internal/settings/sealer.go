package settings

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	exterrors "github.com/lodgekit/extensions/pkg/errors"
)

// Sealer encrypts and decrypts settings values with AES-GCM. The
// authenticated mode guarantees a tampered payload fails to open rather
// than silently yielding corrupted plaintext.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a Sealer from a raw AES key (16/24/32 bytes).
func NewSealer(key []byte) (*Sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, exterrors.NewEncryptionError("settings key is not a valid AES key", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, exterrors.NewEncryptionError("build GCM", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts one plaintext value under a fresh random nonce and returns
// the base64-encoded nonce||ciphertext bundle. The GCM tag rides inside the
// ciphertext.
func (s *Sealer) Seal(value string) (string, error) {
	if s == nil || s.aead == nil {
		return "", exterrors.NewEncryptionError("sealer is not configured", nil)
	}

	// GCM requires a unique nonce per encryption under the same key.
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", exterrors.NewEncryptionError("read nonce", err)
	}

	ciphertext := s.aead.Seal(nil, nonce, []byte(value), nil)
	payload := append(nonce, ciphertext...)
	return base64.RawStdEncoding.EncodeToString(payload), nil
}

// Open decrypts one previously sealed value. Any malformed or tampered
// payload fails hard.
func (s *Sealer) Open(sealed string) (string, error) {
	if s == nil || s.aead == nil {
		return "", exterrors.NewEncryptionError("sealer is not configured", nil)
	}

	payload, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", exterrors.NewEncryptionError("decode sealed value", err)
	}

	nonceSize := s.aead.NonceSize()
	if len(payload) < nonceSize {
		return "", exterrors.NewEncryptionError(
			fmt.Sprintf("sealed value is too short (%d bytes)", len(payload)), nil)
	}

	nonce := payload[:nonceSize]
	ciphertext := payload[nonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", exterrors.NewEncryptionError("open sealed value", err)
	}
	return string(plaintext), nil
}
