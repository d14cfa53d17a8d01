package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/ruteri/credential-registry-backend/interfaces"
)

// Envelope cipher constants. These are protocol constants and are not
// configurable per call.
const (
	KeySize   = 32 // AES-256
	NonceSize = 12 // 96-bit GCM nonce
	TagSize   = 16 // 128-bit GCM tag
)

// randReader is swapped in tests to simulate random source failure.
var randReader io.Reader = rand.Reader

// NewCipherKey generates a fresh 256-bit key.
func NewCipherKey() ([]byte, error) {
	return randomBytes(KeySize, "key")
}

// NewNonce generates a fresh 96-bit nonce. A nonce must never be reused with
// the same key, so one is generated per encryption.
func NewNonce() ([]byte, error) {
	return randomBytes(NonceSize, "nonce")
}

func randomBytes(n int, what string) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return nil, fmt.Errorf("%w: failed to generate %s: %v", interfaces.ErrCryptographic, what, err)
	}
	return b, nil
}

// Encrypt seals plaintext with AES-256-GCM and returns the ciphertext and the
// detached tag. len(ciphertext) == len(plaintext).
func Encrypt(plaintext, key, nonce []byte) (ciphertext, tag []byte, err error) {
	aead, err := newGCM(key, nonce)
	if err != nil {
		return nil, nil, err
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - TagSize
	return sealed[:split:split], sealed[split:], nil
}

// Decrypt verifies the tag and returns the plaintext. On any verification
// failure it returns nil and ErrAuthenticationFailed.
func Decrypt(ciphertext, tag, key, nonce []byte) ([]byte, error) {
	if len(tag) != TagSize {
		return nil, fmt.Errorf("%w: tag must be %d bytes, got %d", interfaces.ErrInvalidParameters, TagSize, len(tag))
	}
	aead, err := newGCM(key, nonce)
	if err != nil {
		return nil, err
	}

	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, interfaces.ErrAuthenticationFailed
	}
	return plaintext, nil
}

func newGCM(key, nonce []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", interfaces.ErrInvalidParameters, KeySize, len(key))
	}
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", interfaces.ErrInvalidParameters, NonceSize, len(nonce))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create cipher: %v", interfaces.ErrCryptographic, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create GCM: %v", interfaces.ErrCryptographic, err)
	}
	return aead, nil
}

// Wipe zeroes key material in place.
func Wipe(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
