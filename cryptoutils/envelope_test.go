package cryptoutils

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/ruteri/credential-registry-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKeyAndNonce(t *testing.T) ([]byte, []byte) {
	t.Helper()
	key, err := NewCipherKey()
	require.NoError(t, err)
	nonce, err := NewNonce()
	require.NoError(t, err)
	require.Len(t, key, KeySize)
	require.Len(t, nonce, NonceSize)
	return key, nonce
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key, nonce := newKeyAndNonce(t)

	large := make([]byte, 1<<16)
	_, err := rand.Read(large)
	require.NoError(t, err)

	for _, plaintext := range [][]byte{{}, []byte("TESTFILE0\n"), large} {
		ciphertext, tag, err := Encrypt(plaintext, key, nonce)
		require.NoError(t, err)
		assert.Len(t, ciphertext, len(plaintext))
		assert.Len(t, tag, TagSize)

		decrypted, err := Decrypt(ciphertext, tag, key, nonce)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(plaintext, decrypted))
	}
}

func TestDecrypt_TamperDetection(t *testing.T) {
	key, nonce := newKeyAndNonce(t)
	plaintext := []byte("credential document body")
	ciphertext, tag, err := Encrypt(plaintext, key, nonce)
	require.NoError(t, err)

	// Flip every bit of the ciphertext and tag in turn.
	for i := 0; i < len(ciphertext)*8; i++ {
		tampered := bytes.Clone(ciphertext)
		tampered[i/8] ^= 1 << (i % 8)
		out, err := Decrypt(tampered, tag, key, nonce)
		require.ErrorIs(t, err, interfaces.ErrAuthenticationFailed)
		require.Nil(t, out)
	}
	for i := 0; i < TagSize*8; i++ {
		tampered := bytes.Clone(tag)
		tampered[i/8] ^= 1 << (i % 8)
		out, err := Decrypt(ciphertext, tampered, key, nonce)
		require.ErrorIs(t, err, interfaces.ErrAuthenticationFailed)
		require.Nil(t, out)
	}

	otherKey, otherNonce := newKeyAndNonce(t)
	_, err = Decrypt(ciphertext, tag, otherKey, nonce)
	assert.ErrorIs(t, err, interfaces.ErrAuthenticationFailed)
	_, err = Decrypt(ciphertext, tag, key, otherNonce)
	assert.ErrorIs(t, err, interfaces.ErrAuthenticationFailed)
}

func TestEncrypt_InvalidParameters(t *testing.T) {
	key, nonce := newKeyAndNonce(t)

	_, _, err := Encrypt([]byte("x"), key[:16], nonce)
	assert.ErrorIs(t, err, interfaces.ErrInvalidParameters)

	_, _, err = Encrypt([]byte("x"), key, nonce[:8])
	assert.ErrorIs(t, err, interfaces.ErrInvalidParameters)

	_, err = Decrypt([]byte("x"), make([]byte, 8), key, nonce)
	assert.ErrorIs(t, err, interfaces.ErrInvalidParameters)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy source closed") }

func TestNewCipherKey_RandomFailure(t *testing.T) {
	orig := randReader
	randReader = failingReader{}
	defer func() { randReader = orig }()

	_, err := NewCipherKey()
	assert.ErrorIs(t, err, interfaces.ErrCryptographic)
	_, err = NewNonce()
	assert.ErrorIs(t, err, interfaces.ErrCryptographic)
}

func TestNewCipherKey_Fresh(t *testing.T) {
	a, b := newKeyAndNonce(t)
	c, d := newKeyAndNonce(t)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, b, d)
}

func TestWipe(t *testing.T) {
	key := []byte{1, 2, 3}
	Wipe(key)
	assert.Equal(t, []byte{0, 0, 0}, key)
}
