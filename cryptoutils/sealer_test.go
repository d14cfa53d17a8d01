package cryptoutils

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"testing"

	"github.com/ruteri/credential-registry-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKeyOnce sync.Once
	testPubPEM  []byte
	testPrivPEM []byte
)

func custodianKey(t *testing.T) (*rsa.PublicKey, *rsa.PrivateKey) {
	t.Helper()
	testKeyOnce.Do(func() {
		var err error
		testPubPEM, testPrivPEM, err = GenerateCustodianKey(2048)
		require.NoError(t, err)
	})

	pub, err := ParseRSAPublicKeyPEM(testPubPEM)
	require.NoError(t, err)
	priv, err := ParseRSAPrivateKeyPEM(testPrivPEM)
	require.NoError(t, err)
	return pub, priv
}

func TestSealShare_RoundTrip(t *testing.T) {
	pub, priv := custodianKey(t)
	share := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03}

	sealed, err := SealShare(share, pub)
	require.NoError(t, err)
	assert.Len(t, sealed, pub.Size())

	unsealed, err := UnsealShare(sealed, priv)
	require.NoError(t, err)
	assert.Equal(t, share, unsealed)

	decoded, err := DecodeSealedShare(EncodeSealedShare(sealed))
	require.NoError(t, err)
	assert.Equal(t, sealed, decoded)
}

func TestSealShare_NonDeterministic(t *testing.T) {
	pub, _ := custodianKey(t)
	share := make([]byte, 33)

	a, err := SealShare(share, pub)
	require.NoError(t, err)
	b, err := SealShare(share, pub)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSealShare_InputTooLarge(t *testing.T) {
	pub, _ := custodianKey(t)

	// Hex doubles the payload, so half the OAEP limit still fits...
	fits := make([]byte, MaxSealPayload(pub)/2)
	_, err := SealShare(fits, pub)
	require.NoError(t, err)

	// ...and one more byte does not.
	tooLarge := make([]byte, MaxSealPayload(pub)/2+1)
	_, err = SealShare(tooLarge, pub)
	assert.ErrorIs(t, err, interfaces.ErrInputTooLarge)
	assert.ErrorIs(t, err, interfaces.ErrCryptographic)
}

func TestUnsealShare_WrongKey(t *testing.T) {
	pub, _ := custodianKey(t)
	sealed, err := SealShare([]byte{1, 2, 3}, pub)
	require.NoError(t, err)

	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	_, err = UnsealShare(sealed, other)
	assert.ErrorIs(t, err, interfaces.ErrCryptographic)
}

func TestParseRSAPublicKeyPEM(t *testing.T) {
	pub, _ := custodianKey(t)

	pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(pub)})
	parsed, err := ParseRSAPublicKeyPEM(pkcs1)
	require.NoError(t, err)
	assert.True(t, pub.Equal(parsed))

	_, err = ParseRSAPublicKeyPEM([]byte("not a pem"))
	assert.ErrorIs(t, err, interfaces.ErrValidation)

	small, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	smallDER, err := x509.MarshalPKIXPublicKey(&small.PublicKey)
	require.NoError(t, err)
	_, err = ParseRSAPublicKeyPEM(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: smallDER}))
	assert.ErrorIs(t, err, interfaces.ErrValidation)

	_, err = ParseRSAPublicKeyPEM(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: smallDER}))
	assert.ErrorIs(t, err, interfaces.ErrValidation)
}

func TestParseRSAPrivateKeyPEM_PKCS1(t *testing.T) {
	_, priv := custodianKey(t)
	pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	parsed, err := ParseRSAPrivateKeyPEM(pkcs1)
	require.NoError(t, err)
	assert.True(t, priv.Equal(parsed))

	_, err = ParseRSAPrivateKeyPEM([]byte("garbage"))
	assert.Error(t, err)
}

func TestGenerateCustodianKey_RejectsSmallKeys(t *testing.T) {
	_, _, err := GenerateCustodianKey(1024)
	assert.ErrorIs(t, err, interfaces.ErrInvalidParameters)
}
