package cryptoutils

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/ruteri/credential-registry-backend/interfaces"
)

// MinRSABits is the smallest custodian key accepted.
const MinRSABits = 2048

// MaxSealPayload returns the largest OAEP-SHA256 payload for pub.
func MaxSealPayload(pub *rsa.PublicKey) int {
	return pub.Size() - 2*sha256.Size - 2
}

// SealShare encrypts a Shamir share for one custodian using RSA-OAEP with
// SHA-256. The plaintext is the lowercase hex text of the share, the same
// payload browser clients seal with WebCrypto.
func SealShare(share []byte, pub *rsa.PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, fmt.Errorf("%w: custodian public key is nil", interfaces.ErrCryptographic)
	}
	if len(share) == 0 {
		return nil, fmt.Errorf("%w: share is empty", interfaces.ErrInvalidParameters)
	}

	payload := []byte(hex.EncodeToString(share))
	defer Wipe(payload)

	if max := MaxSealPayload(pub); len(payload) > max {
		return nil, fmt.Errorf("%w: encoded share is %d bytes, key allows %d", interfaces.ErrInputTooLarge, len(payload), max)
	}

	sealed, err := rsa.EncryptOAEP(sha256.New(), randReader, pub, payload, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to seal share: %v", interfaces.ErrCryptographic, err)
	}
	return sealed, nil
}

// UnsealShare reverses SealShare. It runs on the custodian side only.
func UnsealShare(sealed []byte, priv *rsa.PrivateKey) ([]byte, error) {
	if priv == nil {
		return nil, fmt.Errorf("%w: custodian private key is nil", interfaces.ErrCryptographic)
	}

	payload, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to unseal share: %v", interfaces.ErrCryptographic, err)
	}
	defer Wipe(payload)

	share, err := hex.DecodeString(string(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: unsealed share is not hex: %v", interfaces.ErrCryptographic, err)
	}
	return share, nil
}

// EncodeSealedShare returns the base64 form stored in SealedShare.EncryptedShare.
func EncodeSealedShare(sealed []byte) string {
	return base64.StdEncoding.EncodeToString(sealed)
}

// DecodeSealedShare parses SealedShare.EncryptedShare.
func DecodeSealedShare(encoded string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: sealed share is not base64: %v", interfaces.ErrValidation, err)
	}
	return sealed, nil
}

// ParseRSAPublicKeyPEM parses a PKIX "PUBLIC KEY" or PKCS#1 "RSA PUBLIC KEY"
// block and rejects keys under MinRSABits.
func ParseRSAPublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: failed to decode public key PEM", interfaces.ErrValidation)
	}

	var pub *rsa.PublicKey
	switch block.Type {
	case "PUBLIC KEY":
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse public key: %v", interfaces.ErrValidation, err)
		}
		rsaPub, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: public key is %T, not RSA", interfaces.ErrValidation, parsed)
		}
		pub = rsaPub
	case "RSA PUBLIC KEY":
		parsed, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse public key: %v", interfaces.ErrValidation, err)
		}
		pub = parsed
	default:
		return nil, fmt.Errorf("%w: unexpected PEM block %q", interfaces.ErrValidation, block.Type)
	}

	if pub.N.BitLen() < MinRSABits {
		return nil, fmt.Errorf("%w: RSA key is %d bits, need at least %d", interfaces.ErrValidation, pub.N.BitLen(), MinRSABits)
	}
	return pub, nil
}

// ParseRSAPrivateKeyPEM parses a PKCS#8 "PRIVATE KEY" or PKCS#1 "RSA PRIVATE KEY" block.
func ParseRSAPrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode private key PEM")
	}

	switch block.Type {
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		priv, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is %T, not RSA", parsed)
		}
		return priv, nil
	case "RSA PRIVATE KEY":
		priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		return priv, nil
	default:
		return nil, fmt.Errorf("unexpected PEM block %q", block.Type)
	}
}

// GenerateCustodianKey creates an RSA keypair and returns it PEM-encoded
// (PKIX public key, PKCS#8 private key).
func GenerateCustodianKey(bits int) (pubPEM, privPEM []byte, err error) {
	if bits < MinRSABits {
		return nil, nil, fmt.Errorf("%w: RSA key must be at least %d bits", interfaces.ErrInvalidParameters, MinRSABits)
	}

	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: failed to generate key: %v", interfaces.ErrCryptographic, err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	privPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	return pubPEM, privPEM, nil
}
