package kms

import (
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/ruteri/credential-registry-backend/cryptoutils"
	"github.com/ruteri/credential-registry-backend/interfaces"
)

var (
	ErrSessionLocked      = errors.New("recovery session is locked - need more shares")
	ErrSessionUnlocked    = errors.New("recovery session is already unlocked")
	ErrUnknownCustodian   = errors.New("custodian holds no share for this credential")
	ErrDuplicateCustodian = errors.New("share already submitted for custodian")
)

// RecoverySession reconstructs one credential key from custodian shares.
// Shares are held only until the threshold is reached; the reconstructed key
// is kept in memory until Close.
type RecoverySession struct {
	mu             sync.Mutex
	bundle         *interfaces.RecoveryBundle
	nonce          []byte
	tag            []byte
	key            []byte            // reconstructed key, memory only
	isUnlocked     bool              // whether enough shares were submitted
	receivedShares map[string][]byte // custodian ID -> raw share
	expected       map[string]bool   // custodians that hold a sealed share
}

// NewRecoverySession prepares recovery for the credential described by bundle.
func NewRecoverySession(bundle *interfaces.RecoveryBundle) (*RecoverySession, error) {
	if bundle == nil {
		return nil, fmt.Errorf("%w: recovery bundle is nil", interfaces.ErrValidation)
	}
	if bundle.Threshold <= 0 || bundle.Threshold > len(bundle.SealedShares) {
		return nil, fmt.Errorf("%w: bundle threshold %d with %d sealed shares", interfaces.ErrInvalidParameters, bundle.Threshold, len(bundle.SealedShares))
	}

	nonce, err := hex.DecodeString(bundle.IV)
	if err != nil || len(nonce) != cryptoutils.NonceSize {
		return nil, fmt.Errorf("%w: bundle iv must be %d hex-encoded bytes", interfaces.ErrValidation, cryptoutils.NonceSize)
	}
	tag, err := hex.DecodeString(bundle.AuthTag)
	if err != nil || len(tag) != cryptoutils.TagSize {
		return nil, fmt.Errorf("%w: bundle authTag must be %d hex-encoded bytes", interfaces.ErrValidation, cryptoutils.TagSize)
	}

	expected := make(map[string]bool, len(bundle.SealedShares))
	for _, s := range bundle.SealedShares {
		expected[s.CustodianID] = true
	}

	return &RecoverySession{
		bundle:         bundle,
		nonce:          nonce,
		tag:            tag,
		receivedShares: make(map[string][]byte),
		expected:       expected,
	}, nil
}

// SubmitShare records a custodian's unsealed share. When the threshold is
// reached the key is reconstructed and the shares are wiped.
func (s *RecoverySession) SubmitShare(custodianID string, share []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isUnlocked {
		return ErrSessionUnlocked
	}
	if !s.expected[custodianID] {
		return fmt.Errorf("%w: %s", ErrUnknownCustodian, custodianID)
	}
	if _, found := s.receivedShares[custodianID]; found {
		return fmt.Errorf("%w: %s", ErrDuplicateCustodian, custodianID)
	}

	s.receivedShares[custodianID] = append([]byte(nil), share...)
	return s.tryReconstruct()
}

func (s *RecoverySession) tryReconstruct() error {
	if len(s.receivedShares) < s.bundle.Threshold {
		return nil // Not enough shares yet, but this is not an error
	}

	shares := make([][]byte, 0, len(s.receivedShares))
	for _, share := range s.receivedShares {
		shares = append(shares, share)
	}

	key, err := Combine(shares, s.bundle.Threshold)
	for id := range s.receivedShares {
		cryptoutils.Wipe(s.receivedShares[id])
	}
	s.receivedShares = make(map[string][]byte)
	if err != nil {
		return fmt.Errorf("failed to reconstruct key: %w", err)
	}
	if len(key) != cryptoutils.KeySize {
		cryptoutils.Wipe(key)
		return fmt.Errorf("%w: reconstructed key has %d bytes", interfaces.ErrCryptographic, len(key))
	}

	s.key = key
	s.isUnlocked = true
	return nil
}

// Received returns how many shares are pending reconstruction.
func (s *RecoverySession) Received() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.receivedShares)
}

// IsUnlocked reports whether the key has been reconstructed.
func (s *RecoverySession) IsUnlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isUnlocked
}

// Decrypt authenticates and decrypts the credential ciphertext, then checks
// the plaintext against the bundle's content hash.
func (s *RecoverySession) Decrypt(ciphertext []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isUnlocked {
		return nil, ErrSessionLocked
	}

	plaintext, err := cryptoutils.Decrypt(ciphertext, s.tag, s.key, s.nonce)
	if err != nil {
		return nil, err
	}
	if !s.bundle.ContentHash.IsZero() && cryptoutils.HashContent(plaintext) != s.bundle.ContentHash {
		cryptoutils.Wipe(plaintext)
		return nil, fmt.Errorf("%w: recovered file does not match registered content hash", interfaces.ErrCryptographic)
	}
	return plaintext, nil
}

// Close wipes the reconstructed key and any pending shares.
func (s *RecoverySession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cryptoutils.Wipe(s.key)
	s.key = nil
	s.isUnlocked = false
	for id := range s.receivedShares {
		cryptoutils.Wipe(s.receivedShares[id])
	}
	s.receivedShares = make(map[string][]byte)
}

// UnsealBundleShare finds the custodian's sealed share in bundle and unseals it
// with the custodian's private key. Runs on the custodian side.
func UnsealBundleShare(bundle *interfaces.RecoveryBundle, custodianID string, priv *rsa.PrivateKey) ([]byte, error) {
	for _, s := range bundle.SealedShares {
		if s.CustodianID != custodianID {
			continue
		}
		sealed, err := cryptoutils.DecodeSealedShare(s.EncryptedShare)
		if err != nil {
			return nil, err
		}
		return cryptoutils.UnsealShare(sealed, priv)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownCustodian, custodianID)
}
