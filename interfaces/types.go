package interfaces

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Digest is a 32-byte SHA-256 hash. It is used as fileHash (raw document)
// and jsonHash (canonical metadata), and as bytes32 on-chain.
type Digest [32]byte

// NewDigestFromBytes converts a 32-byte slice into a Digest.
func NewDigestFromBytes(source []byte) (Digest, error) {
	if len(source) != 32 {
		return Digest{}, errors.New("invalid digest conversion from bytes: incorrect length")
	}

	var d Digest
	copy(d[:], source)
	return d, nil
}

// NewDigestFromHex parses a 64-char hex string, with or without 0x prefix.
func NewDigestFromHex(source string) (Digest, error) {
	clean := strings.TrimPrefix(strings.TrimPrefix(source, "0x"), "0X")
	if len(clean) != 64 {
		return Digest{}, errors.New("invalid digest length: hex string must be 64 characters")
	}

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return Digest{}, fmt.Errorf("invalid hex format: %w", err)
	}

	return NewDigestFromBytes(raw)
}

// String returns 64 lowercase hex characters.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Hex returns the 0x-prefixed form used for bytes32 values.
func (d Digest) Hex() string {
	return "0x" + d.String()
}

// Bytes returns the raw 32-byte hash.
func (d Digest) Bytes() []byte {
	return d[:]
}

// Equal compares two digests.
func (d Digest) Equal(other Digest) bool {
	return bytes.Equal(d[:], other[:])
}

// IsZero reports whether d is all zeroes.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := NewDigestFromHex(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// CredentialMetadata holds the structured fields covered by the metadata hash.
// The JSON names are part of the canonical encoding and must not change.
type CredentialMetadata struct {
	CredentialNo   string `json:"credentialNo" validate:"required,max=128"`
	DegreeName     string `json:"degreeName" validate:"required,max=256"`
	GraduationYear int    `json:"graduationYear" validate:"required,gte=1900,lte=2200"`
	StudentEmail   string `json:"studentEmail" validate:"required,email"`
}

// Custodian is an independent party holding one sealed share per credential.
// Only the public key is known to the issuing system.
type Custodian struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	PublicKeyPEM string `json:"publicKey"`
	Endpoint     string `json:"endpoint,omitempty"`
}

// SealedShare is one Shamir share encrypted under one custodian's key.
// EncryptedShare is the base64 (standard encoding) RSA-OAEP ciphertext.
type SealedShare struct {
	CustodianID    string `json:"custodianId"`
	EncryptedShare string `json:"encryptedShare"`
}

// VerificationRecord is the on-chain record of an issued credential.
type VerificationRecord struct {
	CredentialID string  `json:"credId"`
	Issuer       string  `json:"issuer"`
	ContentHash  Digest  `json:"fileHash"`
	MetadataHash Digest  `json:"jsonHash"`
	Locator      Locator `json:"cid"`
	Timestamp    int64   `json:"timestamp"`
}

// IssuedAt returns the registry timestamp as time.
func (r *VerificationRecord) IssuedAt() time.Time {
	return time.Unix(r.Timestamp, 0).UTC()
}

// IssuanceRecord is the denormalized off-chain record written after a
// credential has been registered. It is never authoritative.
type IssuanceRecord struct {
	ID            string             `json:"id"`
	Metadata      CredentialMetadata `json:"metadata"`
	IssuerID      string             `json:"issuerId"`
	FileName      string             `json:"fileName,omitempty"`
	ContentHash   Digest             `json:"fileHash"`
	MetadataHash  Digest             `json:"jsonHash"`
	Locator       Locator            `json:"cid"`
	BundleLocator Locator            `json:"bundleCid,omitempty"`
	IV            string             `json:"iv"`
	AuthTag       string             `json:"authTag"`
	SealedShares  []SealedShare      `json:"encryptedShares"`
	Threshold     int                `json:"threshold"`
	TransactionID TransactionID      `json:"txId"`
	IssuedAt      time.Time          `json:"issuedAt"`
	Warnings      []string           `json:"warnings,omitempty"`
}

// RecoveryBundle is everything, apart from custodian private keys, needed to
// recover a credential file.
type RecoveryBundle struct {
	ContentHash  Digest        `json:"fileHash"`
	MetadataHash Digest        `json:"jsonHash"`
	Locator      Locator       `json:"cid"`
	IV           string        `json:"iv"`
	AuthTag      string        `json:"authTag"`
	Threshold    int           `json:"threshold"`
	SealedShares []SealedShare `json:"encryptedShares"`
}

// Bundle extracts the recovery bundle from the record.
func (r *IssuanceRecord) Bundle() *RecoveryBundle {
	return &RecoveryBundle{
		ContentHash:  r.ContentHash,
		MetadataHash: r.MetadataHash,
		Locator:      r.Locator,
		IV:           r.IV,
		AuthTag:      r.AuthTag,
		Threshold:    r.Threshold,
		SealedShares: r.SealedShares,
	}
}
