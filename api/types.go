package api

import (
	"context"
	"time"

	"github.com/ruteri/credential-registry-backend/interfaces"
)

const (
	// IssuerIDHeader names the issuing account. When absent the server's
	// configured default issuer is used.
	IssuerIDHeader = "X-Issuer-ID"

	// NotFoundMessage is returned with a 404 from every verify endpoint.
	NotFoundMessage = "Certificate not found on blockchain"

	// Multipart field names of the issue endpoint.
	FileField     = "file"
	MetadataField = "metadata"
)

// CredentialProvider is the client view of the credential service.
type CredentialProvider interface {
	Issue(ctx context.Context, metadata interfaces.CredentialMetadata, fileName string, file []byte) (*IssueResponse, error)
	VerifyFile(ctx context.Context, file []byte) (*VerifyResponse, error)
	VerifyMetadata(ctx context.Context, metadata []byte) (*VerifyResponse, error)
	VerifyHash(ctx context.Context, kind string, digest interfaces.Digest) (*VerifyResponse, error)
	GetBundle(ctx context.Context, fileHash interfaces.Digest) (*interfaces.RecoveryBundle, error)
	ListCredentials(ctx context.Context, recipient, issuer string) ([]CredentialDetails, error)
	ListCustodians(ctx context.Context) ([]interfaces.Custodian, error)
}

// IssueResponse is returned with 201 Created by POST /api/credentials/issue.
type IssueResponse struct {
	RecordID        string                   `json:"recordId"`
	FileHash        interfaces.Digest        `json:"fileHash"`
	JSONHash        interfaces.Digest        `json:"jsonHash"`
	IV              string                   `json:"iv"`
	AuthTag         string                   `json:"authTag"`
	CID             interfaces.Locator       `json:"cid"`
	BundleCID       interfaces.Locator       `json:"bundleCid,omitempty"`
	TxID            interfaces.TransactionID `json:"txId"`
	EncryptedShares []interfaces.SealedShare `json:"encryptedShares"`
	Threshold       int                      `json:"threshold"`
	Degradation     *Degradation             `json:"degradation,omitempty"`
}

type FailedCustodian struct {
	CustodianID string `json:"custodianId"`
	Reason      string `json:"reason"`
}

// Degradation is present on issuances that committed with reduced
// recoverability or without bookkeeping.
type Degradation struct {
	FailedCustodians []FailedCustodian `json:"failedCustodians,omitempty"`
	Warnings         []string          `json:"warnings,omitempty"`
}

// VerifyResponse answers every verify endpoint. OnChain is authoritative,
// Details are informational.
type VerifyResponse struct {
	Valid   bool                           `json:"valid"`
	Message string                         `json:"message,omitempty"`
	OnChain *interfaces.VerificationRecord `json:"onChain,omitempty"`
	Details *CredentialDetails             `json:"details,omitempty"`
}

// CredentialDetails is the public part of an issuance record.
type CredentialDetails struct {
	RecordID string                        `json:"recordId"`
	Metadata interfaces.CredentialMetadata `json:"metadata"`
	IssuerID string                        `json:"issuerId,omitempty"`
	FileName string                        `json:"fileName,omitempty"`
	FileHash interfaces.Digest             `json:"fileHash"`
	JSONHash interfaces.Digest             `json:"jsonHash"`
	CID      interfaces.Locator            `json:"cid"`
	TxID     interfaces.TransactionID      `json:"txId,omitempty"`
	IssuedAt time.Time                     `json:"issuedAt"`
	Warnings []string                      `json:"warnings,omitempty"`
}

// NewCredentialDetails drops the recovery material from record.
func NewCredentialDetails(record *interfaces.IssuanceRecord) CredentialDetails {
	return CredentialDetails{
		RecordID: record.ID,
		Metadata: record.Metadata,
		IssuerID: record.IssuerID,
		FileName: record.FileName,
		FileHash: record.ContentHash,
		JSONHash: record.MetadataHash,
		CID:      record.Locator,
		TxID:     record.TransactionID,
		IssuedAt: record.IssuedAt,
		Warnings: record.Warnings,
	}
}

type ListCredentialsResponse struct {
	Credentials []CredentialDetails `json:"credentials"`
}

type ListCustodiansResponse struct {
	Custodians []interfaces.Custodian `json:"custodians"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
