package interfaces

import "context"

// TransactionID identifies an acknowledged registry write.
type TransactionID string

// CredentialRegistry is the append-only on-chain registry. Writes are
// write-once per content hash.
type CredentialRegistry interface {
	// Register records a credential. Returns ErrAlreadyRegistered if the content
	// hash is known, ErrBackendUnavailable if the write was not sent and
	// ErrOutcomeUnknown if it was sent but not observed.
	Register(ctx context.Context, contentHash, metadataHash Digest, locator Locator) (TransactionID, error)

	// LookupByContentHash returns ErrRecordNotFound if nothing is registered.
	LookupByContentHash(ctx context.Context, contentHash Digest) (*VerificationRecord, error)

	// LookupByMetadataHash returns ErrRecordNotFound if nothing is registered.
	LookupByMetadataHash(ctx context.Context, metadataHash Digest) (*VerificationRecord, error)
}

// CustodianDirectory lists custodians in a stable order.
type CustodianDirectory interface {
	ListCustodians(ctx context.Context) ([]Custodian, error)
}

// RecordFilter narrows RecordStore.List. Empty fields match everything.
type RecordFilter struct {
	Recipient string
	IssuerID  string
	Limit     int
}

// RecordStore keeps issuance records for listing and display. It is a
// best-effort cache, never the source of truth.
type RecordStore interface {
	SaveIssuance(ctx context.Context, record *IssuanceRecord) error
	GetByContentHash(ctx context.Context, contentHash Digest) (*IssuanceRecord, error)
	GetByMetadataHash(ctx context.Context, metadataHash Digest) (*IssuanceRecord, error)
	List(ctx context.Context, filter RecordFilter) ([]*IssuanceRecord, error)
}

// RecipientResolver checks that a recipient identifier refers to a known
// recipient. Implementations are external (for example a student directory).
type RecipientResolver interface {
	ResolveRecipient(ctx context.Context, email string) (bool, error)
}
