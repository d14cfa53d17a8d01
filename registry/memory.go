package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ruteri/credential-registry-backend/interfaces"
)

// MemoryRegistry is a write-once in-memory registry. It backs the dev server
// and tests without requiring a blockchain connection.
type MemoryRegistry struct {
	mutex      sync.RWMutex
	byContent  map[interfaces.Digest]*interfaces.VerificationRecord
	byMetadata map[interfaces.Digest]*interfaces.VerificationRecord
	issuer     string
	nextID     int64
	now        func() time.Time

	// RegisterErr, when set, is returned by Register before any write.
	RegisterErr error
	// LookupErr, when set, is returned by both lookups.
	LookupErr error
}

// NewMemoryRegistry creates an empty registry that attributes all writes to issuer.
func NewMemoryRegistry(issuer string) *MemoryRegistry {
	return &MemoryRegistry{
		byContent:  make(map[interfaces.Digest]*interfaces.VerificationRecord),
		byMetadata: make(map[interfaces.Digest]*interfaces.VerificationRecord),
		issuer:     issuer,
		nextID:     1,
		now:        time.Now,
	}
}

// Register stores the record unless the content hash is already known.
func (m *MemoryRegistry) Register(ctx context.Context, contentHash, metadataHash interfaces.Digest, locator interfaces.Locator) (interfaces.TransactionID, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.RegisterErr != nil {
		return "", m.RegisterErr
	}
	if _, exists := m.byContent[contentHash]; exists {
		return "", fmt.Errorf("%w: %s", interfaces.ErrAlreadyRegistered, contentHash)
	}

	record := &interfaces.VerificationRecord{
		CredentialID: strconv.FormatInt(m.nextID, 10),
		Issuer:       m.issuer,
		ContentHash:  contentHash,
		MetadataHash: metadataHash,
		Locator:      locator,
		Timestamp:    m.now().Unix(),
	}
	m.nextID++

	m.byContent[contentHash] = record
	// The first registration for a metadata hash wins the index.
	if _, exists := m.byMetadata[metadataHash]; !exists {
		m.byMetadata[metadataHash] = record
	}

	txHash := sha256.Sum256(append(contentHash.Bytes(), []byte(record.CredentialID)...))
	return interfaces.TransactionID("0x" + hex.EncodeToString(txHash[:])), nil
}

// LookupByContentHash returns a copy of the record for contentHash.
func (m *MemoryRegistry) LookupByContentHash(ctx context.Context, contentHash interfaces.Digest) (*interfaces.VerificationRecord, error) {
	return m.lookup(m.byContent, contentHash)
}

// LookupByMetadataHash returns a copy of the record for metadataHash.
func (m *MemoryRegistry) LookupByMetadataHash(ctx context.Context, metadataHash interfaces.Digest) (*interfaces.VerificationRecord, error) {
	return m.lookup(m.byMetadata, metadataHash)
}

func (m *MemoryRegistry) lookup(index map[interfaces.Digest]*interfaces.VerificationRecord, key interfaces.Digest) (*interfaces.VerificationRecord, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if m.LookupErr != nil {
		return nil, m.LookupErr
	}
	record, ok := index[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrRecordNotFound, key)
	}
	cp := *record
	return &cp, nil
}

// Len returns the number of registered credentials.
func (m *MemoryRegistry) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.byContent)
}
