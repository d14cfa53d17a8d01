package records

import (
	"context"
	"fmt"
	"sync"

	"github.com/ruteri/credential-registry-backend/interfaces"
)

// MemoryStore is a RecordStore backed by maps.
type MemoryStore struct {
	mu         sync.RWMutex
	byContent  map[interfaces.Digest]*interfaces.IssuanceRecord
	byMetadata map[interfaces.Digest]interfaces.Digest

	// SaveErr, when set, is returned by SaveIssuance.
	SaveErr error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byContent:  make(map[interfaces.Digest]*interfaces.IssuanceRecord),
		byMetadata: make(map[interfaces.Digest]interfaces.Digest),
	}
}

func (s *MemoryStore) SaveIssuance(ctx context.Context, record *interfaces.IssuanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.byContent[record.ContentHash] = cloneRecord(record)
	if _, exists := s.byMetadata[record.MetadataHash]; !exists {
		s.byMetadata[record.MetadataHash] = record.ContentHash
	}
	return nil
}

func (s *MemoryStore) GetByContentHash(ctx context.Context, contentHash interfaces.Digest) (*interfaces.IssuanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.byContent[contentHash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrRecordNotFound, contentHash)
	}
	return cloneRecord(r), nil
}

func (s *MemoryStore) GetByMetadataHash(ctx context.Context, metadataHash interfaces.Digest) (*interfaces.IssuanceRecord, error) {
	s.mu.RLock()
	contentHash, ok := s.byMetadata[metadataHash]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrRecordNotFound, metadataHash)
	}
	return s.GetByContentHash(ctx, contentHash)
}

func (s *MemoryStore) List(ctx context.Context, filter interfaces.RecordFilter) ([]*interfaces.IssuanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*interfaces.IssuanceRecord
	for _, r := range s.byContent {
		if matches(r, filter) {
			out = append(out, cloneRecord(r))
		}
	}
	return newestFirst(out, filter.Limit), nil
}
