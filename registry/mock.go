package registry

import (
	"context"

	"github.com/ruteri/credential-registry-backend/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockCredentialRegistry mocks the CredentialRegistry interface
type MockCredentialRegistry struct {
	mock.Mock
}

// Register mocks the Register method
func (m *MockCredentialRegistry) Register(ctx context.Context, contentHash, metadataHash interfaces.Digest, locator interfaces.Locator) (interfaces.TransactionID, error) {
	args := m.Called(ctx, contentHash, metadataHash, locator)
	return args.Get(0).(interfaces.TransactionID), args.Error(1)
}

// LookupByContentHash mocks the LookupByContentHash method
func (m *MockCredentialRegistry) LookupByContentHash(ctx context.Context, contentHash interfaces.Digest) (*interfaces.VerificationRecord, error) {
	args := m.Called(ctx, contentHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.VerificationRecord), args.Error(1)
}

// LookupByMetadataHash mocks the LookupByMetadataHash method
func (m *MockCredentialRegistry) LookupByMetadataHash(ctx context.Context, metadataHash interfaces.Digest) (*interfaces.VerificationRecord, error) {
	args := m.Called(ctx, metadataHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.VerificationRecord), args.Error(1)
}
