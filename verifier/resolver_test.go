package verifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ruteri/credential-registry-backend/cryptoutils"
	"github.com/ruteri/credential-registry-backend/interfaces"
	"github.com/ruteri/credential-registry-backend/records"
	"github.com/ruteri/credential-registry-backend/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixtureMetadata = interfaces.CredentialMetadata{
	CredentialNo:   "CERT-100",
	DegreeName:     "BSc",
	GraduationYear: 2024,
	StudentEmail:   "a@b.edu",
}

func testConfig() Config {
	return Config{LookupTimeout: time.Second, MaxRetries: 2, RetryInterval: time.Millisecond}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func registered(t *testing.T) (*registry.MemoryRegistry, *records.MemoryStore, interfaces.Digest, interfaces.Digest) {
	t.Helper()
	reg := registry.NewMemoryRegistry("0x00000000000000000000000000000000000000aa")
	store := records.NewMemoryStore()

	fileHash := cryptoutils.HashContent([]byte("TESTFILE0\n"))
	jsonHash, err := cryptoutils.HashMetadata(&fixtureMetadata)
	require.NoError(t, err)

	_, err = reg.Register(context.Background(), fileHash, jsonHash, "ipfs://bafytest")
	require.NoError(t, err)
	require.NoError(t, store.SaveIssuance(context.Background(), &interfaces.IssuanceRecord{
		ID:           "rec-1",
		Metadata:     fixtureMetadata,
		ContentHash:  fileHash,
		MetadataHash: jsonHash,
		Locator:      "ipfs://bafytest",
		IssuedAt:     time.Now(),
	}))
	return reg, store, fileHash, jsonHash
}

func TestResolver_Hits(t *testing.T) {
	reg, store, fileHash, jsonHash := registered(t)
	r, err := NewResolver(testConfig(), reg, store, nil, discardLogger())
	require.NoError(t, err)
	ctx := context.Background()

	byFile, err := r.VerifyByFile(ctx, []byte("TESTFILE0\n"))
	require.NoError(t, err)
	assert.True(t, byFile.Valid)
	assert.Equal(t, jsonHash, byFile.OnChain.MetadataHash)
	require.NotNil(t, byFile.Details)
	assert.Equal(t, "rec-1", byFile.Details.ID)

	byMeta, err := r.VerifyByMetadata(ctx, &fixtureMetadata)
	require.NoError(t, err)
	assert.True(t, byMeta.Valid)
	assert.Equal(t, fileHash, byMeta.OnChain.ContentHash)

	// Key order and whitespace are irrelevant.
	raw := []byte(`{ "studentEmail": "a@b.edu", "graduationYear": 2024, "degreeName": "BSc", "credentialNo": "CERT-100" }`)
	byJSON, err := r.VerifyByMetadataJSON(ctx, raw)
	require.NoError(t, err)
	assert.True(t, byJSON.Valid)

	byHash, err := r.VerifyByHash(ctx, FileHash, fileHash)
	require.NoError(t, err)
	assert.True(t, byHash.Valid)
}

func TestResolver_Misses(t *testing.T) {
	reg, store, _, _ := registered(t)
	r, err := NewResolver(testConfig(), reg, store, nil, discardLogger())
	require.NoError(t, err)
	ctx := context.Background()

	result, err := r.VerifyByFile(ctx, []byte("TESTFILE1\n"))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, NotFoundMessage, result.Message)
	assert.Nil(t, result.OnChain)

	other := fixtureMetadata
	other.GraduationYear = 2025
	result, err = r.VerifyByMetadata(ctx, &other)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, 1, reg.Len())
}

func TestResolver_Validation(t *testing.T) {
	reg, _, _, _ := registered(t)
	r, err := NewResolver(testConfig(), reg, nil, nil, discardLogger())
	require.NoError(t, err)

	_, err = r.VerifyByFile(context.Background(), nil)
	require.ErrorIs(t, err, interfaces.ErrValidation)

	_, err = r.VerifyByMetadataJSON(context.Background(), []byte(`[1,2]`))
	require.ErrorIs(t, err, interfaces.ErrValidation)

	_, err = r.VerifyByHash(context.Background(), HashKind("cid"), interfaces.Digest{})
	require.ErrorIs(t, err, interfaces.ErrValidation)

	_, err = ParseHashKind("jsonHash")
	require.NoError(t, err)
	_, err = ParseHashKind("other")
	require.ErrorIs(t, err, interfaces.ErrValidation)
}

func TestResolver_RetriesUnavailableRegistry(t *testing.T) {
	onChain := &interfaces.VerificationRecord{CredentialID: "1", Timestamp: 1700000000}
	reg := new(registry.MockCredentialRegistry)
	reg.On("LookupByContentHash", mock.Anything, mock.Anything).Return(nil, interfaces.ErrBackendUnavailable).Once()
	reg.On("LookupByContentHash", mock.Anything, mock.Anything).Return(onChain, nil).Once()

	r, err := NewResolver(testConfig(), reg, nil, nil, discardLogger())
	require.NoError(t, err)

	result, err := r.VerifyByHash(context.Background(), FileHash, interfaces.Digest{1})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Nil(t, result.Details)
	reg.AssertNumberOfCalls(t, "LookupByContentHash", 2)
}

func TestResolver_UnavailableAfterRetries(t *testing.T) {
	reg := registry.NewMemoryRegistry("issuer")
	reg.LookupErr = interfaces.ErrBackendUnavailable

	r, err := NewResolver(testConfig(), reg, nil, nil, discardLogger())
	require.NoError(t, err)

	_, err = r.VerifyByHash(context.Background(), JSONHash, interfaces.Digest{1})
	require.ErrorIs(t, err, interfaces.ErrExternalUnavailable)
}

type failingRecords struct{ interfaces.RecordStore }

func (failingRecords) GetByContentHash(context.Context, interfaces.Digest) (*interfaces.IssuanceRecord, error) {
	return nil, errors.New("records offline")
}

func TestResolver_RecordStoreFailureOmitsDetails(t *testing.T) {
	reg, _, fileHash, _ := registered(t)
	r, err := NewResolver(testConfig(), reg, failingRecords{}, nil, discardLogger())
	require.NoError(t, err)

	result, err := r.VerifyByHash(context.Background(), FileHash, fileHash)
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Nil(t, result.Details)
}

func TestNewResolver_Validation(t *testing.T) {
	_, err := NewResolver(testConfig(), nil, nil, nil, nil)
	require.Error(t, err)

	_, err = NewResolver(Config{}, registry.NewMemoryRegistry("x"), nil, nil, nil)
	require.ErrorIs(t, err, interfaces.ErrInvalidParameters)
}
