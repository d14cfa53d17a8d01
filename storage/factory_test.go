package storage

import (
	"crypto/tls"
	"errors"
	"testing"

	"github.com/ruteri/credential-registry-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLocation(t *testing.T, uri string) interfaces.StorageBackendLocation {
	t.Helper()
	loc, err := interfaces.NewStorageBackendLocation(uri)
	require.NoError(t, err)
	return loc
}

func TestStorageBackendFactory_StorageBackendFor(t *testing.T) {
	factory := NewStorageBackendFactory(discardLogger)
	dir := t.TempDir()

	tests := []struct {
		name     string
		uri      string
		wantType interface{}
		wantName string
	}{
		{"file", "file://" + dir, &FileBackend{}, ""},
		{"s3 with credentials", "s3://AKIA:secret@credentials/issued?region=us-east-1&endpoint=https://s3.filebase.com&s3ForcePathStyle=true", &S3Backend{}, "s3-credentials"},
		{"ipfs", "ipfs://localhost:5001/?timeout=5s", &IPFSBackend{}, "ipfs-localhost-5001"},
		{"ipfs default port", "ipfs://localhost", &IPFSBackend{}, "ipfs-localhost-5001"},
		{"vault", "vault://token@localhost:8200/secret/credentials?tls=false", &VaultBackend{}, "vault-secret-credentials"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := factory.StorageBackendFor(mustLocation(t, tt.uri))
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, backend)
			if tt.wantName != "" {
				assert.Equal(t, tt.wantName, backend.Name())
			}
		})
	}
}

func TestStorageBackendFactory_S3Options(t *testing.T) {
	factory := NewStorageBackendFactory(discardLogger)
	backend, err := factory.StorageBackendFor(mustLocation(t, "s3://AKIA:secret@bucket/prefix/?region=eu-west-1&s3ForcePathStyle=true"))
	require.NoError(t, err)

	s3b := backend.(*S3Backend)
	assert.True(t, s3b.hasWriteAccess)
	assert.Equal(t, "prefix", s3b.prefix)
	assert.NotContains(t, s3b.LocationURI(), "secret")
	assert.Contains(t, s3b.LocationURI(), "s3ForcePathStyle=true")
}

func TestStorageBackendFactory_Invalid(t *testing.T) {
	factory := NewStorageBackendFactory(discardLogger)

	_, err := factory.StorageBackendFor(mustLocation(t, "vault://localhost:8200/"))
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)

	_, err = factory.StorageBackendFor(mustLocation(t, "ipfs://localhost:5001/?timeout=soon"))
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)

	_, err = interfaces.NewStorageBackendLocation("github://owner/repo")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)

	_, err = factory.CreateMultiBackend([]interfaces.StorageBackendLocation{mustLocation(t, "vault://localhost:8200/")})
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}

func TestStorageBackendFactory_CreateMultiBackend(t *testing.T) {
	factory := NewStorageBackendFactory(discardLogger)

	backend, err := factory.CreateMultiBackend([]interfaces.StorageBackendLocation{
		mustLocation(t, "file://"+t.TempDir()),
		mustLocation(t, "vault://localhost:8200/"), // skipped, no mount
		mustLocation(t, "file://"+t.TempDir()),
	})
	require.NoError(t, err)

	multi, ok := backend.(*MultiStorageBackend)
	require.True(t, ok)
	assert.Len(t, multi.backends, 2)
}

func TestStorageBackendFactory_WithTLSAuth(t *testing.T) {
	certErr := errors.New("no certificate")
	factory := NewStorageBackendFactory(discardLogger).WithTLSAuth(func() (tls.Certificate, error) {
		return tls.Certificate{}, certErr
	})

	_, err := factory.StorageBackendFor(mustLocation(t, "vault://localhost:8200/secret/credentials"))
	assert.ErrorIs(t, err, certErr)

	// Other schemes do not need the certificate.
	_, err = factory.StorageBackendFor(mustLocation(t, "file://"+t.TempDir()))
	assert.NoError(t, err)
}

func TestRedactURI(t *testing.T) {
	assert.NotContains(t, redactURI("s3://AKIA:secret@bucket/prefix"), "secret")
	assert.NotContains(t, redactURI("vault://s.token@localhost:8200/secret"), "s.token")
}
