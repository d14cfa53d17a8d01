package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ruteri/credential-registry-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackend_StoreFetch(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(dir, discardLogger)
	require.NoError(t, err)
	ctx := context.Background()

	assert.True(t, backend.Available(ctx))
	assert.DirExists(t, filepath.Join(dir, "ciphertext"))
	assert.DirExists(t, filepath.Join(dir, "bundle"))

	data := []byte("TESTFILE0\n")
	loc, err := backend.Store(ctx, data, interfaces.CiphertextType)
	require.NoError(t, err)
	assert.Equal(t, "file", loc.Scheme())
	assert.True(t, strings.HasSuffix(loc.String(), "/ciphertext/64ee83233cb4069f3eca00ed12de1a1a2b36fb8cb0ae43d07c5fbe742c2cfccd"))

	got, err := backend.Fetch(ctx, loc)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	again, err := backend.Store(ctx, data, interfaces.CiphertextType)
	require.NoError(t, err)
	assert.Equal(t, loc, again, "storing identical bytes is idempotent")

	bundleLoc, err := backend.Store(ctx, data, interfaces.BundleType)
	require.NoError(t, err)
	assert.NotEqual(t, loc, bundleLoc)
}

func TestFileBackend_FetchErrors(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(dir, discardLogger)
	require.NoError(t, err)
	ctx := context.Background()

	missing := interfaces.Locator("file://" + filepath.ToSlash(filepath.Join(backend.baseDir, "ciphertext", strings.Repeat("ab", 32))))
	_, err = backend.Fetch(ctx, missing)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	tests := []interfaces.Locator{
		"s3://bucket/ciphertext/" + interfaces.Locator(strings.Repeat("ab", 32)),
		"file:///etc/passwd",
		interfaces.Locator("file://" + filepath.ToSlash(filepath.Join(backend.baseDir, "..", "escape", strings.Repeat("ab", 32)))),
		interfaces.Locator("file://" + filepath.ToSlash(filepath.Join(backend.baseDir, "ciphertext", "not-a-hash"))),
	}
	for _, loc := range tests {
		_, err := backend.Fetch(ctx, loc)
		assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI, "locator %s", loc)
	}
}

func TestFileBackend_DetectsTampering(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), discardLogger)
	require.NoError(t, err)
	ctx := context.Background()

	loc, err := backend.Store(ctx, []byte("original"), interfaces.CiphertextType)
	require.NoError(t, err)

	path := strings.TrimPrefix(loc.String(), "file://")
	require.NoError(t, os.WriteFile(filepath.FromSlash(path), []byte("modified"), 0o644))

	_, err = backend.Fetch(ctx, loc)
	assert.ErrorIs(t, err, ErrIntegrity)
	assert.ErrorIs(t, err, interfaces.ErrCryptographic)
}

func TestFileBackend_StoreCancelled(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir(), discardLogger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = backend.Store(ctx, []byte("x"), interfaces.CiphertextType)
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
}
