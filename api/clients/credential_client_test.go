package clients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/credential-registry-backend/api"
	"github.com/ruteri/credential-registry-backend/cryptoutils"
	"github.com/ruteri/credential-registry-backend/custodians"
	"github.com/ruteri/credential-registry-backend/httpserver"
	"github.com/ruteri/credential-registry-backend/interfaces"
	"github.com/ruteri/credential-registry-backend/issuance"
	"github.com/ruteri/credential-registry-backend/records"
	"github.com/ruteri/credential-registry-backend/registry"
	"github.com/ruteri/credential-registry-backend/storage"
	"github.com/ruteri/credential-registry-backend/verifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixtureMetadata = interfaces.CredentialMetadata{
	CredentialNo:   "CERT-100",
	DegreeName:     "BSc",
	GraduationYear: 2024,
	StudentEmail:   "a@b.edu",
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var list []interfaces.Custodian
	for i := 1; i <= 3; i++ {
		pubPEM, _, err := cryptoutils.GenerateCustodianKey(2048)
		require.NoError(t, err)
		list = append(list, interfaces.Custodian{
			ID:           fmt.Sprintf("00000000-0000-0000-0000-00000000000%d", i),
			Name:         fmt.Sprintf("Custodian %d", i),
			PublicKeyPEM: string(pubPEM),
		})
	}
	dir, err := custodians.NewStaticDirectory(list)
	require.NoError(t, err)

	reg := registry.NewMemoryRegistry("0x00000000000000000000000000000000000000aa")
	store := records.NewMemoryStore()
	files, err := storage.NewFileBackend(t.TempDir(), logger)
	require.NoError(t, err)

	issuer, err := issuance.New(issuance.DefaultConfig(), issuance.Dependencies{
		Registry:   reg,
		Storage:    files,
		Custodians: dir,
		Records:    store,
		Log:        logger,
	})
	require.NoError(t, err)
	resolver, err := verifier.NewResolver(verifier.DefaultConfig(), reg, store, nil, logger)
	require.NoError(t, err)

	cfg := &api.HTTPServerConfig{Log: logger}
	server, err := httpserver.New(cfg, httpserver.NewHandler(issuer, resolver, store, dir, cfg, logger), nil, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestCredentialClient_Flow(t *testing.T) {
	ts := newTestServer(t)
	client := NewCredentialClient(ts.URL, 30*time.Second)
	client.IssuerID = "registrar"
	ctx := context.Background()
	file := []byte("TESTFILE0\n")

	issued, err := client.Issue(ctx, fixtureMetadata, "TESTFILE0.txt", file)
	require.NoError(t, err)
	assert.Equal(t, cryptoutils.HashContent(file), issued.FileHash)
	assert.Len(t, issued.EncryptedShares, 3)

	_, err = client.Issue(ctx, fixtureMetadata, "TESTFILE0.txt", file)
	require.ErrorIs(t, err, interfaces.ErrAlreadyRegistered)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusConflict, httpErr.StatusCode)

	verified, err := client.VerifyFile(ctx, file)
	require.NoError(t, err)
	assert.True(t, verified.Valid)
	require.NotNil(t, verified.Details)
	assert.Equal(t, "registrar", verified.Details.IssuerID)

	verified, err = client.VerifyMetadata(ctx, []byte(`{"studentEmail":"a@b.edu","degreeName":"BSc","credentialNo":"CERT-100","graduationYear":2024}`))
	require.NoError(t, err)
	assert.True(t, verified.Valid)

	verified, err = client.VerifyHash(ctx, "jsonHash", issued.JSONHash)
	require.NoError(t, err)
	assert.True(t, verified.Valid)

	missing, err := client.VerifyFile(ctx, []byte("TESTFILE1\n"))
	require.NoError(t, err)
	assert.False(t, missing.Valid)
	assert.Equal(t, api.NotFoundMessage, missing.Message)

	bundle, err := client.GetBundle(ctx, issued.FileHash)
	require.NoError(t, err)
	assert.Equal(t, issued.IV, bundle.IV)
	assert.Equal(t, issued.CID, bundle.Locator)

	_, err = client.GetBundle(ctx, cryptoutils.HashContent([]byte("other")))
	require.ErrorIs(t, err, interfaces.ErrNotFound)

	list, err := client.ListCredentials(ctx, "a@b.edu", "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, issued.RecordID, list[0].RecordID)

	custodianList, err := client.ListCustodians(ctx)
	require.NoError(t, err)
	assert.Len(t, custodianList, 3)
}

func TestCredentialClient_ValidationError(t *testing.T) {
	ts := newTestServer(t)
	client := NewCredentialClient(ts.URL, 10*time.Second)

	bad := fixtureMetadata
	bad.StudentEmail = "nobody"
	_, err := client.Issue(context.Background(), bad, "x.txt", []byte("x"))
	require.ErrorIs(t, err, interfaces.ErrValidation)
}

func TestCredentialClient_Unreachable(t *testing.T) {
	client := NewCredentialClient("http://127.0.0.1:1", time.Second)
	_, err := client.ListCustodians(context.Background())
	require.ErrorIs(t, err, interfaces.ErrExternalUnavailable)
}

func TestCredentialClient_PlainTextError(t *testing.T) {
	mux := chi.NewRouter()
	mux.Get("/api/custodians", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	_, err := NewCredentialClient(ts.URL, time.Second).ListCustodians(context.Background())
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, "upstream down", httpErr.Message)
	assert.ErrorIs(t, err, interfaces.ErrExternalUnavailable)
}
