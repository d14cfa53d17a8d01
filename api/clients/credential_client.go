package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/credential-registry-backend/api"
	"github.com/ruteri/credential-registry-backend/interfaces"
	"github.com/stretchr/testify/mock"
)

// HTTPError is a non-2xx response from the server.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the status onto the error taxonomy so callers can use errors.Is.
func (e *HTTPError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return interfaces.ErrValidation
	case http.StatusNotFound:
		return interfaces.ErrNotFound
	case http.StatusConflict:
		return interfaces.ErrAlreadyRegistered
	case http.StatusGatewayTimeout:
		return interfaces.ErrOutcomeUnknown
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return interfaces.ErrExternalUnavailable
	default:
		return nil
	}
}

// CredentialClient implements api.CredentialProvider over HTTP.
type CredentialClient struct {
	// ServerAddr is the base URL of the credential server
	ServerAddr string

	// IssuerID is sent as X-Issuer-ID on issuance when set
	IssuerID string

	HTTPClient *http.Client
}

func NewCredentialClient(serverAddr string, timeout time.Duration) *CredentialClient {
	return &CredentialClient{
		ServerAddr: strings.TrimRight(serverAddr, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Issue uploads a credential file with its metadata.
func (c *CredentialClient) Issue(ctx context.Context, metadata interfaces.CredentialMetadata, fileName string, file []byte) (*api.IssueResponse, error) {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	if fileName == "" {
		fileName = "credential"
	}

	body, contentType, err := multipartBody(fileName, file, map[string]string{api.MetadataField: string(metadataJSON)})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ServerAddr+"/api/credentials/issue", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if c.IssuerID != "" {
		req.Header.Set(api.IssuerIDHeader, c.IssuerID)
	}

	var resp api.IssueResponse
	if err := c.do(req, http.StatusCreated, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyFile uploads the raw file; the server computes its hash.
func (c *CredentialClient) VerifyFile(ctx context.Context, file []byte) (*api.VerifyResponse, error) {
	body, contentType, err := multipartBody("credential", file, nil)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ServerAddr+"/api/credentials/verify/file", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.verify(req)
}

// VerifyMetadata sends a metadata JSON object. Key order does not matter.
func (c *CredentialClient) VerifyMetadata(ctx context.Context, metadata []byte) (*api.VerifyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ServerAddr+"/api/credentials/verify/metadata", bytes.NewReader(metadata))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.verify(req)
}

// VerifyHash looks up a hash computed by the caller. kind is "fileHash" or "jsonHash".
func (c *CredentialClient) VerifyHash(ctx context.Context, kind string, digest interfaces.Digest) (*api.VerifyResponse, error) {
	query := url.Values{}
	query.Set(kind, digest.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ServerAddr+"/api/credentials/verify?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	return c.verify(req)
}

func (c *CredentialClient) GetBundle(ctx context.Context, fileHash interfaces.Digest) (*interfaces.RecoveryBundle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/credentials/%s/bundle", c.ServerAddr, fileHash), nil)
	if err != nil {
		return nil, err
	}
	var bundle interfaces.RecoveryBundle
	if err := c.do(req, http.StatusOK, &bundle); err != nil {
		return nil, err
	}
	return &bundle, nil
}

func (c *CredentialClient) ListCredentials(ctx context.Context, recipient, issuer string) ([]api.CredentialDetails, error) {
	query := url.Values{}
	if recipient != "" {
		query.Set("recipient", recipient)
	}
	if issuer != "" {
		query.Set("issuer", issuer)
	}
	target := c.ServerAddr + "/api/credentials"
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	var resp api.ListCredentialsResponse
	if err := c.do(req, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Credentials, nil
}

func (c *CredentialClient) ListCustodians(ctx context.Context) ([]interfaces.Custodian, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ServerAddr+"/api/custodians", nil)
	if err != nil {
		return nil, err
	}
	var resp api.ListCustodiansResponse
	if err := c.do(req, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Custodians, nil
}

func (c *CredentialClient) verify(req *http.Request) (*api.VerifyResponse, error) {
	var resp api.VerifyResponse
	err := c.do(req, http.StatusOK, &resp)
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
		return &api.VerifyResponse{Valid: false, Message: httpErr.Message}, nil
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *CredentialClient) do(req *http.Request, expected int, out any) error {
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: could not reach %s: %v", interfaces.ErrBackendUnavailable, req.URL.Path, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}

	if resp.StatusCode != expected {
		message := strings.TrimSpace(string(bodyBytes))
		var errResp api.ErrorResponse
		var verifyResp api.VerifyResponse
		if json.Unmarshal(bodyBytes, &errResp) == nil && errResp.Error != "" {
			message = errResp.Error
		} else if json.Unmarshal(bodyBytes, &verifyResp) == nil && verifyResp.Message != "" {
			message = verifyResp.Message
		}
		return &HTTPError{StatusCode: resp.StatusCode, Message: message}
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("could not parse response: %w", err)
	}
	return nil
}

func multipartBody(fileName string, file []byte, fields map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}
	part, err := writer.CreateFormFile(api.FileField, fileName)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(file); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

// MockCredentialProvider implements api.CredentialProvider for testing.
type MockCredentialProvider struct {
	mock.Mock
}

func (m *MockCredentialProvider) Issue(ctx context.Context, metadata interfaces.CredentialMetadata, fileName string, file []byte) (*api.IssueResponse, error) {
	args := m.Called(ctx, metadata, fileName, file)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.IssueResponse), args.Error(1)
}

func (m *MockCredentialProvider) VerifyFile(ctx context.Context, file []byte) (*api.VerifyResponse, error) {
	args := m.Called(ctx, file)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.VerifyResponse), args.Error(1)
}

func (m *MockCredentialProvider) VerifyMetadata(ctx context.Context, metadata []byte) (*api.VerifyResponse, error) {
	args := m.Called(ctx, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.VerifyResponse), args.Error(1)
}

func (m *MockCredentialProvider) VerifyHash(ctx context.Context, kind string, digest interfaces.Digest) (*api.VerifyResponse, error) {
	args := m.Called(ctx, kind, digest)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.VerifyResponse), args.Error(1)
}

func (m *MockCredentialProvider) GetBundle(ctx context.Context, fileHash interfaces.Digest) (*interfaces.RecoveryBundle, error) {
	args := m.Called(ctx, fileHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.RecoveryBundle), args.Error(1)
}

func (m *MockCredentialProvider) ListCredentials(ctx context.Context, recipient, issuer string) ([]api.CredentialDetails, error) {
	args := m.Called(ctx, recipient, issuer)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]api.CredentialDetails), args.Error(1)
}

func (m *MockCredentialProvider) ListCustodians(ctx context.Context) ([]interfaces.Custodian, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]interfaces.Custodian), args.Error(1)
}

var _ api.CredentialProvider = (*CredentialClient)(nil)
var _ api.CredentialProvider = (*MockCredentialProvider)(nil)
