package interfaces

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
)

// Locator identifies stored content. It is opaque to the core and is what
// gets written on-chain as the credential's cid. A locator produced by a
// multi-backend store lists one locator per replica, comma-separated.
type Locator string

// JoinLocators combines replica locators into one.
func JoinLocators(parts ...Locator) Locator {
	strs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			strs = append(strs, string(p))
		}
	}
	return Locator(strings.Join(strs, ","))
}

// Parts splits a combined locator into replica locators.
func (l Locator) Parts() []Locator {
	var parts []Locator
	for _, p := range strings.Split(string(l), ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, Locator(p))
		}
	}
	return parts
}

// Scheme returns the URI scheme of a single locator, or "" if it has none.
func (l Locator) Scheme() string {
	idx := strings.Index(string(l), "://")
	if idx <= 0 {
		return ""
	}
	return strings.ToLower(string(l)[:idx])
}

func (l Locator) String() string {
	return string(l)
}

// ContentType indicates storage namespace.
type ContentType int

const (
	// CiphertextType for AES-GCM encrypted credential files
	CiphertextType ContentType = iota
	// BundleType for recovery bundles (sealed shares, iv, tag)
	BundleType
)

// String returns type name.
func (ct ContentType) String() string {
	switch ct {
	case CiphertextType:
		return "ciphertext"
	case BundleType:
		return "bundle"
	default:
		return "unknown"
	}
}

// StorageBackendLocation represents URI for storage backend.
type StorageBackendLocation struct {
	Raw    string     // Original URI
	Scheme string     // Protocol
	Host   string     // Hostname
	Path   string     // Resource path
	Query  url.Values // Query parameters
	Auth   string     // Authentication info
}

// NewStorageBackendLocation creates a new storage location from a URI string with validation.
func NewStorageBackendLocation(uri string) (StorageBackendLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StorageBackendLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	switch scheme {
	case "file", "s3", "ipfs", "vault":
	default:
		return StorageBackendLocation{}, fmt.Errorf("%w: unsupported storage scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	var auth string
	if parsed.User != nil {
		auth = parsed.User.String()
	}

	return StorageBackendLocation{
		Raw:    uri,
		Scheme: scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		Auth:   auth,
	}, nil
}

// String returns the original URI string.
func (loc StorageBackendLocation) String() string {
	return loc.Raw
}

// GetParam returns a query parameter value.
func (loc StorageBackendLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}

// GetParamBool returns a boolean query parameter value.
func (loc StorageBackendLocation) GetParamBool(name string) bool {
	value := loc.Query.Get(name)
	return value == "true" || value == "1" || value == "yes"
}

// StorageBackend stores opaque bytes and hands back a locator for them.
type StorageBackend interface {
	// Fetch retrieves data by locator. Backends return ErrInvalidLocationURI
	// for locators they do not own.
	Fetch(ctx context.Context, loc Locator) ([]byte, error)

	// Store saves data and returns its locator.
	Store(ctx context.Context, data []byte, contentType ContentType) (Locator, error)

	// Available checks if backend is accessible.
	Available(ctx context.Context) bool

	// Name returns identifier for logging.
	Name() string

	// LocationURI returns URI identifying this backend.
	LocationURI() string
}

// StorageBackendFactory creates storage backends.
type StorageBackendFactory interface {
	// StorageBackendFor creates backend from URI.
	// Supports file://, s3://, ipfs://, vault://
	StorageBackendFor(locationURI StorageBackendLocation) (StorageBackend, error)

	// CreateMultiBackend creates aggregated storage backend.
	CreateMultiBackend(locationURIs []StorageBackendLocation) (StorageBackend, error)

	// WithTLSAuth configures TLS client authentication.
	WithTLSAuth(func() (tls.Certificate, error)) StorageBackendFactory
}
