package storage

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/credential-registry-backend/interfaces"
)

// VaultConfig configures a VaultBackend.
type VaultConfig struct {
	// Address is the Vault server address (e.g. https://vault.example.com:8200).
	Address string
	// MountPath is the KV v2 mount (e.g. "secret").
	MountPath string
	// DataPath is the path within the mount (e.g. "credentials").
	DataPath string
	// Token authenticates requests. If empty the client falls back to VAULT_TOKEN.
	Token string
	// ClientCert enables TLS client certificate authentication.
	ClientCert *tls.Certificate
	Timeout    time.Duration
}

// VaultBackend implements a storage backend using the HashiCorp Vault KV v2 engine.
// Content is base64-encoded under the "content" key.
type VaultBackend struct {
	client      *api.Client
	host        string
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultBackend creates a new Vault storage backend.
func NewVaultBackend(cfg VaultConfig, log *slog.Logger) (*VaultBackend, error) {
	u, err := url.Parse(cfg.Address)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid vault address %q", interfaces.ErrInvalidLocationURI, cfg.Address)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	config := api.DefaultConfig()
	config.Address = cfg.Address
	transport := &http.Transport{TLSClientConfig: &tls.Config{}}
	if cfg.ClientCert != nil {
		transport.TLSClientConfig.Certificates = []tls.Certificate{*cfg.ClientCert}
	}
	config.HttpClient = &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	mountPath := strings.Trim(cfg.MountPath, "/")
	dataPath := strings.Trim(cfg.DataPath, "/")
	if mountPath == "" {
		return nil, fmt.Errorf("%w: vault mount path is required", interfaces.ErrInvalidLocationURI)
	}

	return &VaultBackend{
		client:      client,
		host:        u.Host,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", u.Host, mountPath, dataPath),
	}, nil
}

// Fetch reads the secret a locator points at and checks it against the
// content hash in its path.
func (b *VaultBackend) Fetch(ctx context.Context, loc interfaces.Locator) ([]byte, error) {
	start := time.Now()
	relPath, contentHash, err := b.pathFor(loc)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("%s/data/%s", b.mountPath, relPath)

	secret, err := b.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		b.log.Error("Failed to read from Vault",
			slog.String("path", path),
			"err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	if secret == nil || secret.Data == nil {
		b.log.Debug("Content not found in Vault", slog.String("path", path))
		return nil, fmt.Errorf("%w: %s", interfaces.ErrContentNotFound, loc)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: invalid data format in Vault response", interfaces.ErrBackendUnavailable)
	}
	encoded, ok := data["content"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: content key not found in Vault data", interfaces.ErrBackendUnavailable)
	}
	content, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid content encoding in Vault data", interfaces.ErrBackendUnavailable)
	}
	if err := verifyContent(content, contentHash); err != nil {
		return nil, err
	}

	b.log.Debug("Fetched content from Vault",
		slog.String("path", path),
		slog.Duration("duration", time.Since(start)))

	return content, nil
}

// Store writes data under <dataPath>/<content type>/<sha256 hex>.
func (b *VaultBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.Locator, error) {
	start := time.Now()
	relPath := b.relPath(contentType, contentKey(data))
	path := fmt.Sprintf("%s/data/%s", b.mountPath, relPath)

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"content": base64.StdEncoding.EncodeToString(data),
		},
	}

	if _, err := b.client.Logical().WriteWithContext(ctx, path, secretData); err != nil {
		b.log.Error("Failed to write to Vault",
			slog.String("path", path),
			"err", err)
		return "", fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Stored content in Vault",
		slog.String("path", path),
		slog.Duration("duration", time.Since(start)))

	return interfaces.Locator(fmt.Sprintf("vault://%s/%s/%s", b.host, b.mountPath, relPath)), nil
}

// Available checks that Vault is initialized and unsealed.
func (b *VaultBackend) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := b.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		b.log.Debug("Vault health check failed", "err", err)
		return false
	}

	if !health.Initialized || health.Sealed {
		b.log.Debug("Vault is not available",
			slog.Bool("initialized", health.Initialized),
			slog.Bool("sealed", health.Sealed))
		return false
	}

	return true
}

// Name returns a unique identifier for this storage backend.
func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s-%s", b.mountPath, b.dataPath)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}

func (b *VaultBackend) relPath(contentType interfaces.ContentType, key string) string {
	if b.dataPath == "" {
		return contentType.String() + "/" + key
	}
	return b.dataPath + "/" + contentType.String() + "/" + key
}

func (b *VaultBackend) pathFor(loc interfaces.Locator) (string, string, error) {
	prefix := fmt.Sprintf("vault://%s/%s/", b.host, b.mountPath)
	rel, ok := strings.CutPrefix(loc.String(), prefix)
	if !ok || (b.dataPath != "" && !strings.HasPrefix(rel, b.dataPath+"/")) {
		return "", "", fmt.Errorf("%w: %s is not served by %s", interfaces.ErrInvalidLocationURI, loc, b.locationURI)
	}
	_, key, err := splitKeyPath(rel)
	if err != nil {
		return "", "", err
	}
	return rel, key, nil
}
