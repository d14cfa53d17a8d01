// Package verifier answers whether a credential is registered, by raw file,
// by metadata or by a client-supplied hash. Nothing here mutates state.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ruteri/credential-registry-backend/cryptoutils"
	"github.com/ruteri/credential-registry-backend/interfaces"
	"github.com/ruteri/credential-registry-backend/metrics"
)

// NotFoundMessage is the Result message for credentials absent from the registry.
const NotFoundMessage = "NotFound"

// HashKind selects which registry index a lookup uses.
type HashKind string

const (
	FileHash HashKind = "fileHash"
	JSONHash HashKind = "jsonHash"
)

// ParseHashKind accepts "fileHash" or "jsonHash".
func ParseHashKind(s string) (HashKind, error) {
	switch HashKind(s) {
	case FileHash, JSONHash:
		return HashKind(s), nil
	}
	return "", fmt.Errorf("%w: unknown hash kind %q", interfaces.ErrValidation, s)
}

// Config bounds registry lookups.
type Config struct {
	LookupTimeout time.Duration
	MaxRetries    uint64
	RetryInterval time.Duration
}

// DefaultConfig returns a 10s lookup timeout with two retries.
func DefaultConfig() Config {
	return Config{
		LookupTimeout: 10 * time.Second,
		MaxRetries:    2,
		RetryInterval: 200 * time.Millisecond,
	}
}

// Result is a verification answer. Details are copied from the record
// store when available and are never authoritative.
type Result struct {
	Valid   bool                           `json:"valid"`
	Message string                         `json:"message,omitempty"`
	OnChain *interfaces.VerificationRecord `json:"onChain,omitempty"`
	Details *interfaces.IssuanceRecord     `json:"details,omitempty"`
}

// Resolver answers verification queries from the registry. It never writes.
type Resolver struct {
	cfg      Config
	registry interfaces.CredentialRegistry
	records  interfaces.RecordStore
	metrics  *metrics.Metrics
	log      *slog.Logger
}

// NewResolver creates a resolver. records and m may be nil.
func NewResolver(cfg Config, registry interfaces.CredentialRegistry, records interfaces.RecordStore, m *metrics.Metrics, log *slog.Logger) (*Resolver, error) {
	if registry == nil {
		return nil, errors.New("verifier: registry is required")
	}
	if cfg.LookupTimeout <= 0 {
		return nil, fmt.Errorf("%w: lookup timeout must be positive", interfaces.ErrInvalidParameters)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		cfg:      cfg,
		registry: registry,
		records:  records,
		metrics:  m,
		log:      log.With("component", "verifier"),
	}, nil
}

// VerifyByFile hashes file and looks up the content hash.
func (r *Resolver) VerifyByFile(ctx context.Context, file []byte) (*Result, error) {
	if len(file) == 0 {
		return nil, fmt.Errorf("%w: file is empty", interfaces.ErrValidation)
	}
	return r.VerifyByHash(ctx, FileHash, cryptoutils.HashContent(file))
}

// VerifyByMetadata canonicalizes and hashes m, then looks up the metadata hash.
func (r *Resolver) VerifyByMetadata(ctx context.Context, m *interfaces.CredentialMetadata) (*Result, error) {
	digest, err := cryptoutils.HashMetadata(m)
	if err != nil {
		return nil, err
	}
	return r.VerifyByHash(ctx, JSONHash, digest)
}

// VerifyByMetadataJSON canonicalizes an arbitrary flat JSON object. Key
// order and whitespace of raw do not affect the result.
func (r *Resolver) VerifyByMetadataJSON(ctx context.Context, raw []byte) (*Result, error) {
	canonical, err := cryptoutils.CanonicalizeJSON(raw)
	if err != nil {
		return nil, err
	}
	return r.VerifyByHash(ctx, JSONHash, cryptoutils.HashContent(canonical))
}

// VerifyByHash looks digest up in the registry index named by kind. A
// missing record is a normal answer, not an error.
func (r *Resolver) VerifyByHash(ctx context.Context, kind HashKind, digest interfaces.Digest) (*Result, error) {
	var lookup func(context.Context, interfaces.Digest) (*interfaces.VerificationRecord, error)
	switch kind {
	case FileHash:
		lookup = r.registry.LookupByContentHash
	case JSONHash:
		lookup = r.registry.LookupByMetadataHash
	default:
		return nil, fmt.Errorf("%w: unknown hash kind %q", interfaces.ErrValidation, kind)
	}

	var onChain *interfaces.VerificationRecord
	op := func() error {
		lookupCtx, cancel := context.WithTimeout(ctx, r.cfg.LookupTimeout)
		defer cancel()

		rec, err := lookup(lookupCtx, digest)
		if err == nil {
			onChain = rec
			return nil
		}
		if errors.Is(err, interfaces.ErrExternalUnavailable) {
			r.log.Debug("registry lookup failed, retrying", "kind", kind, "err", err)
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.NewConstantBackOff(r.cfg.RetryInterval)
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, r.cfg.MaxRetries), ctx))
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		r.metrics.Verified(string(kind), "not_found")
		return &Result{Valid: false, Message: NotFoundMessage}, nil
	case err != nil:
		r.metrics.Verified(string(kind), "error")
		return nil, err
	}

	r.metrics.Verified(string(kind), "valid")
	return &Result{
		Valid:   true,
		OnChain: onChain,
		Details: r.details(ctx, onChain),
	}, nil
}

func (r *Resolver) details(ctx context.Context, onChain *interfaces.VerificationRecord) *interfaces.IssuanceRecord {
	if r.records == nil {
		return nil
	}

	detailsCtx, cancel := context.WithTimeout(ctx, r.cfg.LookupTimeout)
	defer cancel()

	record, err := r.records.GetByContentHash(detailsCtx, onChain.ContentHash)
	if err != nil {
		if !errors.Is(err, interfaces.ErrNotFound) {
			r.log.Warn("failed to load issuance details", "fileHash", onChain.ContentHash.String(), "err", err)
		}
		return nil
	}
	return record
}
