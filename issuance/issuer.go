// Package issuance runs the credential protection protocol: hash, encrypt,
// split, seal, publish and persist.
package issuance

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ruteri/credential-registry-backend/cryptoutils"
	"github.com/ruteri/credential-registry-backend/interfaces"
	"github.com/ruteri/credential-registry-backend/kms"
	"github.com/ruteri/credential-registry-backend/metrics"
)

// Dependencies are the collaborators of an Issuer. Registry, Storage and
// Custodians are required.
type Dependencies struct {
	Registry   interfaces.CredentialRegistry
	Storage    interfaces.StorageBackend
	Custodians interfaces.CustodianDirectory
	// Records is optional. Without it issuance records are not kept.
	Records interfaces.RecordStore
	// Recipients is optional. Without it any well-formed address is accepted.
	Recipients interfaces.RecipientResolver
	Metrics    *metrics.Metrics
	Log        *slog.Logger
}

// Request is one credential to issue.
type Request struct {
	Metadata interfaces.CredentialMetadata
	File     []byte
	FileName string `validate:"max=255"`
	IssuerID string `validate:"max=256"`
}

// FailedCustodian is a custodian whose share could not be sealed.
type FailedCustodian struct {
	CustodianID string `json:"custodianId"`
	Reason      string `json:"reason"`
}

// Degradation describes reduced recoverability or lost bookkeeping of an
// otherwise successful issuance.
type Degradation struct {
	FailedCustodians []FailedCustodian `json:"failedCustodians,omitempty"`
	Warnings         []string          `json:"warnings,omitempty"`
}

// Result is the outcome of a successful issuance.
type Result struct {
	RecordID      string                   `json:"recordId"`
	FileHash      interfaces.Digest        `json:"fileHash"`
	JSONHash      interfaces.Digest        `json:"jsonHash"`
	IV            string                   `json:"iv"`
	AuthTag       string                   `json:"authTag"`
	Locator       interfaces.Locator       `json:"cid"`
	BundleLocator interfaces.Locator       `json:"bundleCid,omitempty"`
	TransactionID interfaces.TransactionID `json:"txId"`
	SealedShares  []interfaces.SealedShare `json:"encryptedShares"`
	Threshold     int                      `json:"threshold"`
	Stage         Stage                    `json:"-"`
	Degradation   *Degradation             `json:"degradation,omitempty"`
}

// Issuer issues credentials. It is safe for concurrent use.
type Issuer struct {
	cfg      Config
	deps     Dependencies
	validate *validator.Validate
	log      *slog.Logger
}

// New validates cfg and deps and returns an Issuer.
func New(cfg Config, deps Dependencies) (*Issuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Registry == nil || deps.Storage == nil || deps.Custodians == nil {
		return nil, errors.New("issuance: registry, storage and custodian directory are required")
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	return &Issuer{
		cfg:      cfg,
		deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log.With("component", "issuance"),
	}, nil
}

// Issue runs the full protocol for req. Once the registry write is
// acknowledged the credential is issued, whatever happens to the
// bookkeeping that follows; such failures are reported in
// Result.Degradation.
func (i *Issuer) Issue(ctx context.Context, req *Request) (*Result, error) {
	result, err := i.issue(ctx, req)
	if err != nil {
		stage, _ := FailedStage(err)
		i.deps.Metrics.IssuanceFinished(stage.String(), "failed")
		i.log.Warn("issuance failed", "stage", stage.String(), "err", err)
		return nil, err
	}

	outcome := "success"
	if result.Degradation != nil {
		outcome = "degraded"
		i.deps.Metrics.Degraded()
	}
	i.deps.Metrics.IssuanceFinished(StageDone.String(), outcome)
	return result, nil
}

type sealedSet struct {
	shares []interfaces.SealedShare
	failed []FailedCustodian
}

func (i *Issuer) issue(ctx context.Context, req *Request) (*Result, error) {
	// Preparing
	start := time.Now()
	custodians, metadataHash, err := i.prepare(ctx, req)
	if err != nil {
		return nil, fail(StagePreparing, err)
	}
	i.deps.Metrics.ObserveStage(StagePreparing.String(), start)

	// Encrypting
	start = time.Now()
	if err := ctx.Err(); err != nil {
		return nil, fail(StageEncrypting, err)
	}
	contentHash := cryptoutils.HashContent(req.File)
	key, err := cryptoutils.NewCipherKey()
	if err != nil {
		return nil, fail(StageEncrypting, err)
	}
	defer cryptoutils.Wipe(key)
	nonce, err := cryptoutils.NewNonce()
	if err != nil {
		return nil, fail(StageEncrypting, err)
	}
	ciphertext, tag, err := cryptoutils.Encrypt(req.File, key, nonce)
	if err != nil {
		return nil, fail(StageEncrypting, err)
	}
	i.deps.Metrics.ObserveStage(StageEncrypting.String(), start)

	// Splitting
	start = time.Now()
	shares, err := kms.Split(key, i.cfg.TotalShares, i.cfg.Threshold)
	cryptoutils.Wipe(key)
	if err != nil {
		return nil, fail(StageSplitting, err)
	}
	i.deps.Metrics.ObserveStage(StageSplitting.String(), start)

	// Sealing
	start = time.Now()
	sealed := i.sealShares(ctx, custodians, shares)
	for _, share := range shares {
		cryptoutils.Wipe(share)
	}
	if len(sealed.shares) < i.cfg.MinSealedShares {
		return nil, fail(StageSealing, fmt.Errorf("%w: sealed %d of %d shares, need at least %d",
			interfaces.ErrCryptographic, len(sealed.shares), len(custodians), i.cfg.MinSealedShares))
	}
	i.deps.Metrics.ObserveStage(StageSealing.String(), start)

	// Publishing
	start = time.Now()
	locator, err := i.storeCiphertext(ctx, ciphertext)
	if err != nil {
		return nil, fail(StagePublishing, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fail(StagePublishing, fmt.Errorf("issuance cancelled before registration: %w", err))
	}

	var degradation Degradation
	degradation.FailedCustodians = sealed.failed
	for _, f := range sealed.failed {
		degradation.Warnings = append(degradation.Warnings,
			fmt.Sprintf("share for custodian %s was not sealed: %s", f.CustodianID, f.Reason))
	}
	result := &Result{
		RecordID:     uuid.NewString(),
		FileHash:     contentHash,
		JSONHash:     metadataHash,
		IV:           hex.EncodeToString(nonce),
		AuthTag:      hex.EncodeToString(tag),
		Locator:      locator,
		SealedShares: sealed.shares,
		Threshold:    i.cfg.Threshold,
		Stage:        StagePublishing,
	}

	txID, err := i.register(ctx, contentHash, metadataHash, locator)
	if err != nil {
		if errors.Is(err, interfaces.ErrOutcomeUnknown) {
			err = i.keepPending(ctx, req, result, txID, degradation.Warnings, err)
		}
		return nil, fail(StagePublishing, err)
	}
	i.deps.Metrics.ObserveStage(StagePublishing.String(), start)

	i.log.Info("credential registered",
		"fileHash", contentHash.String(),
		"jsonHash", metadataHash.String(),
		"cid", locator.String(),
		"txId", string(txID))

	result.TransactionID = txID
	result.Stage = StagePersisting

	// Persisting runs after commit and must not be abandoned with the caller.
	start = time.Now()
	degradation.Warnings = i.persist(context.WithoutCancel(ctx), req, result, degradation.Warnings)
	i.deps.Metrics.ObserveStage(StagePersisting.String(), start)

	result.Stage = StageDone
	if len(degradation.Warnings) > 0 || len(degradation.FailedCustodians) > 0 {
		result.Degradation = &degradation
	}
	return result, nil
}

func (i *Issuer) prepare(ctx context.Context, req *Request) ([]interfaces.Custodian, interfaces.Digest, error) {
	if req == nil {
		return nil, interfaces.Digest{}, fmt.Errorf("%w: request is nil", interfaces.ErrValidation)
	}
	if len(req.File) == 0 {
		return nil, interfaces.Digest{}, fmt.Errorf("%w: credential file is empty", interfaces.ErrValidation)
	}
	if err := i.validate.Struct(req); err != nil {
		return nil, interfaces.Digest{}, fmt.Errorf("%w: %v", interfaces.ErrValidation, err)
	}

	metadataHash, err := cryptoutils.HashMetadata(&req.Metadata)
	if err != nil {
		return nil, interfaces.Digest{}, err
	}

	if i.deps.Recipients != nil {
		ok, err := i.deps.Recipients.ResolveRecipient(ctx, req.Metadata.StudentEmail)
		if err != nil {
			return nil, interfaces.Digest{}, fmt.Errorf("%w: failed to resolve recipient: %v", interfaces.ErrExternalUnavailable, err)
		}
		if !ok {
			return nil, interfaces.Digest{}, fmt.Errorf("%w: unknown recipient %s", interfaces.ErrValidation, req.Metadata.StudentEmail)
		}
	}

	custodians, err := i.deps.Custodians.ListCustodians(ctx)
	if err != nil {
		return nil, interfaces.Digest{}, fmt.Errorf("%w: failed to list custodians: %v", interfaces.ErrExternalUnavailable, err)
	}
	if len(custodians) < i.cfg.TotalShares {
		return nil, interfaces.Digest{}, fmt.Errorf("%w: %d custodians registered, %d required",
			interfaces.ErrValidation, len(custodians), i.cfg.TotalShares)
	}
	if len(custodians) > i.cfg.TotalShares {
		i.log.Warn("more custodians registered than shares issued, using the first ones",
			"registered", len(custodians), "shares", i.cfg.TotalShares)
	}
	return custodians[:i.cfg.TotalShares], metadataHash, nil
}

// sealShares seals share i for custodian i. Failures are collected, not
// returned, so the caller can decide whether the set is still usable.
func (i *Issuer) sealShares(ctx context.Context, custodians []interfaces.Custodian, shares [][]byte) sealedSet {
	results := make([]*interfaces.SealedShare, len(custodians))
	errs := make([]error, len(custodians))

	var g errgroup.Group
	for idx := range custodians {
		g.Go(func() error {
			c := custodians[idx]
			if err := ctx.Err(); err != nil {
				errs[idx] = err
				return nil
			}
			pub, err := cryptoutils.ParseRSAPublicKeyPEM([]byte(c.PublicKeyPEM))
			if err != nil {
				errs[idx] = err
				return nil
			}
			sealed, err := cryptoutils.SealShare(shares[idx], pub)
			if err != nil {
				errs[idx] = err
				return nil
			}
			results[idx] = &interfaces.SealedShare{
				CustodianID:    c.ID,
				EncryptedShare: cryptoutils.EncodeSealedShare(sealed),
			}
			return nil
		})
	}
	_ = g.Wait()

	var set sealedSet
	for idx, c := range custodians {
		if errs[idx] != nil {
			i.deps.Metrics.SealFailed()
			i.log.Error("failed to seal share", "custodianId", c.ID, "err", errs[idx])
			set.failed = append(set.failed, FailedCustodian{CustodianID: c.ID, Reason: errs[idx].Error()})
			continue
		}
		set.shares = append(set.shares, *results[idx])
	}
	return set
}

func (i *Issuer) storeCiphertext(ctx context.Context, ciphertext []byte) (interfaces.Locator, error) {
	storeCtx, cancel := context.WithTimeout(ctx, i.cfg.StorageTimeout)
	defer cancel()

	locator, err := i.deps.Storage.Store(storeCtx, ciphertext, interfaces.CiphertextType)
	if err != nil {
		if !errors.Is(err, interfaces.ErrExternalUnavailable) {
			err = fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
		}
		return "", fmt.Errorf("ciphertext upload failed: %w", err)
	}
	return locator, nil
}

// register retries only writes that were confirmed not sent. The returned
// transaction ID is set whenever a transaction was sent, even on error.
func (i *Issuer) register(ctx context.Context, contentHash, metadataHash interfaces.Digest, locator interfaces.Locator) (interfaces.TransactionID, error) {
	var txID interfaces.TransactionID
	attempt := 0

	op := func() error {
		attempt++
		regCtx, cancel := context.WithTimeout(ctx, i.cfg.RegistryTimeout)
		defer cancel()

		id, err := i.deps.Registry.Register(regCtx, contentHash, metadataHash, locator)
		txID = id
		if err == nil {
			return nil
		}
		if errors.Is(err, interfaces.ErrBackendUnavailable) {
			i.log.Warn("registry write not sent, retrying", "attempt", attempt, "err", err)
			return err
		}
		return backoff.Permanent(err)
	}

	if err := backoff.Retry(op, backoff.WithContext(i.cfg.RegistryRetry.backOff(), ctx)); err != nil {
		return txID, err
	}
	return txID, nil
}

// keepPending stores the recovery bundle and a flagged record for a write
// that may still land. The key is already gone, so without them a credential
// registered later could never be recovered.
func (i *Issuer) keepPending(ctx context.Context, req *Request, result *Result, txID interfaces.TransactionID, warnings []string, cause error) error {
	result.TransactionID = txID
	warnings = append(warnings, fmt.Sprintf("registry outcome unknown, verify fileHash %s before retrying: %v", result.FileHash, cause))
	i.persist(context.WithoutCancel(ctx), req, result, warnings)

	i.log.Warn("registry outcome unknown, recovery data kept",
		"fileHash", result.FileHash.String(),
		"txId", string(txID),
		"bundleCid", result.BundleLocator.String())
	if result.BundleLocator == "" {
		return cause
	}
	return fmt.Errorf("%w (recovery bundle stored at %s)", cause, result.BundleLocator)
}

// persist stores the recovery bundle and the issuance record. It returns
// warnings extended with anything that could not be saved.
func (i *Issuer) persist(ctx context.Context, req *Request, result *Result, warnings []string) []string {
	record := &interfaces.IssuanceRecord{
		ID:            result.RecordID,
		Metadata:      req.Metadata,
		IssuerID:      req.IssuerID,
		FileName:      req.FileName,
		ContentHash:   result.FileHash,
		MetadataHash:  result.JSONHash,
		Locator:       result.Locator,
		IV:            result.IV,
		AuthTag:       result.AuthTag,
		SealedShares:  result.SealedShares,
		Threshold:     result.Threshold,
		TransactionID: result.TransactionID,
		IssuedAt:      time.Now().UTC(),
	}

	bundle, err := json.Marshal(record.Bundle())
	if err == nil {
		err = i.withPersistRetry(ctx, func(ctx context.Context) error {
			loc, err := i.deps.Storage.Store(ctx, bundle, interfaces.BundleType)
			if err != nil {
				return err
			}
			result.BundleLocator = loc
			return nil
		})
	}
	if err != nil {
		i.log.Error("failed to store recovery bundle", "fileHash", result.FileHash.String(), "err", err)
		warnings = append(warnings, fmt.Sprintf("recovery bundle not stored: %v", err))
	}
	record.BundleLocator = result.BundleLocator

	if i.deps.Records == nil {
		return warnings
	}

	record.Warnings = append([]string(nil), warnings...)
	err = i.withPersistRetry(ctx, func(ctx context.Context) error {
		return i.deps.Records.SaveIssuance(ctx, record)
	})
	if err != nil {
		i.log.Error("failed to save issuance record", "fileHash", result.FileHash.String(), "err", err)
		warnings = append(warnings, fmt.Sprintf("issuance record not saved: %v", err))
	}
	return warnings
}

func (i *Issuer) withPersistRetry(ctx context.Context, fn func(context.Context) error) error {
	op := func() error {
		opCtx, cancel := context.WithTimeout(ctx, i.cfg.PersistTimeout)
		defer cancel()
		return fn(opCtx)
	}
	return backoff.Retry(op, backoff.WithContext(i.cfg.PersistRetry.backOff(), ctx))
}
