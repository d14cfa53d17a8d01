package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ruteri/credential-registry-backend/api"
	"github.com/ruteri/credential-registry-backend/interfaces"
	"github.com/ruteri/credential-registry-backend/issuance"
	"github.com/ruteri/credential-registry-backend/verifier"
)

const (
	// defaultMaxUploadSize bounds request bodies when the config leaves it unset (10MB).
	defaultMaxUploadSize = 10 << 20

	// multipartMemory is the part of a multipart body kept in memory.
	multipartMemory = 4 << 20
)

// Issuer runs credential issuance.
type Issuer interface {
	Issue(ctx context.Context, req *issuance.Request) (*issuance.Result, error)
}

// Verifier answers verification lookups.
type Verifier interface {
	VerifyByFile(ctx context.Context, file []byte) (*verifier.Result, error)
	VerifyByMetadataJSON(ctx context.Context, raw []byte) (*verifier.Result, error)
	VerifyByHash(ctx context.Context, kind verifier.HashKind, digest interfaces.Digest) (*verifier.Result, error)
}

// Handler serves the credential API. Records may be nil, in which case
// listing and bundle retrieval answer 503.
type Handler struct {
	issuer     Issuer
	verifier   Verifier
	records    interfaces.RecordStore
	custodians interfaces.CustodianDirectory

	defaultIssuer string
	maxUpload     int64
	log           *slog.Logger
}

func NewHandler(issuer Issuer, verifier Verifier, records interfaces.RecordStore, custodians interfaces.CustodianDirectory, cfg *api.HTTPServerConfig, log *slog.Logger) *Handler {
	maxUpload := cfg.MaxUploadSize
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadSize
	}
	return &Handler{
		issuer:        issuer,
		verifier:      verifier,
		records:       records,
		custodians:    custodians,
		defaultIssuer: cfg.DefaultIssuerID,
		maxUpload:     maxUpload,
		log:           log,
	}
}

// HandleIssue issues one credential.
//
// URL format: POST /api/credentials/issue
// Body: multipart/form-data with a "file" part and a "metadata" JSON field.
// The issuer is taken from the X-Issuer-ID header.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	fileName, file, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	metadataJSON := r.FormValue(api.MetadataField)
	if metadataJSON == "" {
		h.writeError(w, fmt.Errorf("%w: missing %q field", interfaces.ErrValidation, api.MetadataField))
		return
	}
	var metadata interfaces.CredentialMetadata
	dec := json.NewDecoder(strings.NewReader(metadataJSON))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&metadata); err != nil {
		h.writeError(w, fmt.Errorf("%w: invalid metadata: %v", interfaces.ErrValidation, err))
		return
	}

	issuerID := r.Header.Get(api.IssuerIDHeader)
	if issuerID == "" {
		issuerID = h.defaultIssuer
	}

	result, err := h.issuer.Issue(r.Context(), &issuance.Request{
		Metadata: metadata,
		File:     file,
		FileName: fileName,
		IssuerID: issuerID,
	})
	if err != nil {
		h.log.Error("Issuance failed", "err", err, "credentialNo", metadata.CredentialNo, "issuer", issuerID)
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, issueResponse(result))
}

// HandleVerify looks up a client-computed hash.
//
// URL format: GET /api/credentials/verify?fileHash=<hex> or ?jsonHash=<hex>
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	fileHash, jsonHash := query.Get(string(verifier.FileHash)), query.Get(string(verifier.JSONHash))

	var kind verifier.HashKind
	var raw string
	switch {
	case fileHash != "" && jsonHash != "":
		h.writeError(w, fmt.Errorf("%w: pass either fileHash or jsonHash, not both", interfaces.ErrValidation))
		return
	case fileHash != "":
		kind, raw = verifier.FileHash, fileHash
	case jsonHash != "":
		kind, raw = verifier.JSONHash, jsonHash
	default:
		h.writeError(w, fmt.Errorf("%w: fileHash or jsonHash is required", interfaces.ErrValidation))
		return
	}

	digest, err := interfaces.NewDigestFromHex(raw)
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: %s: %v", interfaces.ErrValidation, kind, err))
		return
	}

	result, err := h.verifier.VerifyByHash(r.Context(), kind, digest)
	h.writeVerify(w, result, err)
}

// HandleVerifyFile hashes the uploaded file server-side.
//
// URL format: POST /api/credentials/verify/file
// Body: multipart/form-data with a "file" part, or the raw file.
func (h *Handler) HandleVerifyFile(w http.ResponseWriter, r *http.Request) {
	_, file, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	result, err := h.verifier.VerifyByFile(r.Context(), file)
	h.writeVerify(w, result, err)
}

// HandleVerifyMetadata canonicalizes and hashes a metadata object server-side.
//
// URL format: POST /api/credentials/verify/metadata
// Body: JSON object
func (h *Handler) HandleVerifyMetadata(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		h.writeError(w, err)
		return
	}
	result, err := h.verifier.VerifyByMetadataJSON(r.Context(), body)
	h.writeVerify(w, result, err)
}

// HandleListCredentials lists issuance records, newest first.
//
// URL format: GET /api/credentials?recipient=&issuer=&limit=
func (h *Handler) HandleListCredentials(w http.ResponseWriter, r *http.Request) {
	if h.records == nil {
		h.writeError(w, fmt.Errorf("%w: record store is not configured", interfaces.ErrBackendUnavailable))
		return
	}

	query := r.URL.Query()
	filter := interfaces.RecordFilter{
		Recipient: query.Get("recipient"),
		IssuerID:  query.Get("issuer"),
	}
	if limit := query.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			h.writeError(w, fmt.Errorf("%w: limit must be a non-negative integer", interfaces.ErrValidation))
			return
		}
		filter.Limit = n
	}

	list, err := h.records.List(r.Context(), filter)
	if err != nil {
		h.log.Error("Failed to list credentials", "err", err)
		h.writeError(w, err)
		return
	}

	resp := api.ListCredentialsResponse{Credentials: make([]api.CredentialDetails, 0, len(list))}
	for _, record := range list {
		resp.Credentials = append(resp.Credentials, api.NewCredentialDetails(record))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleGetBundle returns what custodians need to recover a credential.
//
// URL format: GET /api/credentials/{fileHash}/bundle
func (h *Handler) HandleGetBundle(w http.ResponseWriter, r *http.Request) {
	if h.records == nil {
		h.writeError(w, fmt.Errorf("%w: record store is not configured", interfaces.ErrBackendUnavailable))
		return
	}

	fileHash, err := interfaces.NewDigestFromHex(chi.URLParam(r, "fileHash"))
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: fileHash: %v", interfaces.ErrValidation, err))
		return
	}

	record, err := h.records.GetByContentHash(r.Context(), fileHash)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, record.Bundle())
}

// HandleListCustodians returns the public custodian directory.
//
// URL format: GET /api/custodians
func (h *Handler) HandleListCustodians(w http.ResponseWriter, r *http.Request) {
	list, err := h.custodians.ListCustodians(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, api.ListCustodiansResponse{Custodians: list})
}

// readUpload reads the "file" part of a multipart body, or the whole body
// for other content types.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return "", nil, err
		}
		if len(data) == 0 {
			return "", nil, fmt.Errorf("%w: empty request body", interfaces.ErrValidation)
		}
		return "", data, nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("%w: invalid multipart body: %v", interfaces.ErrValidation, err)
	}

	part, header, err := r.FormFile(api.FileField)
	if err != nil {
		return "", nil, fmt.Errorf("%w: missing %q part", interfaces.ErrValidation, api.FileField)
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		return "", nil, err
	}
	if len(data) == 0 {
		return "", nil, fmt.Errorf("%w: uploaded file is empty", interfaces.ErrValidation)
	}
	return header.Filename, data, nil
}

func (h *Handler) writeVerify(w http.ResponseWriter, result *verifier.Result, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !result.Valid {
		h.writeJSON(w, http.StatusNotFound, api.VerifyResponse{Valid: false, Message: api.NotFoundMessage})
		return
	}

	resp := api.VerifyResponse{Valid: true, OnChain: result.OnChain}
	if result.Details != nil {
		details := api.NewCredentialDetails(result.Details)
		resp.Details = &details
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	h.writeJSON(w, status, api.ErrorResponse{Error: message})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, interfaces.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrAlreadyRegistered):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrOutcomeUnknown):
		return http.StatusGatewayTimeout
	case errors.Is(err, interfaces.ErrExternalUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func issueResponse(result *issuance.Result) api.IssueResponse {
	resp := api.IssueResponse{
		RecordID:        result.RecordID,
		FileHash:        result.FileHash,
		JSONHash:        result.JSONHash,
		IV:              result.IV,
		AuthTag:         result.AuthTag,
		CID:             result.Locator,
		BundleCID:       result.BundleLocator,
		TxID:            result.TransactionID,
		EncryptedShares: result.SealedShares,
		Threshold:       result.Threshold,
	}
	if d := result.Degradation; d != nil {
		resp.Degradation = &api.Degradation{Warnings: d.Warnings}
		for _, f := range d.FailedCustodians {
			resp.Degradation.FailedCustodians = append(resp.Degradation.FailedCustodians,
				api.FailedCustodian{CustodianID: f.CustodianID, Reason: f.Reason})
		}
	}
	return resp
}
