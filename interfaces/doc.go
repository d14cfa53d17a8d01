// Package interfaces defines core interfaces and types for the credential
// registry, separating contracts from implementations.
//
// # Collaborator Interfaces
//
// CredentialRegistry: the append-only on-chain registry mapping content hashes
// and metadata hashes to verification records.
//
// StorageBackend: storage of opaque ciphertexts and recovery bundles across
// multiple backend types (file, S3, IPFS, Vault).
//
// CustodianDirectory: read-only list of custodians and their RSA public keys.
//
// RecordStore: best-effort off-chain store of issuance records and sealed
// shares, used for listing and display only.
//
// # Types
//
//   - Digest: 32-byte SHA-256 digest used for fileHash and jsonHash
//   - CredentialMetadata: the structured fields covered by the metadata hash
//   - SealedShare: one Shamir share encrypted for one custodian
//   - VerificationRecord: the on-chain record for an issued credential
//
// # Errors
//
// Errors form a small taxonomy (validation, cryptographic, external,
// not-found, duplicate) matched with errors.Is.
package interfaces
