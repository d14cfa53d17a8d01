// Package storage provides object storage for credential ciphertexts and
// recovery bundles behind pluggable backends.
//
// Every Store returns an opaque locator, which is what gets written on-chain
// as the credential's cid:
//
//   - file://<dir>/<type>/<sha256 hex> for local development and testing
//   - s3://<bucket>/<prefix>/<type>/<sha256 hex> for S3, Filebase or MinIO
//   - ipfs://<cid> for an IPFS node
//   - vault://<host>/<mount>/<path>/<type>/<sha256 hex> for Vault KV v2
//
// Key-addressed backends verify fetched bytes against the hash in the
// locator and return ErrIntegrity on mismatch. IPFS content is
// authenticated by its CID.
//
// # Backend URI Format
//
// Backends are configured using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// For example:
//
//   - file:///var/lib/credentials
//   - s3://ACCESS_KEY:SECRET_KEY@bucket/prefix?region=us-east-1&endpoint=https://s3.filebase.com&s3ForcePathStyle=true
//   - ipfs://localhost:5001/?timeout=30s
//   - vault://TOKEN@vault.example.com:8200/secret/credentials
//
// # Redundancy
//
// MultiStorageBackend stores to every available backend and returns a
// comma-joined locator with one replica per backend. Fetch tries replicas in
// order, so content stays readable while any one replica is reachable.
//
//	factory := storage.NewStorageBackendFactory(logger)
//	backend, err := factory.CreateMultiBackend(locations)
//	loc, err := backend.Store(ctx, ciphertext, interfaces.CiphertextType)
//	data, err := backend.Fetch(ctx, loc)
package storage
