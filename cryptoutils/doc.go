// Package cryptoutils implements the credential protection primitives:
//
//   - content and metadata hashing, with a canonical JSON encoding that is
//     byte-identical to the browser client's JSON.stringify with sorted keys
//   - AES-256-GCM envelope encryption with a detached 128-bit tag
//   - RSA-OAEP (SHA-256) sealing of Shamir shares for custodians
//
// Every function is pure apart from reading crypto/rand. Errors wrap the
// categories defined in the interfaces package.
package cryptoutils
