// Package kms splits credential keys among custodians and reconstructs them
// during recovery.
//
// # Splitting
//
// Split and Combine wrap hashicorp/vault's Shamir implementation over
// GF(2^8). Each share is len(secret)+1 bytes: one polynomial evaluation per
// secret byte followed by the share's x coordinate. With the default
// parameters (K=2, N=3) any two custodians can recover a key and no single
// custodian learns anything about it.
//
// # Recovery
//
// RecoverySession collects unsealed shares from custodians. Once the bundle's
// threshold is reached the key is reconstructed, the raw shares are wiped and
// the session can decrypt the credential ciphertext. Decryption checks the
// AES-GCM tag and then the content hash recorded on-chain.
//
//	session, _ := kms.NewRecoverySession(bundle)
//	_ = session.SubmitShare("custodian-a", shareA)
//	_ = session.SubmitShare("custodian-b", shareB)
//	plaintext, err := session.Decrypt(ciphertext)
package kms
