// Package registry binds the on-chain credential registry.
//
// The contract is write-once per file hash and exposes two views, one keyed
// by file hash and one by canonical metadata hash:
//
//	issueCredential(bytes32 fileHash, bytes32 jsonHash, string cid) returns (uint256)
//	getCredentialByFileHash(bytes32) returns (uint256, address, bytes32, bytes32, string, uint256)
//	getCredentialByJsonHash(bytes32) returns (uint256, address, bytes32, bytes32, string, uint256)
//
// OnchainCredentialRegistry talks to a deployed contract through any
// go-ethereum bind.ContractBackend. MemoryRegistry gives the same write-once
// semantics in memory, and MockCredentialRegistry is a testify mock.
//
// # Transaction Operations
//
// Register requires transaction signing. Call SetTransactOpts with a keyed
// transactor before issuing:
//
//	reg, err := registry.NewOnchainCredentialRegistry(client, client, contractAddress, log)
//	if err != nil {
//	    return err
//	}
//	privateKey, _ := crypto.HexToECDSA(keyHex)
//	auth, _ := bind.NewKeyedTransactorWithChainID(privateKey, chainID)
//	reg.SetTransactOpts(auth)
//
// Errors follow interfaces. A revert on lookup is ErrRecordNotFound. Register
// signs the transaction before sending it, so failures split by phase:
//
//	building or signing fails           ErrBackendUnavailable (nothing sent)
//	node answers with an explicit error ErrBackendUnavailable (nothing sent)
//	send times out or the link drops    ErrOutcomeUnknown (may land later)
//	receipt never observed              ErrOutcomeUnknown
//	revert with the file hash taken     ErrAlreadyRegistered
//	any other revert                    ErrExternalUnavailable
//
// Only the first two are safe to retry.
package registry
