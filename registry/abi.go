package registry

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// CredentialRegistryABI is the ABI of the deployed credential registry contract.
const CredentialRegistryABI = `[
  {
    "type": "function",
    "name": "issueCredential",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "fileHash", "type": "bytes32"},
      {"name": "jsonHash", "type": "bytes32"},
      {"name": "cid", "type": "string"}
    ],
    "outputs": [{"name": "", "type": "uint256"}]
  },
  {
    "type": "function",
    "name": "getCredentialByFileHash",
    "stateMutability": "view",
    "inputs": [{"name": "fileHash", "type": "bytes32"}],
    "outputs": [
      {"name": "credId", "type": "uint256"},
      {"name": "issuer", "type": "address"},
      {"name": "fileHash", "type": "bytes32"},
      {"name": "jsonHash", "type": "bytes32"},
      {"name": "cid", "type": "string"},
      {"name": "timestamp", "type": "uint256"}
    ]
  },
  {
    "type": "function",
    "name": "getCredentialByJsonHash",
    "stateMutability": "view",
    "inputs": [{"name": "jsonHash", "type": "bytes32"}],
    "outputs": [
      {"name": "credId", "type": "uint256"},
      {"name": "issuer", "type": "address"},
      {"name": "fileHash", "type": "bytes32"},
      {"name": "jsonHash", "type": "bytes32"},
      {"name": "cid", "type": "string"},
      {"name": "timestamp", "type": "uint256"}
    ]
  },
  {
    "type": "event",
    "name": "CredentialIssued",
    "anonymous": false,
    "inputs": [
      {"name": "credId", "type": "uint256", "indexed": true},
      {"name": "issuer", "type": "address", "indexed": true},
      {"name": "fileHash", "type": "bytes32", "indexed": false},
      {"name": "jsonHash", "type": "bytes32", "indexed": false},
      {"name": "cid", "type": "string", "indexed": false}
    ]
  }
]`

const (
	methodIssue          = "issueCredential"
	methodByFileHash     = "getCredentialByFileHash"
	methodByJsonHash     = "getCredentialByJsonHash"
	eventCredentialIssue = "CredentialIssued"
)

// ParseABI parses CredentialRegistryABI.
func ParseABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(CredentialRegistryABI))
}
