// Package main (cmd/httpserver) runs the credential registry server.
//
// The server issues credentials (hash, encrypt, split the key among
// custodians, publish to object storage and the on-chain registry) and
// answers verification queries. Without --registry-contract it runs against
// an in-memory registry, which is only suitable for development.
//
// Example usage:
//
//	credential-server --rpc-addr=http://localhost:8545 \
//	    --registry-contract=0x5FbDB2315678afecb367f032d93F642f64180aa3 \
//	    --issuer-key=$CREDREG_ISSUER_KEY \
//	    --storage=file://./data/storage \
//	    --storage=ipfs://127.0.0.1:5001 \
//	    --records-dir=./data/records \
//	    --custodians-file=./custodians.json
//
// Every flag can also be set through a CREDREG_* environment variable.
package main
