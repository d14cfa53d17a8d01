// Package main (cmd/custodian) is the custodian-side tool.
//
// keygen creates a custodian RSA key pair and prints the directory entry the
// server's --custodians-file expects:
//
//	custodian keygen --id 00000000-0000-0000-0000-000000000001 \
//	    --name "Custodian Alpha" --out-dir ./keys --directory ./custodians.json
//
// unseal decrypts this custodian's share of one credential key locally. The
// private key never leaves the custodian's machine; only the hex share is
// handed to whoever runs the recovery:
//
//	custodian unseal --id 00000000-0000-0000-0000-000000000001 \
//	    --key ./keys/00000000-0000-0000-0000-000000000001.key.pem \
//	    --server http://127.0.0.1:8080 --file-hash <fileHash>
package main
