// Package main (cmd/recovery) recovers credential files and verifies
// credentials from the command line.
//
// recover takes a recovery bundle (from a file or from the server), at least
// threshold unsealed shares produced by `custodian unseal`, and the storage
// backends holding the ciphertext:
//
//	recovery --server http://127.0.0.1:8080 recover --file-hash <fileHash> \
//	    --share 00000000-0000-0000-0000-000000000001=<hex> \
//	    --share 00000000-0000-0000-0000-000000000003=<hex> \
//	    --storage file://./data/storage --out diploma.pdf
//
// The recovered bytes are checked against the registered file hash before
// they are written.
//
// verify hashes locally and asks the server for the registry record:
//
//	recovery verify --file diploma.pdf
//	recovery verify --metadata metadata.json
package main
