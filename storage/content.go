package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ruteri/credential-registry-backend/interfaces"
)

// ErrIntegrity is returned when fetched bytes do not hash to the key in their locator.
var ErrIntegrity = fmt.Errorf("%w: stored content does not match its locator", interfaces.ErrCryptographic)

// contentKey is the hex SHA-256 of data, used as the object key by the
// key-addressed backends.
func contentKey(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// verifyContent checks data against the key it was stored under.
func verifyContent(data []byte, key string) error {
	if contentKey(data) != strings.ToLower(key) {
		return fmt.Errorf("%w: expected %s", ErrIntegrity, key)
	}
	return nil
}

// isContentKey reports whether s looks like a key produced by contentKey.
func isContentKey(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// splitKeyPath splits ".../<type>/<key>" into its content type directory
// and key.
func splitKeyPath(p string) (typeDir, key string, err error) {
	p = strings.Trim(p, "/")
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return "", "", fmt.Errorf("%w: locator path %q has no content type", interfaces.ErrInvalidLocationURI, p)
	}
	key = p[idx+1:]
	if !isContentKey(key) {
		return "", "", fmt.Errorf("%w: locator key %q is not a content hash", interfaces.ErrInvalidLocationURI, key)
	}
	rest := p[:idx]
	typeDir = rest[strings.LastIndex(rest, "/")+1:]
	return typeDir, key, nil
}
