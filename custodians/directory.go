// Package custodians holds the directory of share custodians. Only public
// keys are ever known here.
package custodians

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ruteri/credential-registry-backend/cryptoutils"
	"github.com/ruteri/credential-registry-backend/interfaces"
)

// StaticDirectory is a fixed, validated list of custodians in directory order.
type StaticDirectory struct {
	custodians []interfaces.Custodian
	keys       map[string]*rsa.PublicKey
}

// NewStaticDirectory validates every custodian and keeps them in the given order.
// IDs must be unique and every public key must be RSA of at least 2048 bits.
func NewStaticDirectory(list []interfaces.Custodian) (*StaticDirectory, error) {
	keys := make(map[string]*rsa.PublicKey, len(list))
	for i, c := range list {
		if strings.TrimSpace(c.ID) == "" {
			return nil, fmt.Errorf("%w: custodian %d has no id", interfaces.ErrValidation, i)
		}
		if _, dup := keys[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate custodian id %s", interfaces.ErrValidation, c.ID)
		}
		pub, err := cryptoutils.ParseRSAPublicKeyPEM([]byte(c.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("custodian %s: %w", c.ID, err)
		}
		keys[c.ID] = pub
	}

	return &StaticDirectory{
		custodians: append([]interfaces.Custodian(nil), list...),
		keys:       keys,
	}, nil
}

// LoadDirectory reads a JSON array of {id, name, publicKey, endpoint}.
func LoadDirectory(r io.Reader) (*StaticDirectory, error) {
	var list []interfaces.Custodian
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("%w: invalid custodian directory: %v", interfaces.ErrValidation, err)
	}
	return NewStaticDirectory(list)
}

// LoadDirectoryFile reads a custodian directory from path.
func LoadDirectoryFile(path string) (*StaticDirectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open custodian directory: %w", err)
	}
	defer f.Close()
	return LoadDirectory(f)
}

// ListCustodians returns a copy of the directory.
func (d *StaticDirectory) ListCustodians(ctx context.Context) ([]interfaces.Custodian, error) {
	return append([]interfaces.Custodian(nil), d.custodians...), nil
}

// PublicKey returns the parsed key for a custodian.
func (d *StaticDirectory) PublicKey(id string) (*rsa.PublicKey, bool) {
	pub, ok := d.keys[id]
	return pub, ok
}

// Len returns the number of custodians.
func (d *StaticDirectory) Len() int {
	return len(d.custodians)
}
