package kms

import (
	"fmt"

	"github.com/hashicorp/vault/shamir"
	"github.com/ruteri/credential-registry-backend/interfaces"
)

const (
	// DefaultThreshold is the number of custodians needed to recover a key.
	DefaultThreshold = 2
	// DefaultTotalShares is the number of custodians a key is split among.
	DefaultTotalShares = 3

	maxShares = 255
)

// ValidateParameters checks 1 <= threshold <= total <= 255.
func ValidateParameters(total, threshold int) error {
	if total <= 0 || threshold <= 0 {
		return fmt.Errorf("%w: total (%d) and threshold (%d) must be positive", interfaces.ErrInvalidParameters, total, threshold)
	}
	if threshold > total {
		return fmt.Errorf("%w: threshold %d exceeds total shares %d", interfaces.ErrInvalidParameters, threshold, total)
	}
	if total > maxShares {
		return fmt.Errorf("%w: at most %d shares are supported", interfaces.ErrInvalidParameters, maxShares)
	}
	return nil
}

// Split divides secret into total shares, any threshold of which reconstruct it.
func Split(secret []byte, total, threshold int) ([][]byte, error) {
	if err := ValidateParameters(total, threshold); err != nil {
		return nil, err
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("%w: cannot split an empty secret", interfaces.ErrInvalidParameters)
	}

	if threshold == 1 {
		// A degree-0 polynomial: every share carries the secret itself.
		shares := make([][]byte, total)
		for i := range shares {
			share := make([]byte, len(secret)+1)
			copy(share, secret)
			share[len(secret)] = byte(i + 1)
			shares[i] = share
		}
		return shares, nil
	}

	shares, err := shamir.Split(secret, total, threshold)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to split secret: %v", interfaces.ErrCryptographic, err)
	}
	return shares, nil
}

// Combine reconstructs the secret from at least threshold shares. Supplying
// fewer shares than the threshold fails explicitly. Inconsistent shares
// produce an unrelated value; callers detect that through the AES-GCM tag.
func Combine(shares [][]byte, threshold int) ([]byte, error) {
	if threshold <= 0 {
		return nil, fmt.Errorf("%w: threshold must be positive", interfaces.ErrInvalidParameters)
	}
	if len(shares) < threshold {
		return nil, fmt.Errorf("%w: need %d shares, got %d", interfaces.ErrInvalidParameters, threshold, len(shares))
	}
	for _, share := range shares {
		if len(share) < 2 || len(share) != len(shares[0]) {
			return nil, fmt.Errorf("%w: shares must be equal length and at least 2 bytes", interfaces.ErrInvalidParameters)
		}
	}

	if len(shares) == 1 {
		secret := make([]byte, len(shares[0])-1)
		copy(secret, shares[0])
		return secret, nil
	}

	secret, err := shamir.Combine(shares)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to combine shares: %v", interfaces.ErrInvalidParameters, err)
	}
	return secret, nil
}
