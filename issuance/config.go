package issuance

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ruteri/credential-registry-backend/interfaces"
	"github.com/ruteri/credential-registry-backend/kms"
)

// RetryConfig bounds an exponential backoff.
type RetryConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (r RetryConfig) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if r.InitialInterval > 0 {
		b.InitialInterval = r.InitialInterval
	}
	if r.MaxInterval > 0 {
		b.MaxInterval = r.MaxInterval
	}
	b.MaxElapsedTime = 0
	return backoff.WithMaxRetries(b, r.MaxRetries)
}

// Config holds issuance parameters. Every timeout is explicit.
type Config struct {
	Threshold   int
	TotalShares int
	// MinSealedShares is the fewest sealed shares an issuance may publish
	// with. Zero means Threshold.
	MinSealedShares int

	StorageTimeout  time.Duration
	RegistryTimeout time.Duration
	PersistTimeout  time.Duration

	RegistryRetry RetryConfig
	PersistRetry  RetryConfig
}

// DefaultConfig returns a 2-of-3 configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:       kms.DefaultThreshold,
		TotalShares:     kms.DefaultTotalShares,
		MinSealedShares: kms.DefaultThreshold,
		StorageTimeout:  30 * time.Second,
		RegistryTimeout: 2 * time.Minute,
		PersistTimeout:  30 * time.Second,
		RegistryRetry:   RetryConfig{MaxRetries: 3, InitialInterval: 500 * time.Millisecond, MaxInterval: 5 * time.Second},
		PersistRetry:    RetryConfig{MaxRetries: 3, InitialInterval: 200 * time.Millisecond, MaxInterval: 2 * time.Second},
	}
}

// Validate checks share parameters and timeouts.
func (c *Config) Validate() error {
	if err := kms.ValidateParameters(c.TotalShares, c.Threshold); err != nil {
		return err
	}
	if c.MinSealedShares == 0 {
		c.MinSealedShares = c.Threshold
	}
	if c.MinSealedShares < c.Threshold || c.MinSealedShares > c.TotalShares {
		return fmt.Errorf("%w: minimum sealed shares %d must be between threshold %d and total %d",
			interfaces.ErrInvalidParameters, c.MinSealedShares, c.Threshold, c.TotalShares)
	}
	if c.StorageTimeout <= 0 || c.RegistryTimeout <= 0 || c.PersistTimeout <= 0 {
		return fmt.Errorf("%w: storage, registry and persist timeouts must be positive", interfaces.ErrInvalidParameters)
	}
	return nil
}
