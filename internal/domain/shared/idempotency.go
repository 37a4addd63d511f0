package shared

import (
	"context"
	"time"
)

// IdempotencyStore records keys that have already been claimed so that a
// replayed request or a single-use token is processed at most once.
type IdempotencyStore interface {
	// Claim marks key as used for ttl. It returns true if the key was newly
	// claimed, false if it was already claimed.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release forgets key so that it can be claimed again. Releasing an
	// unclaimed key is not an error.
	Release(ctx context.Context, key string) error

	// IsClaimed checks if key has already been claimed.
	IsClaimed(ctx context.Context, key string) (bool, error)

	// Close releases resources held by the store.
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is how long a claimed key is remembered. Default: 24 hours
	TTL time.Duration
	// Enabled determines whether idempotency checking is enabled
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
