package otp

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence for challenges.
type Repository interface {
	// FindLatest returns the most recently created challenge for key, or
	// shared.ErrNotFound.
	FindLatest(ctx context.Context, key Key) (*Challenge, error)

	// FindLatestVerified returns the most recent verified challenge for key
	// verified at or after since, or shared.ErrNotFound.
	FindLatestVerified(ctx context.Context, key Key, since time.Time) (*Challenge, error)

	// FindHistory returns every challenge for key last sent at or after
	// since, newest first.
	FindHistory(ctx context.Context, key Key, since time.Time) ([]Challenge, error)

	// Replace deletes every unverified challenge for the key of c and inserts
	// c, atomically. A concurrent replace for the same key that commits first
	// makes this call fail with a CONFLICT error.
	Replace(ctx context.Context, c *Challenge) error

	// MarkVerified sets verified=true only if the stored challenge is still
	// unverified. It returns false when another caller verified it first.
	MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)

	// DeleteByKey removes every challenge of key.
	DeleteByKey(ctx context.Context, key Key) (int64, error)

	// DeleteStale removes challenges that expired before now without being
	// verified, and verified challenges verified before verifiedBefore.
	DeleteStale(ctx context.Context, now, verifiedBefore time.Time) (expired int64, verified int64, err error)
}
