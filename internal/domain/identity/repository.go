package identity

import (
	"context"

	"github.com/google/uuid"
)

// Repository reads users and persists password changes.
type Repository interface {
	// FindByID returns shared.ErrNotFound if absent
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)

	// FindByEmail looks up by normalized email
	FindByEmail(ctx context.Context, email string) (*User, error)

	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]User, error)

	Create(ctx context.Context, u *User) error

	// UpdatePassword persists PasswordHash and PasswordChangedAt with a version check
	UpdatePassword(ctx context.Context, u *User) error
}
