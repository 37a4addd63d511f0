package order

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/techdigits/backend/internal/domain/shared"
)

// Repository defines persistence for orders.
type Repository interface {
	// FindByID loads an order with its items. Returns shared.ErrNotFound if absent.
	FindByID(ctx context.Context, id uuid.UUID) (*Order, error)

	// FindByUser lists the orders of a user, newest first, optionally
	// filtered by status ("status" key).
	FindByUser(ctx context.Context, userID uuid.UUID, filter shared.Filter) ([]Order, int64, error)

	// FindAll lists every order, optionally filtered by status ("status" key).
	FindAll(ctx context.Context, filter shared.Filter) ([]Order, int64, error)

	// Create inserts a new order with its items.
	Create(ctx context.Context, o *Order) error

	// TransitionToPaid flips the stored status from pending to paid with a
	// conditional update. When the stored status is no longer pending it
	// returns a CONFLICT error carrying the status observed after the failed
	// update.
	TransitionToPaid(ctx context.Context, id uuid.UUID, now time.Time) error

	// MarkOtpVerified sets the otp_verified flag.
	MarkOtpVerified(ctx context.Context, id uuid.UUID, verified bool) error

	// SaveStatus persists a status change made through the aggregate, guarded by version.
	SaveStatus(ctx context.Context, o *Order) error
}

// PriceCatalog resolves current product prices for the order-creation
// snapshot. Products themselves are managed elsewhere.
type PriceCatalog interface {
	// Prices returns the unit price of each known product. Unknown ids are
	// absent from the map.
	Prices(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error)
}
