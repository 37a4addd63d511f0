package payment

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for payments.
type Repository interface {
	// Create inserts a payment. A second succeeded payment for the same order
	// fails with a CONFLICT error.
	Create(ctx context.Context, p *Payment) error

	// FindByID returns a payment or shared.ErrNotFound.
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// FindByOrder lists payments of an order, newest first.
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error)

	// ListRecent returns the newest payments, at most limit.
	ListRecent(ctx context.Context, limit int) ([]Payment, error)

	// SummarizeByUser aggregates paid orders per user, highest total first.
	SummarizeByUser(ctx context.Context) ([]Summary, error)
}
