package order

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/techdigits/backend/internal/domain/shared"
)

// Status represents the lifecycle status of an order
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// IsValid checks if the status is a known Status
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusShipped, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// CanTransitionTo checks if the status can move to target. Transitions are
// forward only; cancellation is allowed until the order ships.
func (s Status) CanTransitionTo(target Status) bool {
	switch s {
	case StatusPending:
		return target == StatusPaid || target == StatusCancelled
	case StatusPaid:
		return target == StatusShipped || target == StatusCancelled
	case StatusShipped:
		return target == StatusCompleted
	case StatusCompleted, StatusCancelled:
		return false
	}
	return false
}

// Item is a line of an order. UnitPrice is the price snapshot captured when
// the order was created and never changes afterwards.
type Item struct {
	ProductID uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
}

// Amount returns Quantity * UnitPrice.
func (i Item) Amount() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Validate checks the item invariants.
func (i Item) Validate() error {
	if i.ProductID == uuid.Nil {
		return shared.NewDomainError(shared.CodeInvalidInput, "Product ID cannot be empty")
	}
	if i.Quantity < 1 {
		return shared.NewDomainError(shared.CodeInvalidInput, "Quantity must be at least 1")
	}
	if i.UnitPrice.IsNegative() {
		return shared.NewDomainError(shared.CodeInvalidInput, "Unit price cannot be negative")
	}
	return nil
}

// Order is the aggregate a buyer pays for.
type Order struct {
	shared.BaseAggregateRoot
	UserID      uuid.UUID
	Items       []Item
	TotalAmount decimal.Decimal
	Status      Status
	OtpVerified bool
	PaidAt      *time.Time
	CancelledAt *time.Time
}

// NewOrder creates a pending order and computes its total from the items.
func NewOrder(userID uuid.UUID, items []Item, now time.Time) (*Order, error) {
	if userID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "User ID cannot be empty")
	}
	if len(items) == 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Order must have at least one item")
	}
	for _, it := range items {
		if err := it.Validate(); err != nil {
			return nil, err
		}
	}

	o := &Order{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(now),
		UserID:            userID,
		Items:             append([]Item(nil), items...),
		Status:            StatusPending,
	}
	o.TotalAmount = SumItems(o.Items)
	return o, nil
}

// SumItems returns the sum of quantity * unit price over items.
func SumItems(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Amount())
	}
	return total
}

// VerifyTotal reports whether TotalAmount still equals the item sum.
func (o *Order) VerifyTotal() bool {
	return o.TotalAmount.Equal(SumItems(o.Items))
}

// RequireOwnership fails with FORBIDDEN unless userID owns the order.
func (o *Order) RequireOwnership(userID uuid.UUID) error {
	if o.UserID != userID {
		return shared.NewDomainError(shared.CodeForbidden, "Not allowed for this order")
	}
	return nil
}

// RequireStatus fails with CONFLICT, carrying the actual status, unless the
// order is in expected.
func (o *Order) RequireStatus(expected Status) error {
	if o.Status != expected {
		return shared.NewConflictError("Order", o.Status.String())
	}
	return nil
}

// MarkPaid moves a pending order to paid in memory. Persistence must use the
// repository's conditional TransitionToPaid instead.
func (o *Order) MarkPaid(now time.Time) error {
	if !o.Status.CanTransitionTo(StatusPaid) {
		return shared.NewConflictError("Order", o.Status.String())
	}
	o.Status = StatusPaid
	o.PaidAt = &now
	o.Touch(now)
	o.IncrementVersion()
	return nil
}

// Cancel cancels the order.
func (o *Order) Cancel(now time.Time) error {
	if !o.Status.CanTransitionTo(StatusCancelled) {
		return shared.NewDomainError(shared.CodeConflict,
			fmt.Sprintf("Cannot cancel order in %s status", o.Status))
	}
	o.Status = StatusCancelled
	o.CancelledAt = &now
	o.Touch(now)
	o.IncrementVersion()
	return nil
}
