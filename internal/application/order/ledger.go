package order

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/techdigits/backend/internal/domain/order"
	"github.com/techdigits/backend/internal/domain/shared"
	"github.com/techdigits/backend/internal/infrastructure/telemetry"
)

// Ledger owns the order lifecycle and its monetary snapshot. The status of
// an order only moves to paid through TransitionToPaid.
type Ledger struct {
	orderRepo order.Repository
	catalog   order.PriceCatalog
	clock     shared.Clock
}

// NewLedger creates a new Ledger
func NewLedger(orderRepo order.Repository, catalog order.PriceCatalog, clock shared.Clock) *Ledger {
	if clock == nil {
		clock = shared.SystemClock()
	}
	return &Ledger{
		orderRepo: orderRepo,
		catalog:   catalog,
		clock:     clock,
	}
}

// Create places a pending order for userID. Unit prices are snapshotted from
// the catalog at this moment.
func (l *Ledger) Create(ctx context.Context, userID uuid.UUID, req CreateOrderRequest) (*OrderResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "order_ledger", "create")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrUserID, userID.String())

	ids := make([]uuid.UUID, 0, len(req.Items))
	for _, it := range req.Items {
		ids = append(ids, it.ProductID)
	}
	prices, err := l.catalog.Prices(ctx, ids)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to resolve prices: %w", err)
	}

	items := make([]order.Item, 0, len(req.Items))
	for _, it := range req.Items {
		price, ok := prices[it.ProductID]
		if !ok {
			return nil, shared.NewDomainError(shared.CodeNotFound,
				fmt.Sprintf("Product %s not found", it.ProductID))
		}
		items = append(items, order.Item{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: price,
		})
	}

	o, err := order.NewOrder(userID, items, l.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := l.orderRepo.Create(ctx, o); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrOrderID, o.ID.String(),
		telemetry.SpanAttrAmount, o.TotalAmount.String(),
	)
	resp := ToOrderResponse(o)
	return &resp, nil
}

// Load returns the stored order.
func (l *Ledger) Load(ctx context.Context, orderID uuid.UUID) (*order.Order, error) {
	return l.orderRepo.FindByID(ctx, orderID)
}

// Get returns an order visible to the caller: its owner, or any admin.
func (l *Ledger) Get(ctx context.Context, orderID, userID uuid.UUID, admin bool) (*OrderResponse, error) {
	o, err := l.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !admin {
		if err := l.RequireOwnership(o, userID); err != nil {
			return nil, err
		}
	}
	resp := ToOrderResponse(o)
	return &resp, nil
}

// ListMine lists the caller's own orders, newest first.
func (l *Ledger) ListMine(ctx context.Context, userID uuid.UUID, page, pageSize int) (*shared.Paginated[OrderResponse], error) {
	return l.ListByUser(ctx, userID, "", page, pageSize)
}

// ListByUser lists the orders of userID, optionally only those in status.
func (l *Ledger) ListByUser(ctx context.Context, userID uuid.UUID, status order.Status, page, pageSize int) (*shared.Paginated[OrderResponse], error) {
	filter := pagedFilter(page, pageSize)
	if status != "" {
		filter.Filters["status"] = status.String()
	}
	orders, total, err := l.orderRepo.FindByUser(ctx, userID, filter)
	if err != nil {
		return nil, err
	}
	result := shared.NewPaginated(ToOrderResponses(orders), total, filter.Page, filter.PageSize)
	return &result, nil
}

// ListAll lists every order for administrators.
func (l *Ledger) ListAll(ctx context.Context, f ListOrdersFilter) (*shared.Paginated[OrderResponse], error) {
	filter := pagedFilter(f.Page, f.PageSize)
	if f.Status != "" {
		filter.Filters["status"] = f.Status
	}
	orders, total, err := l.orderRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	result := shared.NewPaginated(ToOrderResponses(orders), total, filter.Page, filter.PageSize)
	return &result, nil
}

// Cancel cancels an order on behalf of an administrator.
func (l *Ledger) Cancel(ctx context.Context, orderID uuid.UUID) (*OrderResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "order_ledger", "cancel")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrOrderID, orderID.String())

	o, err := l.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := o.Cancel(l.clock.Now()); err != nil {
		return nil, err
	}
	if err := l.orderRepo.SaveStatus(ctx, o); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	resp := ToOrderResponse(o)
	return &resp, nil
}

// RequireOwnership fails with FORBIDDEN unless userID owns o.
func (l *Ledger) RequireOwnership(o *order.Order, userID uuid.UUID) error {
	return o.RequireOwnership(userID)
}

// RequireStatus fails with CONFLICT, naming the actual status, unless o is in
// expected.
func (l *Ledger) RequireStatus(o *order.Order, expected order.Status) error {
	return o.RequireStatus(expected)
}

// TransitionToPaid flips a pending order to paid. Exactly one concurrent
// caller succeeds; the rest get CONFLICT with the status they lost to.
func (l *Ledger) TransitionToPaid(ctx context.Context, orderID uuid.UUID) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "order_ledger", "transition_to_paid")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrOrderID, orderID.String())

	if err := l.orderRepo.TransitionToPaid(ctx, orderID, l.clock.Now()); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	return nil
}

// MarkOtpVerified mirrors a verified challenge onto the order.
func (l *Ledger) MarkOtpVerified(ctx context.Context, orderID uuid.UUID) error {
	return l.orderRepo.MarkOtpVerified(ctx, orderID, true)
}

func pagedFilter(page, pageSize int) shared.Filter {
	filter := shared.DefaultFilter()
	if page > 0 {
		filter.Page = page
	}
	if pageSize > 0 {
		filter.PageSize = pageSize
	}
	return filter
}
