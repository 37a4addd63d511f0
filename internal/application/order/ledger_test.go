package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/techdigits/backend/internal/domain/order"
	"github.com/techdigits/backend/internal/domain/shared"
)

// MockOrderRepository is a mock implementation of order.Repository
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderRepository) FindByUser(ctx context.Context, userID uuid.UUID, filter shared.Filter) ([]order.Order, int64, error) {
	args := m.Called(ctx, userID, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]order.Order), args.Get(1).(int64), args.Error(2)
}

func (m *MockOrderRepository) FindAll(ctx context.Context, filter shared.Filter) ([]order.Order, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]order.Order), args.Get(1).(int64), args.Error(2)
}

func (m *MockOrderRepository) Create(ctx context.Context, o *order.Order) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockOrderRepository) TransitionToPaid(ctx context.Context, id uuid.UUID, now time.Time) error {
	args := m.Called(ctx, id, now)
	return args.Error(0)
}

func (m *MockOrderRepository) MarkOtpVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	args := m.Called(ctx, id, verified)
	return args.Error(0)
}

func (m *MockOrderRepository) SaveStatus(ctx context.Context, o *order.Order) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

// MockPriceCatalog is a mock implementation of order.PriceCatalog
type MockPriceCatalog struct {
	mock.Mock
}

func (m *MockPriceCatalog) Prices(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]decimal.Decimal), args.Error(1)
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLedger() (*Ledger, *MockOrderRepository, *MockPriceCatalog) {
	repo := new(MockOrderRepository)
	catalog := new(MockPriceCatalog)
	return NewLedger(repo, catalog, shared.NewManualClock(testNow)), repo, catalog
}

func pendingOrder(t *testing.T, userID uuid.UUID) *order.Order {
	t.Helper()
	o, err := order.NewOrder(userID, []order.Item{
		{ProductID: uuid.New(), Quantity: 2, UnitPrice: decimal.NewFromInt(100)},
		{ProductID: uuid.New(), Quantity: 1, UnitPrice: decimal.NewFromInt(50)},
	}, testNow)
	require.NoError(t, err)
	return o
}

func TestLedger_Create(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	p1, p2 := uuid.New(), uuid.New()

	t.Run("snapshots catalog prices", func(t *testing.T) {
		ledger, repo, catalog := newTestLedger()
		catalog.On("Prices", mock.Anything, []uuid.UUID{p1, p2}).Return(map[uuid.UUID]decimal.Decimal{
			p1: decimal.NewFromInt(100),
			p2: decimal.NewFromInt(50),
		}, nil)
		repo.On("Create", mock.Anything, mock.MatchedBy(func(o *order.Order) bool {
			return o.UserID == userID && o.Status == order.StatusPending && o.VerifyTotal()
		})).Return(nil)

		resp, err := ledger.Create(ctx, userID, CreateOrderRequest{Items: []CreateOrderItemInput{
			{ProductID: p1, Quantity: 2},
			{ProductID: p2, Quantity: 1},
		}})
		require.NoError(t, err)
		assert.True(t, resp.TotalAmount.Equal(decimal.NewFromInt(250)))
		assert.Equal(t, "pending", resp.Status)
		assert.Len(t, resp.Items, 2)
		repo.AssertExpectations(t)
	})

	t.Run("unknown product", func(t *testing.T) {
		ledger, repo, catalog := newTestLedger()
		catalog.On("Prices", mock.Anything, []uuid.UUID{p1}).Return(map[uuid.UUID]decimal.Decimal{}, nil)

		_, err := ledger.Create(ctx, userID, CreateOrderRequest{Items: []CreateOrderItemInput{{ProductID: p1, Quantity: 1}}})
		assert.ErrorIs(t, err, shared.ErrNotFound)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("catalog failure", func(t *testing.T) {
		ledger, _, catalog := newTestLedger()
		catalog.On("Prices", mock.Anything, []uuid.UUID{p1}).Return(nil, errors.New("db down"))

		_, err := ledger.Create(ctx, userID, CreateOrderRequest{Items: []CreateOrderItemInput{{ProductID: p1, Quantity: 1}}})
		assert.Error(t, err)
	})
}

func TestLedger_Get(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	o := pendingOrder(t, owner)

	ledger, repo, _ := newTestLedger()
	repo.On("FindByID", ctx, o.ID).Return(o, nil)

	resp, err := ledger.Get(ctx, o.ID, owner, false)
	require.NoError(t, err)
	assert.Equal(t, o.ID, resp.ID)

	_, err = ledger.Get(ctx, o.ID, uuid.New(), false)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = ledger.Get(ctx, o.ID, uuid.New(), true)
	assert.NoError(t, err)
}

func TestLedger_Guards(t *testing.T) {
	ledger, _, _ := newTestLedger()
	owner := uuid.New()
	o := pendingOrder(t, owner)

	assert.NoError(t, ledger.RequireOwnership(o, owner))
	assert.ErrorIs(t, ledger.RequireOwnership(o, uuid.New()), shared.ErrForbidden)

	assert.NoError(t, ledger.RequireStatus(o, order.StatusPending))
	require.NoError(t, o.MarkPaid(testNow))
	err := ledger.RequireStatus(o, order.StatusPending)
	require.ErrorIs(t, err, shared.ErrConflict)
	de, ok := shared.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, "paid", de.CurrentStatus)
}

func TestLedger_TransitionToPaid(t *testing.T) {
	ctx := context.Background()
	ledger, repo, _ := newTestLedger()
	id := uuid.New()

	repo.On("TransitionToPaid", mock.Anything, id, testNow).Return(nil).Once()
	assert.NoError(t, ledger.TransitionToPaid(ctx, id))

	repo.On("TransitionToPaid", mock.Anything, id, testNow).Return(shared.NewConflictError("Order", "paid")).Once()
	assert.ErrorIs(t, ledger.TransitionToPaid(ctx, id), shared.ErrConflict)
}

func TestLedger_Cancel(t *testing.T) {
	ctx := context.Background()
	o := pendingOrder(t, uuid.New())

	ledger, repo, _ := newTestLedger()
	repo.On("FindByID", mock.Anything, o.ID).Return(o, nil)
	repo.On("SaveStatus", mock.Anything, o).Return(nil)

	resp, err := ledger.Cancel(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "cancelled", resp.Status)
	assert.NotNil(t, resp.CancelledAt)

	_, err = ledger.Cancel(ctx, o.ID)
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestLedger_ListAll(t *testing.T) {
	ctx := context.Background()
	ledger, repo, _ := newTestLedger()
	o := pendingOrder(t, uuid.New())

	repo.On("FindAll", ctx, mock.MatchedBy(func(f shared.Filter) bool {
		return f.Filters["status"] == "pending" && f.Page == 2 && f.PageSize == 10
	})).Return([]order.Order{*o}, int64(11), nil)

	result, err := ledger.ListAll(ctx, ListOrdersFilter{Status: "pending", Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, result.Items, 1)
	assert.Equal(t, 2, result.TotalPages)
}

func TestLedger_ListMine(t *testing.T) {
	ctx := context.Background()
	ledger, repo, _ := newTestLedger()
	userID := uuid.New()

	repo.On("FindByUser", ctx, userID, mock.Anything).Return([]order.Order{}, int64(0), nil)
	result, err := ledger.ListMine(ctx, userID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, 20, result.PageSize)
	assert.Empty(t, result.Items)
}
