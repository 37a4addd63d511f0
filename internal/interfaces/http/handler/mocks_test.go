package handler

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	identityapp "github.com/techdigits/backend/internal/application/identity"
	orderapp "github.com/techdigits/backend/internal/application/order"
	paymentapp "github.com/techdigits/backend/internal/application/payment"
	"github.com/techdigits/backend/internal/domain/shared"
	"github.com/techdigits/backend/internal/infrastructure/auth"
)

// MockOrderService implements OrderService for testing
type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) Create(ctx context.Context, userID uuid.UUID, req orderapp.CreateOrderRequest) (*orderapp.OrderResponse, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orderapp.OrderResponse), args.Error(1)
}

func (m *MockOrderService) Get(ctx context.Context, orderID, userID uuid.UUID, admin bool) (*orderapp.OrderResponse, error) {
	args := m.Called(ctx, orderID, userID, admin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orderapp.OrderResponse), args.Error(1)
}

func (m *MockOrderService) ListMine(ctx context.Context, userID uuid.UUID, page, pageSize int) (*shared.Paginated[orderapp.OrderResponse], error) {
	args := m.Called(ctx, userID, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.Paginated[orderapp.OrderResponse]), args.Error(1)
}

func (m *MockOrderService) ListAll(ctx context.Context, f orderapp.ListOrdersFilter) (*shared.Paginated[orderapp.OrderResponse], error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.Paginated[orderapp.OrderResponse]), args.Error(1)
}

func (m *MockOrderService) Cancel(ctx context.Context, orderID uuid.UUID) (*orderapp.OrderResponse, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*orderapp.OrderResponse), args.Error(1)
}

// MockPaymentService implements PaymentService for testing
type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) Initiate(ctx context.Context, userID uuid.UUID, req paymentapp.InitiateRequest) (*paymentapp.InitiateResponse, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentapp.InitiateResponse), args.Error(1)
}

func (m *MockPaymentService) Resend(ctx context.Context, userID uuid.UUID, req paymentapp.ResendRequest) (*paymentapp.ResendResponse, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentapp.ResendResponse), args.Error(1)
}

func (m *MockPaymentService) Confirm(ctx context.Context, userID uuid.UUID, req paymentapp.ConfirmRequest, key string) (*paymentapp.ConfirmResponse, error) {
	args := m.Called(ctx, userID, req, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentapp.ConfirmResponse), args.Error(1)
}

func (m *MockPaymentService) ProcessDirect(ctx context.Context, userID uuid.UUID, req paymentapp.DirectRequest) (*paymentapp.ConfirmResponse, error) {
	args := m.Called(ctx, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentapp.ConfirmResponse), args.Error(1)
}

func (m *MockPaymentService) ListTransactions(ctx context.Context, limit int) ([]paymentapp.TransactionResponse, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]paymentapp.TransactionResponse), args.Error(1)
}

func (m *MockPaymentService) Summary(ctx context.Context) ([]paymentapp.SummaryResponse, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]paymentapp.SummaryResponse), args.Error(1)
}

func (m *MockPaymentService) UserPaidOrders(ctx context.Context, userID uuid.UUID, page, pageSize int) (*paymentapp.UserPaidOrdersResponse, error) {
	args := m.Called(ctx, userID, page, pageSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentapp.UserPaidOrdersResponse), args.Error(1)
}

// MockAuthService implements AuthService for testing
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Login(ctx context.Context, req identityapp.LoginRequest) (*identityapp.LoginResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identityapp.LoginResult), args.Error(1)
}

func (m *MockAuthService) Logout(ctx context.Context, claims *auth.Claims) error {
	return m.Called(ctx, claims).Error(0)
}

func (m *MockAuthService) Me(ctx context.Context, userID uuid.UUID) (*identityapp.UserInfo, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identityapp.UserInfo), args.Error(1)
}

func (m *MockAuthService) RequestReset(ctx context.Context, req identityapp.ForgotPasswordRequest) (*identityapp.ForgotPasswordResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identityapp.ForgotPasswordResult), args.Error(1)
}

func (m *MockAuthService) VerifyReset(ctx context.Context, req identityapp.VerifyResetRequest) (*identityapp.VerifyResetResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identityapp.VerifyResetResult), args.Error(1)
}

func (m *MockAuthService) ResetPassword(ctx context.Context, req identityapp.ResetPasswordRequest) error {
	return m.Called(ctx, req).Error(0)
}
