package handler

import (
	"context"

	"github.com/google/uuid"
	identityapp "github.com/techdigits/backend/internal/application/identity"
	orderapp "github.com/techdigits/backend/internal/application/order"
	paymentapp "github.com/techdigits/backend/internal/application/payment"
	"github.com/techdigits/backend/internal/domain/shared"
	"github.com/techdigits/backend/internal/infrastructure/auth"
)

// OrderService is the order ledger as seen by the HTTP layer.
type OrderService interface {
	Create(ctx context.Context, userID uuid.UUID, req orderapp.CreateOrderRequest) (*orderapp.OrderResponse, error)
	Get(ctx context.Context, orderID, userID uuid.UUID, admin bool) (*orderapp.OrderResponse, error)
	ListMine(ctx context.Context, userID uuid.UUID, page, pageSize int) (*shared.Paginated[orderapp.OrderResponse], error)
	ListAll(ctx context.Context, f orderapp.ListOrdersFilter) (*shared.Paginated[orderapp.OrderResponse], error)
	Cancel(ctx context.Context, orderID uuid.UUID) (*orderapp.OrderResponse, error)
}

// PaymentService is the payment processor as seen by the HTTP layer.
type PaymentService interface {
	Initiate(ctx context.Context, userID uuid.UUID, req paymentapp.InitiateRequest) (*paymentapp.InitiateResponse, error)
	Resend(ctx context.Context, userID uuid.UUID, req paymentapp.ResendRequest) (*paymentapp.ResendResponse, error)
	Confirm(ctx context.Context, userID uuid.UUID, req paymentapp.ConfirmRequest, idempotencyKey string) (*paymentapp.ConfirmResponse, error)
	ProcessDirect(ctx context.Context, userID uuid.UUID, req paymentapp.DirectRequest) (*paymentapp.ConfirmResponse, error)
	ListTransactions(ctx context.Context, limit int) ([]paymentapp.TransactionResponse, error)
	Summary(ctx context.Context) ([]paymentapp.SummaryResponse, error)
	UserPaidOrders(ctx context.Context, userID uuid.UUID, page, pageSize int) (*paymentapp.UserPaidOrdersResponse, error)
}

// AuthService covers login and password reset.
type AuthService interface {
	Login(ctx context.Context, req identityapp.LoginRequest) (*identityapp.LoginResult, error)
	Logout(ctx context.Context, claims *auth.Claims) error
	Me(ctx context.Context, userID uuid.UUID) (*identityapp.UserInfo, error)
	RequestReset(ctx context.Context, req identityapp.ForgotPasswordRequest) (*identityapp.ForgotPasswordResult, error)
	VerifyReset(ctx context.Context, req identityapp.VerifyResetRequest) (*identityapp.VerifyResetResult, error)
	ResetPassword(ctx context.Context, req identityapp.ResetPasswordRequest) error
}

var (
	_ OrderService   = (*orderapp.Ledger)(nil)
	_ PaymentService = (*paymentapp.Processor)(nil)
	_ AuthService    = (*identityapp.AuthService)(nil)
)
