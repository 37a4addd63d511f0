package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	orderapp "github.com/techdigits/backend/internal/application/order"
	"github.com/techdigits/backend/internal/domain/payment"
)

// InitiateRequest starts payment of an order. ChannelAddress overrides the
// email or phone number on file.
type InitiateRequest struct {
	OrderID        uuid.UUID `json:"order_id" binding:"required"`
	Method         string    `json:"method" binding:"required,max=32"`
	ChannelAddress string    `json:"channel_address" binding:"omitempty,max=200"`
}

// InitiateResponse tells the client whether a code is on its way.
type InitiateResponse struct {
	OrderID         uuid.UUID  `json:"order_id"`
	OtpRequired     bool       `json:"otp_required"`
	ChallengeIssued bool       `json:"challenge_issued"`
	Channel         string     `json:"channel,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	DeliveryWarning string     `json:"delivery_warning,omitempty"`
}

// ResendRequest asks for a fresh code. Method selects the delivery channel
// and defaults to card.
type ResendRequest struct {
	OrderID        uuid.UUID `json:"order_id" binding:"required"`
	Method         string    `json:"method" binding:"omitempty,max=32"`
	ChannelAddress string    `json:"channel_address" binding:"omitempty,max=200"`
}

// ResendResponse reports the new expiry.
type ResendResponse struct {
	OrderID         uuid.UUID `json:"order_id"`
	Channel         string    `json:"channel"`
	ExpiresAt       time.Time `json:"expires_at"`
	DeliveryWarning string    `json:"delivery_warning,omitempty"`
}

// CardInput carries card details. They are validated, redacted and never
// stored or logged in full.
type CardInput struct {
	Number      string `json:"number" binding:"required,max=32"`
	ExpiryMonth int    `json:"expiry_month" binding:"required"`
	ExpiryYear  string `json:"expiry_year" binding:"required"`
	CVV         string `json:"cvv" binding:"required"`
}

// MobileMoneyInput carries the subscriber number to charge.
type MobileMoneyInput struct {
	MSISDN string `json:"msisdn" binding:"required,max=20"`
}

// ConfirmRequest finalizes payment of an order with a code.
type ConfirmRequest struct {
	OrderID     uuid.UUID         `json:"order_id" binding:"required"`
	Method      string            `json:"method" binding:"required,max=32"`
	Code        string            `json:"code" binding:"required,len=6,numeric"`
	Card        *CardInput        `json:"card" binding:"omitempty"`
	MobileMoney *MobileMoneyInput `json:"mobile_money" binding:"omitempty"`
}

// DirectRequest finalizes payment without a code, where the method allows
// it or a recent verification exists.
type DirectRequest struct {
	OrderID     uuid.UUID         `json:"order_id" binding:"required"`
	Method      string            `json:"method" binding:"required,max=32"`
	Card        *CardInput        `json:"card" binding:"omitempty"`
	MobileMoney *MobileMoneyInput `json:"mobile_money" binding:"omitempty"`
}

// ConfirmResponse is returned once the order is paid.
type ConfirmResponse struct {
	PaymentID   uuid.UUID       `json:"payment_id"`
	OrderID     uuid.UUID       `json:"order_id"`
	OrderStatus string          `json:"order_status"`
	Reference   string          `json:"reference"`
	Method      string          `json:"method"`
	Amount      decimal.Decimal `json:"amount"`
	Details     payment.Details `json:"details"`
}

// TransactionResponse is a redacted payment for admin listings.
type TransactionResponse struct {
	ID        uuid.UUID       `json:"id"`
	OrderID   uuid.UUID       `json:"order_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Method    string          `json:"method"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	Details   payment.Details `json:"details"`
	Reference string          `json:"reference"`
	CreatedAt time.Time       `json:"created_at"`
}

// SummaryResponse aggregates paid orders of one user.
type SummaryResponse struct {
	UserID     uuid.UUID       `json:"user_id"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	PaidOrders int64           `json:"paid_orders"`
	TotalPaid  decimal.Decimal `json:"total_paid"`
}

// UserPaidOrdersResponse lists the paid orders of one user.
type UserPaidOrdersResponse struct {
	UserID uuid.UUID                `json:"user_id"`
	Name   string                   `json:"name"`
	Email  string                   `json:"email"`
	Orders []orderapp.OrderResponse `json:"orders"`
	Total  int64                    `json:"total"`
}

// ToTransactionResponse converts a domain payment
func ToTransactionResponse(p *payment.Payment) TransactionResponse {
	return TransactionResponse{
		ID:        p.ID,
		OrderID:   p.OrderID,
		UserID:    p.UserID,
		Method:    p.Method.String(),
		Amount:    p.Amount,
		Status:    string(p.Status),
		Details:   p.Details,
		Reference: p.Reference,
		CreatedAt: p.CreatedAt,
	}
}

func toConfirmResponse(p *payment.Payment) *ConfirmResponse {
	return &ConfirmResponse{
		PaymentID:   p.ID,
		OrderID:     p.OrderID,
		OrderStatus: "paid",
		Reference:   p.Reference,
		Method:      p.Method.String(),
		Amount:      p.Amount,
		Details:     p.Details,
	}
}
