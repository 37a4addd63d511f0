// Package payment models payments recorded when an order is finalized and
// the validation and redaction rules for each payment method.
package payment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/techdigits/backend/internal/domain/shared"
)

// Method is a payment method.
type Method string

const (
	MethodCard        Method = "card"
	MethodMobileMoney Method = "mobile_money"
)

// ParseMethod accepts the canonical names and the storefront aliases
// ("visa", "vodafone", "mobile-money").
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "card", "visa":
		return MethodCard, nil
	case "mobile_money", "mobile-money", "vodafone":
		return MethodMobileMoney, nil
	}
	return "", shared.NewDomainError(shared.CodeInvalidInput, "Invalid payment method")
}

func (m Method) String() string {
	return string(m)
}

// Status is the outcome of a payment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Details holds the redacted, storable view of the payment instrument.
type Details struct {
	Last4        string `json:"last4,omitempty"`
	Expiry       string `json:"expiry,omitempty"`
	MaskedMSISDN string `json:"masked_msisdn,omitempty"`
}

// Payment records money taken for an order.
type Payment struct {
	shared.BaseEntity
	OrderID   uuid.UUID
	UserID    uuid.UUID
	Method    Method
	Amount    decimal.Decimal
	Status    Status
	Details   Details
	Reference string
}

// NewSucceeded creates a succeeded payment for amount with redacted details.
func NewSucceeded(orderID, userID uuid.UUID, method Method, amount decimal.Decimal, details Details, now time.Time) (*Payment, error) {
	if orderID == uuid.Nil || userID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Order and user are required")
	}
	if amount.IsNegative() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Amount cannot be negative")
	}
	p := &Payment{
		BaseEntity: shared.NewBaseEntity(now),
		OrderID:    orderID,
		UserID:     userID,
		Method:     method,
		Amount:     amount,
		Status:     StatusSucceeded,
		Details:    details,
	}
	p.Reference = NewReference(p.ID, now)
	return p, nil
}

// NewReference builds a human-readable payment reference.
func NewReference(id uuid.UUID, now time.Time) string {
	return fmt.Sprintf("PAY-%s-%s", now.Format("20060102"), strings.ToUpper(id.String()[:8]))
}

// Summary is the per-user aggregate of paid orders.
type Summary struct {
	UserID     uuid.UUID
	Name       string
	Email      string
	PaidOrders int64
	TotalPaid  decimal.Decimal
}
