package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/techdigits/backend/internal/domain/payment"
)

// PaymentModel is the persistence model for a Payment. Only redacted
// instrument details are stored.
type PaymentModel struct {
	BaseModel
	OrderID   uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_payments_order_succeeded,where:status = 'succeeded'"`
	UserID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	Method    payment.Method  `gorm:"type:varchar(30);not null"`
	Amount    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Status    payment.Status  `gorm:"type:varchar(20);not null"`
	Details   payment.Details `gorm:"type:jsonb;serializer:json"`
	Reference string          `gorm:"type:varchar(40);not null;uniqueIndex"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment.
func (m *PaymentModel) ToDomain() *payment.Payment {
	return &payment.Payment{
		BaseEntity: m.BaseModel.ToDomain(),
		OrderID:    m.OrderID,
		UserID:     m.UserID,
		Method:     m.Method,
		Amount:     m.Amount,
		Status:     m.Status,
		Details:    m.Details,
		Reference:  m.Reference,
	}
}

// PaymentModelFromDomain creates a persistence model from a domain Payment.
func PaymentModelFromDomain(p *payment.Payment) *PaymentModel {
	m := &PaymentModel{
		OrderID:   p.OrderID,
		UserID:    p.UserID,
		Method:    p.Method,
		Amount:    p.Amount,
		Status:    p.Status,
		Details:   p.Details,
		Reference: p.Reference,
	}
	m.FromDomainBaseEntity(p.BaseEntity)
	return m
}

// PaymentSummaryRow is the scan target of the per-user payment aggregate.
type PaymentSummaryRow struct {
	UserID     uuid.UUID
	Name       string
	Email      string
	PaidOrders int64
	TotalPaid  decimal.Decimal
}
