package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/techdigits/backend/internal/domain/order"
)

// OrderModel is the persistence model for the Order aggregate.
type OrderModel struct {
	AggregateModel
	UserID      uuid.UUID        `gorm:"type:uuid;not null;index:idx_orders_user_created,priority:1"`
	TotalAmount decimal.Decimal  `gorm:"type:decimal(12,2);not null"`
	Status      order.Status     `gorm:"type:varchar(20);not null;default:'pending';index"`
	OtpVerified bool             `gorm:"not null;default:false"`
	PaidAt      *time.Time
	CancelledAt *time.Time
	Items       []OrderItemModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel is a line of an order with its price snapshot.
type OrderItemModel struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OrderID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID uuid.UUID       `gorm:"type:uuid;not null"`
	Position  int             `gorm:"not null"`
	Quantity  int             `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
}

// TableName returns the table name for GORM
func (OrderItemModel) TableName() string {
	return "order_items"
}

// ToDomain converts the persistence model to a domain Order. Items must be
// preloaded and ordered by position.
func (m *OrderModel) ToDomain() *order.Order {
	items := make([]order.Item, 0, len(m.Items))
	for _, it := range m.Items {
		items = append(items, order.Item{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return &order.Order{
		BaseAggregateRoot: m.ToAggregateRoot(),
		UserID:            m.UserID,
		Items:             items,
		TotalAmount:       m.TotalAmount,
		Status:            m.Status,
		OtpVerified:       m.OtpVerified,
		PaidAt:            m.PaidAt,
		CancelledAt:       m.CancelledAt,
	}
}

// OrderModelFromDomain creates a persistence model from a domain Order.
func OrderModelFromDomain(o *order.Order) *OrderModel {
	m := &OrderModel{
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount,
		Status:      o.Status,
		OtpVerified: o.OtpVerified,
		PaidAt:      o.PaidAt,
		CancelledAt: o.CancelledAt,
		Items:       make([]OrderItemModel, 0, len(o.Items)),
	}
	m.FromDomainAggregateRoot(o.BaseAggregateRoot)
	for i, it := range o.Items {
		m.Items = append(m.Items, OrderItemModel{
			ID:        uuid.New(),
			OrderID:   o.ID,
			ProductID: it.ProductID,
			Position:  i,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return m
}
