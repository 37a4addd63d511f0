package models

import (
	"github.com/shopspring/decimal"
)

// ProductModel is a sellable product. The payment service only reads its
// current price when an order is created.
type ProductModel struct {
	BaseModel
	SKU    string          `gorm:"type:varchar(64);not null;uniqueIndex"`
	Name   string          `gorm:"type:varchar(200);not null"`
	Price  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Active bool            `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// All lists every model, in dependency order, for AutoMigrate in tests.
func All() []interface{} {
	return []interface{}{
		&UserModel{},
		&ProductModel{},
		&OrderModel{},
		&OrderItemModel{},
		&ChallengeModel{},
		&PaymentModel{},
	}
}
