package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/techdigits/backend/internal/domain/order"
	"github.com/techdigits/backend/internal/domain/shared"
	"github.com/techdigits/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormProductRepository reads product prices for order creation.
type GormProductRepository struct {
	db *gorm.DB
}

var _ order.PriceCatalog = (*GormProductRepository)(nil)

// NewGormProductRepository creates a new GormProductRepository
func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// Prices returns the current price of each active product in ids.
func (r *GormProductRepository) Prices(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	out := make(map[uuid.UUID]decimal.Decimal, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.ProductModel
	if err := conn(ctx, r.db).
		Select("id", "price").
		Where("id IN ? AND active = ?", ids, true).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, p := range rows {
		out[p.ID] = p.Price
	}
	return out, nil
}

// Save upserts a product. Used by seeding and tests.
func (r *GormProductRepository) Save(ctx context.Context, p *models.ProductModel) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := conn(ctx, r.db).Save(p).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.NewDomainError(shared.CodeConflict, "Product SKU already exists")
	}
	return err
}
