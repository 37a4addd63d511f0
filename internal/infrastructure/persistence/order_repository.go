package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/techdigits/backend/internal/domain/order"
	"github.com/techdigits/backend/internal/domain/shared"
	"github.com/techdigits/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormOrderRepository implements order.Repository using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

var _ order.Repository = (*GormOrderRepository)(nil)

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func preloadItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// FindByID loads an order with its items.
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var model models.OrderModel
	if err := conn(ctx, r.db).Preload("Items", preloadItems).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByUser lists a user's orders, newest first.
func (r *GormOrderRepository) FindByUser(ctx context.Context, userID uuid.UUID, filter shared.Filter) ([]order.Order, int64, error) {
	return r.list(conn(ctx, r.db).Where("user_id = ?", userID), filter)
}

// FindAll lists every order, newest first.
func (r *GormOrderRepository) FindAll(ctx context.Context, filter shared.Filter) ([]order.Order, int64, error) {
	return r.list(conn(ctx, r.db), filter)
}

func (r *GormOrderRepository) list(query *gorm.DB, filter shared.Filter) ([]order.Order, int64, error) {
	query = query.Model(&models.OrderModel{})
	if status, ok := filter.Filters["status"].(string); ok && status != "" {
		query = query.Where("status = ?", status)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.OrderModel
	page := query.Preload("Items", preloadItems).Order("created_at DESC").Order("id")
	if filter.PageSize > 0 {
		page = page.Offset(filter.Offset()).Limit(filter.PageSize)
	}
	if err := page.Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	orders := make([]order.Order, len(rows))
	for i := range rows {
		orders[i] = *rows[i].ToDomain()
	}
	return orders, total, nil
}

// Create inserts the order and its items.
func (r *GormOrderRepository) Create(ctx context.Context, o *order.Order) error {
	return inTx(ctx, r.db, func(tx *gorm.DB) error {
		return tx.Create(models.OrderModelFromDomain(o)).Error
	})
}

// TransitionToPaid moves a pending order to paid with a single conditional
// update. The losing caller of a race sees zero rows affected and gets a
// CONFLICT carrying the status it lost to.
func (r *GormOrderRepository) TransitionToPaid(ctx context.Context, id uuid.UUID, now time.Time) error {
	result := conn(ctx, r.db).Model(&models.OrderModel{}).
		Where("id = ? AND status = ?", id, order.StatusPending).
		Updates(map[string]interface{}{
			"status":     order.StatusPaid,
			"paid_at":    now,
			"updated_at": now,
			"version":    gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 1 {
		return nil
	}
	return r.conflict(ctx, id)
}

// conflict reports the stored status of an order a guarded update missed.
func (r *GormOrderRepository) conflict(ctx context.Context, id uuid.UUID) error {
	var statuses []string
	err := conn(ctx, r.db).Model(&models.OrderModel{}).Where("id = ?", id).Pluck("status", &statuses).Error
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		return shared.ErrNotFound
	}
	return shared.NewConflictError("Order", statuses[0])
}

// MarkOtpVerified sets the otp_verified flag.
func (r *GormOrderRepository) MarkOtpVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	result := conn(ctx, r.db).Model(&models.OrderModel{}).
		Where("id = ?", id).
		Update("otp_verified", verified)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SaveStatus persists a status change made on the aggregate. The row must
// still be at the version the aggregate was loaded with.
func (r *GormOrderRepository) SaveStatus(ctx context.Context, o *order.Order) error {
	result := conn(ctx, r.db).Model(&models.OrderModel{}).
		Where("id = ? AND version = ?", o.ID, o.Version-1).
		Updates(map[string]interface{}{
			"status":       o.Status,
			"paid_at":      o.PaidAt,
			"cancelled_at": o.CancelledAt,
			"updated_at":   o.UpdatedAt,
			"version":      o.Version,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.conflict(ctx, o.ID)
	}
	return nil
}
