package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/techdigits/backend/internal/domain/order"
	"github.com/techdigits/backend/internal/domain/payment"
	"github.com/techdigits/backend/internal/domain/shared"
	"github.com/techdigits/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormPaymentRepository implements payment.Repository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

var _ payment.Repository = (*GormPaymentRepository)(nil)

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// Create inserts a payment. The partial unique index on succeeded payments
// rejects a second one for the same order.
func (r *GormPaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	err := conn(ctx, r.db).Create(models.PaymentModelFromDomain(p)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.NewConflictError("Order", order.StatusPaid.String())
	}
	return err
}

// FindByID finds a payment by ID
func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	var model models.PaymentModel
	if err := conn(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByOrder lists payments of an order, newest first.
func (r *GormPaymentRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]payment.Payment, error) {
	return r.find(conn(ctx, r.db).Where("order_id = ?", orderID))
}

// ListRecent returns at most limit payments, newest first.
func (r *GormPaymentRepository) ListRecent(ctx context.Context, limit int) ([]payment.Payment, error) {
	query := conn(ctx, r.db)
	if limit > 0 {
		query = query.Limit(limit)
	}
	return r.find(query)
}

func (r *GormPaymentRepository) find(query *gorm.DB) ([]payment.Payment, error) {
	var rows []models.PaymentModel
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]payment.Payment, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// SummarizeByUser aggregates succeeded payments per user, highest total first.
func (r *GormPaymentRepository) SummarizeByUser(ctx context.Context) ([]payment.Summary, error) {
	var rows []models.PaymentSummaryRow
	err := conn(ctx, r.db).
		Table("payments AS p").
		Select("p.user_id, COALESCE(u.name, '') AS name, COALESCE(u.email, '') AS email, " +
			"COUNT(*) AS paid_orders, SUM(p.amount) AS total_paid").
		Joins("LEFT JOIN users u ON u.id = p.user_id").
		Where("p.status = ?", payment.StatusSucceeded).
		Group("p.user_id, u.name, u.email").
		Order("total_paid DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]payment.Summary, len(rows))
	for i, row := range rows {
		out[i] = payment.Summary{
			UserID:     row.UserID,
			Name:       row.Name,
			Email:      row.Email,
			PaidOrders: row.PaidOrders,
			TotalPaid:  row.TotalPaid,
		}
	}
	return out, nil
}
