package persistence

import (
	"context"
	"time"

	"github.com/techdigits/backend/internal/domain/order"
	"github.com/techdigits/backend/internal/infrastructure/persistence/models"
	"github.com/techdigits/backend/internal/infrastructure/telemetry"
	"gorm.io/gorm"
)

// WorkflowStats feeds the backlog gauges of the payment metrics.
type WorkflowStats struct {
	db *gorm.DB
}

var _ telemetry.WorkflowStatsProvider = (*WorkflowStats)(nil)

// NewWorkflowStats creates a new WorkflowStats
func NewWorkflowStats(db *gorm.DB) *WorkflowStats {
	return &WorkflowStats{db: db}
}

// CountPendingOrders counts orders awaiting payment.
func (s *WorkflowStats) CountPendingOrders(ctx context.Context) (int64, error) {
	var n int64
	err := conn(ctx, s.db).Model(&models.OrderModel{}).Where("status = ?", order.StatusPending).Count(&n).Error
	return n, err
}

// CountActiveChallenges counts unverified challenges that have not expired.
func (s *WorkflowStats) CountActiveChallenges(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := conn(ctx, s.db).Model(&models.ChallengeModel{}).
		Where("verified = ? AND expires_at >= ?", false, now).
		Count(&n).Error
	return n, err
}
