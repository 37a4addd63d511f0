package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/techdigits/backend/internal/domain/otp"
	"github.com/techdigits/backend/internal/domain/shared"
	"github.com/techdigits/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormChallengeRepository implements otp.Repository using GORM
type GormChallengeRepository struct {
	db *gorm.DB
}

var _ otp.Repository = (*GormChallengeRepository)(nil)

// NewGormChallengeRepository creates a new GormChallengeRepository
func NewGormChallengeRepository(db *gorm.DB) *GormChallengeRepository {
	return &GormChallengeRepository{db: db}
}

func (r *GormChallengeRepository) byKey(ctx context.Context, key otp.Key) *gorm.DB {
	return conn(ctx, r.db).Where("pair_key = ?", models.PairKey(key))
}

// FindLatest returns the newest challenge of key.
func (r *GormChallengeRepository) FindLatest(ctx context.Context, key otp.Key) (*otp.Challenge, error) {
	var model models.ChallengeModel
	err := r.byKey(ctx, key).Order("created_at DESC").Order("id").First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindLatestVerified returns the newest challenge of key verified at or after since.
func (r *GormChallengeRepository) FindLatestVerified(ctx context.Context, key otp.Key, since time.Time) (*otp.Challenge, error) {
	var model models.ChallengeModel
	err := r.byKey(ctx, key).
		Where("verified = ? AND verified_at >= ?", true, since).
		Order("verified_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindHistory returns challenges of key last sent at or after since, newest first.
func (r *GormChallengeRepository) FindHistory(ctx context.Context, key otp.Key, since time.Time) ([]otp.Challenge, error) {
	var rows []models.ChallengeModel
	if err := r.byKey(ctx, key).
		Where("last_sent_at >= ?", since).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]otp.Challenge, len(rows))
	for i := range rows {
		out[i] = *rows[i].ToDomain()
	}
	return out, nil
}

// Replace swaps the unverified challenge of the pair for c. The partial
// unique index on open pairs turns a concurrent replace that committed
// first into a duplicate-key error here.
func (r *GormChallengeRepository) Replace(ctx context.Context, c *otp.Challenge) error {
	model := models.ChallengeModelFromDomain(c)
	err := inTx(ctx, r.db, func(tx *gorm.DB) error {
		if err := tx.Where("pair_key = ? AND verified = ?", model.PairKey, false).
			Delete(&models.ChallengeModel{}).Error; err != nil {
			return err
		}
		return tx.Create(model).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return shared.NewDomainError(shared.CodeConflict, "A code was issued concurrently, request a new one")
	}
	return err
}

// MarkVerified flips verified only while the row is still unverified.
func (r *GormChallengeRepository) MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	result := conn(ctx, r.db).Model(&models.ChallengeModel{}).
		Where("id = ? AND verified = ?", id, false).
		Updates(map[string]interface{}{
			"verified":    true,
			"verified_at": at,
			"updated_at":  at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// DeleteByKey removes every challenge of key.
func (r *GormChallengeRepository) DeleteByKey(ctx context.Context, key otp.Key) (int64, error) {
	result := r.byKey(ctx, key).Delete(&models.ChallengeModel{})
	return result.RowsAffected, result.Error
}

// DeleteStale removes expired unverified challenges and verified ones
// verified before verifiedBefore.
func (r *GormChallengeRepository) DeleteStale(ctx context.Context, now, verifiedBefore time.Time) (int64, int64, error) {
	var expired, verified int64
	err := inTx(ctx, r.db, func(tx *gorm.DB) error {
		res := tx.Where("verified = ? AND expires_at < ?", false, now).Delete(&models.ChallengeModel{})
		if res.Error != nil {
			return res.Error
		}
		expired = res.RowsAffected

		res = tx.Where("verified = ? AND verified_at < ?", true, verifiedBefore).Delete(&models.ChallengeModel{})
		if res.Error != nil {
			return res.Error
		}
		verified = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return expired, verified, nil
}
