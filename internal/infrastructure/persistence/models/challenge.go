package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/techdigits/backend/internal/domain/otp"
)

// ChallengeModel is the persistence model for an OTP challenge. PairKey
// flattens (user, purpose, order) so that a partial unique index can allow
// at most one unverified challenge per pair.
type ChallengeModel struct {
	ID         uuid.UUID   `gorm:"type:uuid;primaryKey"`
	UserID     uuid.UUID   `gorm:"type:uuid;not null"`
	OrderID    *uuid.UUID  `gorm:"type:uuid"`
	Purpose    otp.Purpose `gorm:"type:varchar(30);not null"`
	PairKey    string      `gorm:"type:varchar(120);not null;index:idx_otp_challenges_pair;uniqueIndex:idx_otp_challenges_open_pair,where:verified = false"`
	CodeHash   string      `gorm:"type:varchar(100);not null"`
	ExpiresAt  time.Time   `gorm:"not null;index"`
	Verified   bool        `gorm:"not null;default:false"`
	VerifiedAt *time.Time
	SendTimes  []time.Time `gorm:"type:jsonb;serializer:json;not null"`
	SentCount  int         `gorm:"not null;default:1"`
	LastSentAt time.Time   `gorm:"not null"`
	CreatedAt  time.Time   `gorm:"not null"`
	UpdatedAt  time.Time   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ChallengeModel) TableName() string {
	return "otp_challenges"
}

// PairKey renders the stored pair key of k.
func PairKey(k otp.Key) string {
	order := "-"
	if k.OrderID != nil {
		order = k.OrderID.String()
	}
	return fmt.Sprintf("%s|%s|%s", k.UserID, k.Purpose, order)
}

// ToDomain converts the persistence model to a domain Challenge.
func (m *ChallengeModel) ToDomain() *otp.Challenge {
	return &otp.Challenge{
		ID:         m.ID,
		UserID:     m.UserID,
		OrderID:    m.OrderID,
		Purpose:    m.Purpose,
		CodeHash:   m.CodeHash,
		ExpiresAt:  m.ExpiresAt,
		Verified:   m.Verified,
		VerifiedAt: m.VerifiedAt,
		SendTimes:  m.SendTimes,
		SentCount:  m.SentCount,
		LastSentAt: m.LastSentAt,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// ChallengeModelFromDomain creates a persistence model from a domain Challenge.
func ChallengeModelFromDomain(c *otp.Challenge) *ChallengeModel {
	return &ChallengeModel{
		ID:         c.ID,
		UserID:     c.UserID,
		OrderID:    c.OrderID,
		Purpose:    c.Purpose,
		PairKey:    PairKey(c.Key()),
		CodeHash:   c.CodeHash,
		ExpiresAt:  c.ExpiresAt,
		Verified:   c.Verified,
		VerifiedAt: c.VerifiedAt,
		SendTimes:  c.SendTimes,
		SentCount:  c.SentCount,
		LastSentAt: c.LastSentAt,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}
