// Package otp models one-time code challenges that bind a short numeric code
// to a user and, for payments, an order.
package otp

import (
	"time"

	"github.com/google/uuid"
	"github.com/techdigits/backend/internal/domain/shared"
)

// Purpose distinguishes what a challenge authorizes.
type Purpose string

const (
	PurposePayment       Purpose = "payment"
	PurposePasswordReset Purpose = "password_reset"
)

// IsValid checks if the purpose is known
func (p Purpose) IsValid() bool {
	return p == PurposePayment || p == PurposePasswordReset
}

// Key identifies the challenge pair. OrderID is nil for password resets.
type Key struct {
	UserID  uuid.UUID
	Purpose Purpose
	OrderID *uuid.UUID
}

// PaymentKey returns the key of a payment challenge for (user, order).
func PaymentKey(userID, orderID uuid.UUID) Key {
	return Key{UserID: userID, Purpose: PurposePayment, OrderID: &orderID}
}

// PasswordResetKey returns the key of a password-reset challenge for user.
func PasswordResetKey(userID uuid.UUID) Key {
	return Key{UserID: userID, Purpose: PurposePasswordReset}
}

// Challenge is an issued code. Only the bcrypt hash of the code is kept.
type Challenge struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	OrderID    *uuid.UUID
	Purpose    Purpose
	CodeHash   string
	ExpiresAt  time.Time
	Verified   bool
	VerifiedAt *time.Time
	// SendTimes holds the instants of the sends still inside the rate-limit
	// window, including those carried over from an unverified predecessor.
	SendTimes  []time.Time
	SentCount  int
	LastSentAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewChallenge creates an unverified challenge for key. prior is the
// unverified challenge being replaced, if any; its sends younger than window
// are carried over.
func NewChallenge(key Key, codeHash string, ttl time.Duration, window time.Duration, prior *Challenge, now time.Time) (*Challenge, error) {
	if key.UserID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "User ID cannot be empty")
	}
	if !key.Purpose.IsValid() {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Unknown challenge purpose")
	}
	if key.Purpose == PurposePayment && (key.OrderID == nil || *key.OrderID == uuid.Nil) {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Order ID is required for payment challenges")
	}
	if codeHash == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "Code hash cannot be empty")
	}
	if ttl <= 0 {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "TTL must be positive")
	}

	var sends []time.Time
	if prior != nil && window > 0 {
		for _, at := range prior.SendRecord().SentAt {
			if now.Sub(at) < window {
				sends = append(sends, at)
			}
		}
	}
	sends = append(sends, now)

	return &Challenge{
		ID:              uuid.New(),
		UserID:          key.UserID,
		OrderID:         key.OrderID,
		Purpose:         key.Purpose,
		CodeHash:        codeHash,
		ExpiresAt:       now.Add(ttl),
		SendTimes:  sends,
		SentCount:  len(sends),
		LastSentAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Key returns the pair the challenge belongs to.
func (c *Challenge) Key() Key {
	return Key{UserID: c.UserID, Purpose: c.Purpose, OrderID: c.OrderID}
}

// IsExpired reports expiresAt < now.
func (c *Challenge) IsExpired(now time.Time) bool {
	return c.ExpiresAt.Before(now)
}

// CheckVerifiable returns EXPIRED or ALREADY_VERIFIED when the challenge can
// no longer be verified.
func (c *Challenge) CheckVerifiable(now time.Time) error {
	if c.IsExpired(now) {
		return shared.ErrExpired
	}
	if c.Verified {
		return shared.ErrAlreadyVerified
	}
	return nil
}

// IsStale reports whether the sweeper may delete the challenge: expired and
// unverified, or verified before verifiedBefore.
func (c *Challenge) IsStale(now, verifiedBefore time.Time) bool {
	if !c.Verified {
		return c.IsExpired(now)
	}
	return c.VerifiedAt != nil && c.VerifiedAt.Before(verifiedBefore)
}

// SendRecord returns the rate-limiting view of the challenge.
func (c *Challenge) SendRecord() SendRecord {
	sent := c.SendTimes
	if len(sent) == 0 {
		sent = []time.Time{c.LastSentAt}
	}
	return SendRecord{LastSentAt: c.LastSentAt, SentAt: sent}
}
