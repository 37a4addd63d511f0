package otp

import (
	"bytes"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techdigits/backend/internal/domain/shared"
)

var t0 = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func TestGenerateCode(t *testing.T) {
	t.Run("always six digits within range", func(t *testing.T) {
		for i := 0; i < 500; i++ {
			code, err := GenerateCode(nil)
			require.NoError(t, err)
			require.Len(t, code, 6)
			n, err := strconv.Atoi(code)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, n, CodeMin)
			assert.LessOrEqual(t, n, CodeMax)
			assert.True(t, IsWellFormed(code))
		}
	})

	t.Run("lower bound from zero entropy", func(t *testing.T) {
		code, err := GenerateCode(bytes.NewReader(make([]byte, 64)))
		require.NoError(t, err)
		assert.Equal(t, "100000", code)
	})

	t.Run("reader failure", func(t *testing.T) {
		_, err := GenerateCode(bytes.NewReader(nil))
		assert.Error(t, err)
	})
}

func TestIsWellFormed(t *testing.T) {
	assert.True(t, IsWellFormed("123456"))
	assert.False(t, IsWellFormed("12345"))
	assert.False(t, IsWellFormed("1234567"))
	assert.False(t, IsWellFormed("12a456"))
	assert.False(t, IsWellFormed(""))
}

func TestBcryptHasher(t *testing.T) {
	h := NewBcryptHasher(4)
	hash, err := h.Hash("482913")
	require.NoError(t, err)
	assert.NotEqual(t, "482913", hash)
	assert.True(t, h.Compare(hash, "482913"))
	assert.False(t, h.Compare(hash, "482914"))
	assert.False(t, h.Compare("not-a-hash", "482913"))

	assert.Equal(t, DefaultHashCost, NewBcryptHasher(0).Cost)
}

func TestNewChallenge(t *testing.T) {
	userID, orderID := uuid.New(), uuid.New()
	key := PaymentKey(userID, orderID)

	t.Run("fresh window", func(t *testing.T) {
		c, err := NewChallenge(key, "hash", 5*time.Minute, 10*time.Minute, nil, t0)
		require.NoError(t, err)
		assert.Equal(t, 1, c.SentCount)
		assert.Equal(t, []time.Time{t0}, c.SendTimes)
		assert.Equal(t, t0.Add(5*time.Minute), c.ExpiresAt)
		assert.False(t, c.Verified)
		assert.Equal(t, orderID, *c.OrderID)
	})

	t.Run("carries sends of prior inside window", func(t *testing.T) {
		prior, err := NewChallenge(key, "hash", 5*time.Minute, 10*time.Minute, nil, t0)
		require.NoError(t, err)
		next, err := NewChallenge(key, "hash2", 5*time.Minute, 10*time.Minute, prior, t0.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 2, next.SentCount)
		assert.Equal(t, []time.Time{t0, t0.Add(time.Minute)}, next.SendTimes)
		assert.Equal(t, t0.Add(time.Minute), next.LastSentAt)
	})

	t.Run("drops sends of prior that left the window", func(t *testing.T) {
		prior, err := NewChallenge(key, "hash", 5*time.Minute, 10*time.Minute, nil, t0)
		require.NoError(t, err)
		prior.SendTimes = []time.Time{t0, t0.Add(9 * time.Minute), t0.Add(9*time.Minute + 50*time.Second)}
		now := t0.Add(10*time.Minute + 50*time.Second)
		next, err := NewChallenge(key, "hash2", 5*time.Minute, 10*time.Minute, prior, now)
		require.NoError(t, err)
		assert.Equal(t, 3, next.SentCount)
		assert.Equal(t, []time.Time{t0.Add(9 * time.Minute), t0.Add(9*time.Minute + 50*time.Second), now}, next.SendTimes)
	})

	t.Run("prior without send times counts its last send", func(t *testing.T) {
		prior := &Challenge{LastSentAt: t0}
		next, err := NewChallenge(key, "hash2", 5*time.Minute, 10*time.Minute, prior, t0.Add(time.Minute))
		require.NoError(t, err)
		assert.Equal(t, []time.Time{t0, t0.Add(time.Minute)}, next.SendTimes)
	})

	t.Run("payment requires order", func(t *testing.T) {
		_, err := NewChallenge(Key{UserID: userID, Purpose: PurposePayment}, "hash", time.Minute, 0, nil, t0)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
	})

	t.Run("password reset has no order", func(t *testing.T) {
		c, err := NewChallenge(PasswordResetKey(userID), "hash", 10*time.Minute, 0, nil, t0)
		require.NoError(t, err)
		assert.Nil(t, c.OrderID)
		assert.Equal(t, PurposePasswordReset, c.Purpose)
	})
}

func TestChallenge_CheckVerifiable(t *testing.T) {
	c, err := NewChallenge(PaymentKey(uuid.New(), uuid.New()), "hash", 5*time.Minute, 0, nil, t0)
	require.NoError(t, err)

	assert.NoError(t, c.CheckVerifiable(t0.Add(5*time.Minute)))
	assert.ErrorIs(t, c.CheckVerifiable(t0.Add(5*time.Minute+time.Second)), shared.ErrExpired)

	c.Verified = true
	assert.ErrorIs(t, c.CheckVerifiable(t0.Add(time.Minute)), shared.ErrAlreadyVerified)
	// expiry is reported first
	assert.ErrorIs(t, c.CheckVerifiable(t0.Add(time.Hour)), shared.ErrExpired)
}

func TestChallenge_IsStale(t *testing.T) {
	c, err := NewChallenge(PaymentKey(uuid.New(), uuid.New()), "hash", 5*time.Minute, 0, nil, t0)
	require.NoError(t, err)

	now := t0.Add(10 * time.Minute)
	assert.True(t, c.IsStale(now, now.Add(-5*time.Minute)))

	verifiedAt := t0.Add(time.Minute)
	c.Verified, c.VerifiedAt = true, &verifiedAt
	assert.True(t, c.IsStale(now, now.Add(-5*time.Minute)))
	assert.False(t, c.IsStale(t0.Add(2*time.Minute), t0.Add(-3*time.Minute)))
}

func TestRateLimitPolicy_Evaluate(t *testing.T) {
	policy := RateLimitPolicy{Cooldown: 45 * time.Second, Window: 10 * time.Minute, MaxSends: 3}

	t.Run("empty history allows", func(t *testing.T) {
		assert.NoError(t, policy.Evaluate(nil, t0))
	})

	t.Run("cooldown vetoes", func(t *testing.T) {
		h := []SendRecord{{LastSentAt: t0, SentAt: []time.Time{t0}}}
		err := policy.Evaluate(h, t0.Add(30*time.Second))
		require.ErrorIs(t, err, shared.ErrRateLimited)
		de, _ := shared.AsDomainError(err)
		assert.Equal(t, 15*time.Second, de.RetryAfter)

		assert.NoError(t, policy.Evaluate(h, t0.Add(45*time.Second)))
	})

	t.Run("window count vetoes at max", func(t *testing.T) {
		h := []SendRecord{sends(t0, t0.Add(time.Minute), t0.Add(2*time.Minute))}
		err := policy.Evaluate(h, t0.Add(3*time.Minute))
		require.ErrorIs(t, err, shared.ErrRateLimited)
		de, _ := shared.AsDomainError(err)
		assert.Equal(t, 7*time.Minute, de.RetryAfter)
	})

	t.Run("window sums across records", func(t *testing.T) {
		h := []SendRecord{
			sends(t0),
			sends(t0.Add(time.Minute), t0.Add(2*time.Minute)),
		}
		assert.ErrorIs(t, policy.Evaluate(h, t0.Add(5*time.Minute)), shared.ErrRateLimited)
	})

	t.Run("oldest send leaving the window allows", func(t *testing.T) {
		h := []SendRecord{sends(t0, t0.Add(time.Minute), t0.Add(2*time.Minute))}
		assert.NoError(t, policy.Evaluate(h, t0.Add(10*time.Minute+time.Second)))
	})

	t.Run("window trails the current time", func(t *testing.T) {
		h := []SendRecord{sends(t0.Add(9*time.Minute), t0.Add(9*time.Minute+50*time.Second), t0.Add(10*time.Minute+50*time.Second))}
		err := policy.Evaluate(h, t0.Add(11*time.Minute+40*time.Second))
		require.ErrorIs(t, err, shared.ErrRateLimited)
		de, _ := shared.AsDomainError(err)
		assert.Equal(t, 7*time.Minute+20*time.Second, de.RetryAfter)
	})

	t.Run("send exactly one window old is outside", func(t *testing.T) {
		h := []SendRecord{sends(t0, t0.Add(5*time.Minute), t0.Add(6*time.Minute))}
		assert.NoError(t, policy.Evaluate(h, t0.Add(10*time.Minute)))
	})

	t.Run("disabled policies allow", func(t *testing.T) {
		h := []SendRecord{{LastSentAt: t0, SentAt: []time.Time{t0, t0, t0}}}
		assert.NoError(t, RateLimitPolicy{}.Evaluate(h, t0))
	})
}

func sends(at ...time.Time) SendRecord {
	return SendRecord{LastSentAt: at[len(at)-1], SentAt: at}
}
