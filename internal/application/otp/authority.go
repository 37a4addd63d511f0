// Package otp issues and verifies one-time codes for payments and password
// resets.
package otp

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/techdigits/backend/internal/domain/otp"
	"github.com/techdigits/backend/internal/domain/shared"
	"github.com/techdigits/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Policy configures one challenge purpose.
type Policy struct {
	TTL       time.Duration
	RateLimit otp.RateLimitPolicy
}

// Config contains configuration for the Authority
type Config struct {
	Policies map[otp.Purpose]Policy
	// VerifiedGrace is how long a verified challenge keeps authorizing a
	// direct payment.
	VerifiedGrace time.Duration
	// VerifiedRetention is how long the sweeper keeps verified challenges.
	// It must cover the reset token lifetime, since a password reset is only
	// honored while its verified challenge exists.
	VerifiedRetention time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	limits := otp.RateLimitPolicy{
		Cooldown: 45 * time.Second,
		Window:   10 * time.Minute,
		MaxSends: 3,
	}
	return Config{
		Policies: map[otp.Purpose]Policy{
			otp.PurposePayment:       {TTL: 5 * time.Minute, RateLimit: limits},
			otp.PurposePasswordReset: {TTL: 10 * time.Minute, RateLimit: limits},
		},
		VerifiedGrace:     5 * time.Minute,
		VerifiedRetention: 15 * time.Minute,
	}
}

// Issued is the result of a send. Code is the plaintext for delivery only.
type Issued struct {
	Code      string
	ExpiresAt time.Time
	// SentCount is the number of sends to the pair inside the trailing window.
	SentCount int
}

// Authority issues, verifies and expires challenges. At most one unverified
// challenge exists per key after any of its calls.
type Authority struct {
	repo    otp.Repository
	hasher  otp.Hasher
	clock   shared.Clock
	random  io.Reader
	config  Config
	metrics *telemetry.PaymentMetrics
	logger  *zap.Logger
}

// Option configures an Authority.
type Option func(*Authority)

// WithClock overrides the system clock.
func WithClock(c shared.Clock) Option {
	return func(a *Authority) { a.clock = c }
}

// WithRandom overrides the code entropy source.
func WithRandom(r io.Reader) Option {
	return func(a *Authority) { a.random = r }
}

// WithMetrics records issue and verify outcomes.
func WithMetrics(m *telemetry.PaymentMetrics) Option {
	return func(a *Authority) { a.metrics = m }
}

// NewAuthority creates a new Authority
func NewAuthority(repo otp.Repository, hasher otp.Hasher, config Config, logger *zap.Logger, opts ...Option) *Authority {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Authority{
		repo:   repo,
		hasher: hasher,
		clock:  shared.SystemClock(),
		config: config,
		logger: logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Policy returns the policy of purpose.
func (a *Authority) Policy(purpose otp.Purpose) Policy {
	if p, ok := a.config.Policies[purpose]; ok {
		return p
	}
	return DefaultConfig().Policies[purpose]
}

// VerifiedGrace returns the configured verified grace window.
func (a *Authority) VerifiedGrace() time.Duration {
	return a.config.VerifiedGrace
}

// Issue replaces any unverified challenge for key with a fresh one valid for
// ttl (the purpose default when ttl <= 0) and returns its code.
func (a *Authority) Issue(ctx context.Context, key otp.Key, ttl time.Duration) (*Issued, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "otp_authority", "issue")
	defer span.End()

	issued, err := a.send(ctx, key, ttl)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return issued, nil
}

// Resend issues a new code for a key that already has a challenge.
func (a *Authority) Resend(ctx context.Context, key otp.Key) (*Issued, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "otp_authority", "resend")
	defer span.End()

	if _, err := a.repo.FindLatest(ctx, key); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError(shared.CodeNotFound, "No code has been requested yet")
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	issued, err := a.send(ctx, key, 0)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return issued, nil
}

func (a *Authority) send(ctx context.Context, key otp.Key, ttl time.Duration) (*Issued, error) {
	policy := a.Policy(key.Purpose)
	if ttl <= 0 {
		ttl = policy.TTL
	}
	now := a.clock.Now()

	lookback := max(policy.RateLimit.Window, policy.RateLimit.Cooldown)
	history, err := a.repo.FindHistory(ctx, key, now.Add(-lookback))
	if err != nil {
		return nil, err
	}
	if err := policy.RateLimit.Evaluate(otp.Records(history), now); err != nil {
		a.metrics.RecordOtpRateLimited(ctx, string(key.Purpose))
		a.logger.Info("OTP send rate limited",
			zap.String("user_id", key.UserID.String()),
			zap.String("purpose", string(key.Purpose)))
		return nil, err
	}

	var prior *otp.Challenge
	for i := range history {
		if !history[i].Verified {
			prior = &history[i]
			break
		}
	}

	code, err := otp.GenerateCode(a.random)
	if err != nil {
		return nil, err
	}
	hash, err := a.hasher.Hash(code)
	if err != nil {
		return nil, err
	}

	c, err := otp.NewChallenge(key, hash, ttl, policy.RateLimit.Window, prior, now)
	if err != nil {
		return nil, err
	}
	if err := a.repo.Replace(ctx, c); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			// Lost to a concurrent send for the same key.
			return nil, shared.NewRateLimitedError("Please wait before requesting a new code", policy.RateLimit.Cooldown)
		}
		return nil, err
	}

	a.logger.Info("OTP challenge issued",
		zap.String("user_id", key.UserID.String()),
		zap.String("purpose", string(key.Purpose)),
		zap.Int("sent_count", c.SentCount),
		zap.Time("expires_at", c.ExpiresAt))

	return &Issued{Code: code, ExpiresAt: c.ExpiresAt, SentCount: c.SentCount}, nil
}

// Verify checks candidate against the most recent challenge for key and
// consumes it. Concurrent callers with the same valid code see exactly one
// success; the others get ALREADY_VERIFIED.
func (a *Authority) Verify(ctx context.Context, key otp.Key, candidate string) (*otp.Challenge, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "otp_authority", "verify")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrOtpPurpose, string(key.Purpose))

	c, outcome, err := a.verify(ctx, key, candidate)
	a.metrics.RecordOtpVerify(ctx, string(key.Purpose), outcome)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return c, nil
}

func (a *Authority) verify(ctx context.Context, key otp.Key, candidate string) (*otp.Challenge, telemetry.OtpOutcome, error) {
	c, err := a.repo.FindLatest(ctx, key)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, telemetry.OtpOutcomeNotFound,
				shared.NewDomainError(shared.CodeNotFound, "No code found. Please request a new one")
		}
		return nil, telemetry.OtpOutcomeError, err
	}

	now := a.clock.Now()
	if err := c.CheckVerifiable(now); err != nil {
		if errors.Is(err, shared.ErrExpired) {
			return nil, telemetry.OtpOutcomeExpired, err
		}
		return nil, telemetry.OtpOutcomeAlreadyVerified, err
	}

	var matched bool
	telemetry.WithProfilingLabels(ctx, telemetry.OperationLabels(telemetry.OperationVerifyOtp, nil), func(context.Context) {
		matched = a.hasher.Compare(c.CodeHash, candidate)
	})
	if !matched {
		return nil, telemetry.OtpOutcomeMismatch, shared.ErrMismatch
	}

	won, err := a.repo.MarkVerified(ctx, c.ID, now)
	if err != nil {
		return nil, telemetry.OtpOutcomeError, err
	}
	if !won {
		return nil, telemetry.OtpOutcomeAlreadyVerified, shared.ErrAlreadyVerified
	}

	c.Verified = true
	c.VerifiedAt = &now
	c.UpdatedAt = now
	return c, telemetry.OtpOutcomeVerified, nil
}

// LatestVerified returns the newest challenge for key verified within the
// last within, or a NOT_FOUND error.
func (a *Authority) LatestVerified(ctx context.Context, key otp.Key, within time.Duration) (*otp.Challenge, error) {
	return a.repo.FindLatestVerified(ctx, key, a.clock.Now().Add(-within))
}

// Invalidate deletes every challenge of key.
func (a *Authority) Invalidate(ctx context.Context, key otp.Key) error {
	_, err := a.repo.DeleteByKey(ctx, key)
	return err
}

// PurgeStale deletes challenges that expired unverified and verified
// challenges older than the retention window.
func (a *Authority) PurgeStale(ctx context.Context) (expired, verified int64, err error) {
	now := a.clock.Now()
	retention := a.config.VerifiedRetention
	if retention < a.config.VerifiedGrace {
		retention = a.config.VerifiedGrace
	}
	return a.repo.DeleteStale(ctx, now, now.Add(-retention))
}
