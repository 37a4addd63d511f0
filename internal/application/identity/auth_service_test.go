package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otpapp "github.com/techdigits/backend/internal/application/otp"
	"github.com/techdigits/backend/internal/domain/identity"
	"github.com/techdigits/backend/internal/domain/otp"
	"github.com/techdigits/backend/internal/domain/shared"
	"github.com/techdigits/backend/internal/infrastructure/auth"
	"github.com/techdigits/backend/internal/infrastructure/cache"
	"github.com/techdigits/backend/internal/infrastructure/config"
	"github.com/techdigits/backend/tests/testutil"
	"golang.org/x/crypto/bcrypt"
)

var t0 = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

type authFixture struct {
	store     *testutil.Store
	clock     *shared.ManualClock
	notifier  *testutil.RecordingNotifier
	jwt       *auth.JWTService
	blacklist *auth.InMemoryTokenBlacklist
	service   *AuthService
	user      *identity.User
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	store := testutil.NewStore()
	clock := shared.NewManualClock(t0)
	notifier := testutil.NewRecordingNotifier()
	consumed := cache.NewInMemoryIdempotencyStore(cache.WithStoreClock(clock))
	t.Cleanup(func() { _ = consumed.Close() })

	jwtService := auth.NewJWTService(config.JWTConfig{
		Secret:                "test-secret-key-at-least-32-chars",
		AccessTokenExpiration: time.Hour,
		ResetTokenExpiration:  15 * time.Minute,
		Issuer:                "test",
	}).WithTimeFunc(clock.Now)
	blacklist := auth.NewInMemoryTokenBlacklist(clock)

	authority := otpapp.NewAuthority(store.Challenges(), otp.NewBcryptHasher(bcrypt.MinCost),
		otpapp.DefaultConfig(), nil, otpapp.WithClock(clock))

	u, err := identity.NewUser("Amina", "Amina@Example.com", "01012345678", "oldpass123", identity.RoleCustomer, t0)
	require.NoError(t, err)
	store.PutUser(u)

	return &authFixture{
		store:     store,
		clock:     clock,
		notifier:  notifier,
		jwt:       jwtService,
		blacklist: blacklist,
		user:      u,
		service: NewAuthService(AuthServiceDeps{
			Users:     store.Users(),
			Authority: authority,
			Notifier:  notifier,
			JWT:       jwtService,
			Consumed:  consumed,
			Blacklist: blacklist,
			Clock:     clock,
		}),
	}
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	de, ok := shared.AsDomainError(err)
	require.True(t, ok, "expected domain error, got %v", err)
	assert.Equal(t, code, de.Code)
}

// verifiedResetToken runs the forgot + verify steps and returns the token.
func (f *authFixture) verifiedResetToken(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	_, err := f.service.RequestReset(ctx, ForgotPasswordRequest{Email: "amina@example.com"})
	require.NoError(t, err)
	res, err := f.service.VerifyReset(ctx, VerifyResetRequest{Email: "amina@example.com", Code: f.notifier.LastCode()})
	require.NoError(t, err)
	return res.ResetToken
}

func TestAuthService_Login(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	t.Run("success with folded email", func(t *testing.T) {
		res, err := f.service.Login(ctx, LoginRequest{Email: "  AMINA@example.COM ", Password: "oldpass123"})
		require.NoError(t, err)
		assert.Equal(t, "Bearer", res.TokenType)
		assert.Equal(t, f.user.ID, res.User.ID)
		assert.Equal(t, "customer", res.User.Role)

		claims, err := f.jwt.ValidateAccessToken(res.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, f.user.ID.String(), claims.UserID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := f.service.Login(ctx, LoginRequest{Email: "amina@example.com", Password: "nope12345"})
		requireCode(t, err, shared.CodeUnauthorized)
	})

	t.Run("unknown email answers the same", func(t *testing.T) {
		_, err := f.service.Login(ctx, LoginRequest{Email: "ghost@example.com", Password: "oldpass123"})
		requireCode(t, err, shared.CodeUnauthorized)
		de, _ := shared.AsDomainError(err)
		assert.Equal(t, "Invalid email or password", de.Message)
	})
}

func TestAuthService_Logout(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res, err := f.service.Login(ctx, LoginRequest{Email: "amina@example.com", Password: "oldpass123"})
	require.NoError(t, err)
	claims, err := f.jwt.ValidateAccessToken(res.AccessToken)
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(ctx, claims))

	revoked, err := f.blacklist.IsBlacklisted(ctx, claims.ID)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestAuthService_RequestReset(t *testing.T) {
	ctx := context.Background()

	t.Run("known email gets a code by email", func(t *testing.T) {
		f := newAuthFixture(t)
		res, err := f.service.RequestReset(ctx, ForgotPasswordRequest{Email: "amina@example.com"})
		require.NoError(t, err)
		assert.Equal(t, resetRequestedMessage, res.Message)

		require.Equal(t, 1, f.notifier.Count())
		d := f.notifier.Deliveries()[0]
		assert.Equal(t, otp.ChannelEmail, d.Channel)
		assert.Equal(t, otp.PurposePasswordReset, d.Purpose)
		assert.Equal(t, 10*time.Minute, d.TTL)
	})

	t.Run("unknown email is silent", func(t *testing.T) {
		f := newAuthFixture(t)
		res, err := f.service.RequestReset(ctx, ForgotPasswordRequest{Email: "ghost@example.com"})
		require.NoError(t, err)
		assert.Equal(t, resetRequestedMessage, res.Message)
		assert.Zero(t, f.notifier.Count())
	})

	t.Run("cooldown applies", func(t *testing.T) {
		f := newAuthFixture(t)
		_, err := f.service.RequestReset(ctx, ForgotPasswordRequest{Email: "amina@example.com"})
		require.NoError(t, err)
		f.clock.Advance(5 * time.Second)
		_, err = f.service.RequestReset(ctx, ForgotPasswordRequest{Email: "amina@example.com"})
		requireCode(t, err, shared.CodeRateLimited)
	})

	t.Run("delivery failure is reported, not fatal", func(t *testing.T) {
		f := newAuthFixture(t)
		f.notifier.SetError(errors.New("smtp down"))
		res, err := f.service.RequestReset(ctx, ForgotPasswordRequest{Email: "amina@example.com"})
		require.NoError(t, err)
		assert.NotEmpty(t, res.DeliveryWarning)
	})
}

func TestAuthService_VerifyReset(t *testing.T) {
	ctx := context.Background()

	t.Run("issues a reset token", func(t *testing.T) {
		f := newAuthFixture(t)
		token := f.verifiedResetToken(t)

		claims, err := f.jwt.ValidateResetToken(token)
		require.NoError(t, err)
		assert.Equal(t, f.user.ID.String(), claims.UserID)
		assert.True(t, t0.Add(15*time.Minute).Equal(claims.GetExpiresAtTime()))
	})

	t.Run("wrong code", func(t *testing.T) {
		f := newAuthFixture(t)
		_, err := f.service.RequestReset(ctx, ForgotPasswordRequest{Email: "amina@example.com"})
		require.NoError(t, err)
		wrong := "000000"
		if f.notifier.LastCode() == wrong {
			wrong = "111111"
		}
		_, err = f.service.VerifyReset(ctx, VerifyResetRequest{Email: "amina@example.com", Code: wrong})
		requireCode(t, err, shared.CodeMismatch)
	})

	t.Run("expired after ten minutes", func(t *testing.T) {
		f := newAuthFixture(t)
		_, err := f.service.RequestReset(ctx, ForgotPasswordRequest{Email: "amina@example.com"})
		require.NoError(t, err)
		f.clock.Advance(10*time.Minute + time.Second)
		_, err = f.service.VerifyReset(ctx, VerifyResetRequest{Email: "amina@example.com", Code: f.notifier.LastCode()})
		requireCode(t, err, shared.CodeExpired)
	})

	t.Run("unknown email", func(t *testing.T) {
		f := newAuthFixture(t)
		_, err := f.service.VerifyReset(ctx, VerifyResetRequest{Email: "ghost@example.com", Code: "123456"})
		requireCode(t, err, shared.CodeNotFound)
	})
}

func TestAuthService_ResetPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("changes the password once", func(t *testing.T) {
		f := newAuthFixture(t)
		login, err := f.service.Login(ctx, LoginRequest{Email: "amina@example.com", Password: "oldpass123"})
		require.NoError(t, err)
		oldClaims, err := f.jwt.ValidateAccessToken(login.AccessToken)
		require.NoError(t, err)

		token := f.verifiedResetToken(t)
		f.clock.Advance(time.Minute)

		require.NoError(t, f.service.ResetPassword(ctx, ResetPasswordRequest{ResetToken: token, NewPassword: "newpass456"}))

		_, err = f.service.Login(ctx, LoginRequest{Email: "amina@example.com", Password: "oldpass123"})
		requireCode(t, err, shared.CodeUnauthorized)

		f.clock.Advance(time.Second)
		_, err = f.service.Login(ctx, LoginRequest{Email: "amina@example.com", Password: "newpass456"})
		require.NoError(t, err)

		assert.Empty(t, f.store.ChallengesFor(otp.PasswordResetKey(f.user.ID)))

		revoked, err := f.blacklist.IsUserTokenInvalidated(ctx, f.user.ID.String(), oldClaims.GetIssuedAtTime())
		require.NoError(t, err)
		assert.True(t, revoked, "sessions from before the reset are revoked")

		err = f.service.ResetPassword(ctx, ResetPasswordRequest{ResetToken: token, NewPassword: "another789"})
		require.Error(t, err)
	})

	t.Run("consumed token is rejected", func(t *testing.T) {
		f := newAuthFixture(t)
		token := f.verifiedResetToken(t)
		claims, err := f.jwt.ValidateResetToken(token)
		require.NoError(t, err)

		consumed := cache.NewInMemoryIdempotencyStore(cache.WithStoreClock(f.clock))
		defer consumed.Close()
		_, err = consumed.Claim(ctx, "reset:"+claims.ID, time.Hour)
		require.NoError(t, err)
		f.service.consumed = consumed

		err = f.service.ResetPassword(ctx, ResetPasswordRequest{ResetToken: token, NewPassword: "newpass456"})
		requireCode(t, err, shared.CodeConflict)
	})

	t.Run("weak password", func(t *testing.T) {
		f := newAuthFixture(t)
		token := f.verifiedResetToken(t)
		err := f.service.ResetPassword(ctx, ResetPasswordRequest{ResetToken: token, NewPassword: "onlyletters"})
		requireCode(t, err, shared.CodeInvalidInput)

		// the token was not consumed
		require.NoError(t, f.service.ResetPassword(ctx, ResetPasswordRequest{ResetToken: token, NewPassword: "letters123"}))
	})

	t.Run("invalid token", func(t *testing.T) {
		f := newAuthFixture(t)
		err := f.service.ResetPassword(ctx, ResetPasswordRequest{ResetToken: "garbage", NewPassword: "newpass456"})
		requireCode(t, err, shared.CodeUnauthorized)
	})

	t.Run("expired token", func(t *testing.T) {
		f := newAuthFixture(t)
		token := f.verifiedResetToken(t)
		f.clock.Advance(16 * time.Minute)
		err := f.service.ResetPassword(ctx, ResetPasswordRequest{ResetToken: token, NewPassword: "newpass456"})
		requireCode(t, err, shared.CodeUnauthorized)
	})

	t.Run("challenge no longer verified", func(t *testing.T) {
		f := newAuthFixture(t)
		token := f.verifiedResetToken(t)
		_, err := f.store.Challenges().DeleteByKey(ctx, otp.PasswordResetKey(f.user.ID))
		require.NoError(t, err)

		err = f.service.ResetPassword(ctx, ResetPasswordRequest{ResetToken: token, NewPassword: "newpass456"})
		requireCode(t, err, shared.CodeForbidden)
	})

	t.Run("access token is not a reset token", func(t *testing.T) {
		f := newAuthFixture(t)
		access, err := f.jwt.GenerateAccessToken(f.user.ID, f.user.Email, "customer")
		require.NoError(t, err)
		err = f.service.ResetPassword(ctx, ResetPasswordRequest{ResetToken: access.Token, NewPassword: "newpass456"})
		requireCode(t, err, shared.CodeUnauthorized)
	})
}

func TestAuthService_Me(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	info, err := f.service.Me(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "amina@example.com", info.Email)

	_, err = f.service.Me(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
