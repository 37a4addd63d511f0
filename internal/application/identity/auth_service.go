package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	otpapp "github.com/techdigits/backend/internal/application/otp"
	"github.com/techdigits/backend/internal/domain/identity"
	"github.com/techdigits/backend/internal/domain/otp"
	"github.com/techdigits/backend/internal/domain/shared"
	"github.com/techdigits/backend/internal/infrastructure/auth"
	"github.com/techdigits/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const resetRequestedMessage = "If the email is registered, a reset code has been sent"

// AuthService handles login and the password reset flow
type AuthService struct {
	userRepo   identity.Repository
	authority  *otpapp.Authority
	notifier   otp.Notifier
	jwtService *auth.JWTService
	consumed   shared.IdempotencyStore
	blacklist  auth.TokenBlacklist
	clock      shared.Clock
	logger     *zap.Logger
}

// AuthServiceDeps groups the collaborators of AuthService. Blacklist is
// optional.
type AuthServiceDeps struct {
	Users      identity.Repository
	Authority  *otpapp.Authority
	Notifier   otp.Notifier
	JWT        *auth.JWTService
	Consumed   shared.IdempotencyStore
	Blacklist  auth.TokenBlacklist
	Clock      shared.Clock
	Logger     *zap.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(deps AuthServiceDeps) *AuthService {
	if deps.Clock == nil {
		deps.Clock = shared.SystemClock()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &AuthService{
		userRepo:   deps.Users,
		authority:  deps.Authority,
		notifier:   deps.Notifier,
		jwtService: deps.JWT,
		consumed:   deps.Consumed,
		blacklist:  deps.Blacklist,
		clock:      deps.Clock,
		logger:     deps.Logger,
	}
}

// Login authenticates a user and returns an access token
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	email := identity.NormalizeEmail(req.Email)

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("Login attempt for unknown email")
			return nil, invalidCredentials()
		}
		return nil, err
	}

	if !user.CheckPassword(req.Password) {
		s.logger.Warn("Invalid password attempt", zap.String("user_id", user.ID.String()))
		return nil, invalidCredentials()
	}

	token, err := s.jwtService.GenerateAccessToken(user.ID, user.Email, string(user.Role))
	if err != nil {
		s.logger.Error("Failed to generate access token", zap.Error(err))
		return nil, err
	}

	s.logger.Info("User logged in", zap.String("user_id", user.ID.String()))

	return &LoginResult{
		AccessToken: token.Token,
		ExpiresAt:   token.ExpiresAt,
		TokenType:   token.TokenType,
		User:        ToUserInfo(user),
	}, nil
}

// Logout revokes the presented access token for the rest of its lifetime
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims) error {
	if s.blacklist == nil || claims == nil {
		return nil
	}
	ttl := claims.RemainingTTL(s.clock.Now())
	if ttl <= 0 {
		return nil
	}
	if err := s.blacklist.AddToBlacklist(ctx, claims.ID, ttl); err != nil {
		return err
	}
	s.logger.Info("User logged out", zap.String("user_id", claims.UserID))
	return nil
}

// Me returns the profile of the authenticated user
func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*UserInfo, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	info := ToUserInfo(user)
	return &info, nil
}

// RequestReset emails a password reset code. Unknown emails get the same
// answer as known ones.
func (s *AuthService) RequestReset(ctx context.Context, req ForgotPasswordRequest) (*ForgotPasswordResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "auth_service", "request_reset")
	defer span.End()

	result := &ForgotPasswordResult{Message: resetRequestedMessage}

	user, err := s.userRepo.FindByEmail(ctx, identity.NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Info("Password reset requested for unknown email")
			return result, nil
		}
		telemetry.RecordError(span, err)
		return nil, err
	}

	issued, err := s.authority.Issue(ctx, otp.PasswordResetKey(user.ID), 0)
	if err != nil {
		return nil, err
	}

	err = s.notifier.Send(ctx, otp.Delivery{
		Channel: otp.ChannelEmail,
		Address: user.Email,
		Code:    issued.Code,
		TTL:     issued.ExpiresAt.Sub(s.clock.Now()),
		Purpose: otp.PurposePasswordReset,
	})
	if err != nil {
		s.logger.Warn("Password reset code delivery failed",
			zap.String("user_id", user.ID.String()),
			zap.Error(err))
		result.DeliveryWarning = "The code could not be delivered. Try again shortly."
	}
	return result, nil
}

// VerifyReset checks a reset code and returns a reset token
func (s *AuthService) VerifyReset(ctx context.Context, req VerifyResetRequest) (*VerifyResetResult, error) {
	user, err := s.userRepo.FindByEmail(ctx, identity.NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError(shared.CodeNotFound, "No code found. Please request a new one")
		}
		return nil, err
	}

	if _, err := s.authority.Verify(ctx, otp.PasswordResetKey(user.ID), req.Code); err != nil {
		return nil, err
	}

	token, err := s.jwtService.GenerateResetToken(user.ID)
	if err != nil {
		return nil, err
	}
	return &VerifyResetResult{ResetToken: token.Token, ExpiresAt: token.ExpiresAt}, nil
}

// ResetPassword sets a new password. The reset token is single use and is
// only honored while the reset challenge it was issued for is verified.
// Every access token issued before the change is revoked.
func (s *AuthService) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "auth_service", "reset_password")
	defer span.End()

	claims, err := s.jwtService.ValidateResetToken(req.ResetToken)
	if err != nil {
		return shared.NewDomainError(shared.CodeUnauthorized, "Invalid or expired reset token")
	}
	userID, err := claims.GetUserUUID()
	if err != nil {
		return shared.NewDomainError(shared.CodeUnauthorized, "Invalid or expired reset token")
	}
	if err := identity.ValidatePassword(req.NewPassword); err != nil {
		return err
	}

	key := otp.PasswordResetKey(userID)
	now := s.clock.Now()
	if _, err := s.authority.LatestVerified(ctx, key, now.Sub(claims.GetIssuedAtTime())+s.authority.VerifiedGrace()); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NewDomainError(shared.CodeForbidden, "Reset code has not been verified")
		}
		return err
	}

	claimed, err := s.consumed.Claim(ctx, "reset:"+claims.ID, claims.RemainingTTL(now))
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if !claimed {
		return shared.NewDomainError(shared.CodeConflict, "Reset token has already been used")
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := user.SetPassword(req.NewPassword, now); err != nil {
		return err
	}
	if err := s.userRepo.UpdatePassword(ctx, user); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	if err := s.authority.Invalidate(ctx, key); err != nil {
		s.logger.Warn("Failed to invalidate reset challenges", zap.String("user_id", userID.String()), zap.Error(err))
	}
	if s.blacklist != nil {
		if err := s.blacklist.AddUserTokensToBlacklist(ctx, userID.String(), s.jwtService.GetAccessTokenExpiration()); err != nil {
			s.logger.Warn("Failed to revoke sessions after password reset", zap.String("user_id", userID.String()), zap.Error(err))
		}
	}

	s.logger.Info("Password reset completed", zap.String("user_id", userID.String()))
	return nil
}

func invalidCredentials() error {
	return shared.NewDomainError(shared.CodeUnauthorized, "Invalid email or password")
}
