package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/techdigits/backend/internal/infrastructure/config"
)

// TokenType represents the type of JWT token
type TokenType string

const (
	TokenTypeAccess TokenType = "access"
	TokenTypeReset  TokenType = "reset"
)

// PurposePasswordReset is the purpose claim of reset tokens.
const PurposePasswordReset = "pwd_reset"

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidTokenType = errors.New("invalid token type")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrMissingUserID    = errors.New("missing user_id in claims")
	ErrTokenBlacklisted = errors.New("token has been revoked")
)

// Claims represents custom JWT claims
type Claims struct {
	jwt.RegisteredClaims
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	Purpose   string    `json:"purpose,omitempty"`
	TokenType TokenType `json:"token_type"`
}

// IssuedToken is a signed token with its expiry
type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	TokenType string    `json:"token_type"` // Bearer
}

// JWTService handles JWT token operations
type JWTService struct {
	accessSecret     []byte
	resetSecret      []byte
	accessExpiration time.Duration
	resetExpiration  time.Duration
	issuer           string
	now              func() time.Time
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg config.JWTConfig) *JWTService {
	resetSecret := []byte(cfg.ResetSecret)
	if cfg.ResetSecret == "" {
		resetSecret = []byte(cfg.Secret)
	}
	resetExpiration := cfg.ResetTokenExpiration
	if resetExpiration <= 0 {
		resetExpiration = 15 * time.Minute
	}

	return &JWTService{
		accessSecret:     []byte(cfg.Secret),
		resetSecret:      resetSecret,
		accessExpiration: cfg.AccessTokenExpiration,
		resetExpiration:  resetExpiration,
		issuer:           cfg.Issuer,
		now:              time.Now,
	}
}

// WithTimeFunc replaces the clock used to stamp and validate tokens.
func (s *JWTService) WithTimeFunc(now func() time.Time) *JWTService {
	s.now = now
	return s
}

// GenerateAccessToken issues a bearer token for an authenticated user
func (s *JWTService) GenerateAccessToken(userID uuid.UUID, email, role string) (*IssuedToken, error) {
	now := s.now()
	claims := &Claims{
		RegisteredClaims: s.registered(userID, now, s.accessExpiration),
		UserID:           userID.String(),
		Email:            email,
		Role:             role,
		TokenType:        TokenTypeAccess,
	}
	token, err := s.generateToken(claims, s.accessSecret)
	if err != nil {
		return nil, err
	}
	return &IssuedToken{Token: token, ExpiresAt: now.Add(s.accessExpiration), TokenType: "Bearer"}, nil
}

// GenerateResetToken issues a short-lived token that authorizes a single
// password change. Its jti is what gets consumed.
func (s *JWTService) GenerateResetToken(userID uuid.UUID) (*IssuedToken, error) {
	now := s.now()
	claims := &Claims{
		RegisteredClaims: s.registered(userID, now, s.resetExpiration),
		UserID:           userID.String(),
		Purpose:          PurposePasswordReset,
		TokenType:        TokenTypeReset,
	}
	token, err := s.generateToken(claims, s.resetSecret)
	if err != nil {
		return nil, err
	}
	return &IssuedToken{Token: token, ExpiresAt: now.Add(s.resetExpiration), TokenType: "Bearer"}, nil
}

func (s *JWTService) registered(userID uuid.UUID, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		Issuer:    s.issuer,
		Subject:   userID.String(),
		Audience:  jwt.ClaimStrings{s.issuer},
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
	}
}

// generateToken creates a signed JWT token
func (s *JWTService) generateToken(claims *Claims, secret []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateAccessToken validates an access token and returns its claims
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.validateToken(tokenString, s.accessSecret, TokenTypeAccess)
}

// ValidateResetToken validates a password-reset token and returns its claims
func (s *JWTService) ValidateResetToken(tokenString string) (*Claims, error) {
	claims, err := s.validateToken(tokenString, s.resetSecret, TokenTypeReset)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != PurposePasswordReset {
		return nil, ErrInvalidClaims
	}
	return claims, nil
}

// validateToken validates a JWT token
func (s *JWTService) validateToken(tokenString string, secret []byte, expectedType TokenType) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}

	if claims.TokenType != expectedType {
		return nil, ErrInvalidTokenType
	}
	if claims.UserID == "" {
		return nil, ErrMissingUserID
	}

	return claims, nil
}

// GetUserUUID extracts and parses the user ID from claims
func (c *Claims) GetUserUUID() (uuid.UUID, error) {
	return uuid.Parse(c.UserID)
}

// IsAdmin reports whether the token carries the admin role
func (c *Claims) IsAdmin() bool {
	return c.Role == "admin"
}

// GetIssuedAtTime returns the token's issued-at time as time.Time
func (c *Claims) GetIssuedAtTime() time.Time {
	if c.IssuedAt != nil {
		return c.IssuedAt.Time
	}
	return time.Time{}
}

// GetExpiresAtTime returns the token's expiration time as time.Time
func (c *Claims) GetExpiresAtTime() time.Time {
	if c.ExpiresAt != nil {
		return c.ExpiresAt.Time
	}
	return time.Time{}
}

// RemainingTTL returns the time left until the token expires, as seen at now
func (c *Claims) RemainingTTL(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	remaining := c.ExpiresAt.Time.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// GetAccessTokenExpiration returns the access token expiration duration
func (s *JWTService) GetAccessTokenExpiration() time.Duration {
	return s.accessExpiration
}

// Now returns the service clock's current time
func (s *JWTService) Now() time.Time {
	return s.now()
}
