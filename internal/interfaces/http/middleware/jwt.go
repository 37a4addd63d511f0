package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/techdigits/backend/internal/domain/identity"
	"github.com/techdigits/backend/internal/infrastructure/auth"
	"github.com/techdigits/backend/internal/infrastructure/logger"
	"github.com/techdigits/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// Context keys for JWT claims
const (
	JWTClaimsKey  = "jwt_claims"
	JWTUserIDKey  = "jwt_user_id"
	JWTRoleKey    = "jwt_role"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// JWTMiddlewareConfig holds configuration for JWT middleware
type JWTMiddlewareConfig struct {
	JWTService *auth.JWTService
	// TokenBlacklist is optional. Lookups that fail let the request through.
	TokenBlacklist auth.TokenBlacklist
	Logger         *zap.Logger
}

// JWTAuthMiddleware authenticates bearer access tokens.
func JWTAuthMiddleware(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			handleAuthError(c, log, nil, "Authorization header is required")
			return
		}
		if !strings.HasPrefix(authHeader, BearerPrefix) {
			handleAuthError(c, log, nil, "Authorization header must use Bearer scheme")
			return
		}
		tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, BearerPrefix))
		if tokenString == "" {
			handleAuthError(c, log, nil, "Token is required")
			return
		}

		claims, err := cfg.JWTService.ValidateAccessToken(tokenString)
		if err != nil {
			handleAuthError(c, log, err, "")
			return
		}

		if cfg.TokenBlacklist != nil && revoked(c, cfg.TokenBlacklist, log, claims) {
			handleAuthError(c, log, auth.ErrTokenBlacklisted, "")
			return
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(JWTUserIDKey, claims.UserID)
		c.Set(JWTRoleKey, claims.Role)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), claims.UserID))

		c.Next()
	}
}

// revoked reports whether the token was logged out individually or issued
// before a user-wide invalidation.
func revoked(c *gin.Context, blacklist auth.TokenBlacklist, log *zap.Logger, claims *auth.Claims) bool {
	ctx := c.Request.Context()
	if claims.ID != "" {
		blacklisted, err := blacklist.IsBlacklisted(ctx, claims.ID)
		if err != nil {
			log.Warn("Token blacklist lookup failed", zap.String("jti", claims.ID), zap.Error(err))
		} else if blacklisted {
			return true
		}
	}
	invalidated, err := blacklist.IsUserTokenInvalidated(ctx, claims.UserID, claims.GetIssuedAtTime())
	if err != nil {
		log.Warn("User token invalidation lookup failed", zap.String("user_id", claims.UserID), zap.Error(err))
		return false
	}
	return invalidated
}

func handleAuthError(c *gin.Context, log *zap.Logger, err error, message string) {
	if message == "" {
		switch {
		case errors.Is(err, auth.ErrExpiredToken):
			message = "Token has expired"
		case errors.Is(err, auth.ErrTokenBlacklisted):
			message = "Token has been revoked"
		case errors.Is(err, auth.ErrTokenNotYetValid):
			message = "Token is not yet valid"
		case errors.Is(err, auth.ErrInvalidTokenType):
			message = "Invalid token type"
		default:
			message = "Invalid token"
		}
	}

	log.Debug("Authentication failed",
		zap.String("path", c.Request.URL.Path),
		zap.String("reason", message),
		zap.Error(err),
	)
	abort(c, http.StatusUnauthorized, shared.CodeUnauthorized, message)
}

// AdminOnly rejects authenticated callers without the admin role. It must
// run after JWTAuthMiddleware.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetJWTRole(c) != string(identity.RoleAdmin) {
			abort(c, http.StatusForbidden, shared.CodeForbidden, "Admin access required")
			return
		}
		c.Next()
	}
}

// GetJWTClaims retrieves JWT claims from the gin context
func GetJWTClaims(c *gin.Context) *auth.Claims {
	if claims, exists := c.Get(JWTClaimsKey); exists {
		if jwtClaims, ok := claims.(*auth.Claims); ok {
			return jwtClaims
		}
	}
	return nil
}

// GetJWTUserID retrieves the user ID from the gin context
func GetJWTUserID(c *gin.Context) string {
	return c.GetString(JWTUserIDKey)
}

// GetJWTUserUUID parses the authenticated user ID.
func GetJWTUserUUID(c *gin.Context) (uuid.UUID, error) {
	return uuid.Parse(GetJWTUserID(c))
}

// GetJWTRole retrieves the role from the gin context
func GetJWTRole(c *gin.Context) string {
	return c.GetString(JWTRoleKey)
}
