package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/techdigits/backend/internal/domain/identity"
)

// LoginRequest contains the input for user login
type LoginRequest struct {
	Email    string `json:"email" binding:"required,max=200"`
	Password string `json:"password" binding:"required,max=72"`
}

// LoginResult contains the result of a successful login
type LoginResult struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	TokenType   string    `json:"token_type"`
	User        UserInfo  `json:"user"`
}

// UserInfo contains basic user information returned after login
type UserInfo struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Phone string    `json:"phone,omitempty"`
	Role  string    `json:"role"`
}

// ForgotPasswordRequest asks for a reset code by email
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email,max=200"`
}

// ForgotPasswordResult is identical whether or not the email is registered
type ForgotPasswordResult struct {
	Message         string `json:"message"`
	DeliveryWarning string `json:"delivery_warning,omitempty"`
}

// VerifyResetRequest exchanges a reset code for a reset token
type VerifyResetRequest struct {
	Email string `json:"email" binding:"required,email,max=200"`
	Code  string `json:"code" binding:"required,len=6,numeric"`
}

// VerifyResetResult carries the short-lived reset token
type VerifyResetResult struct {
	ResetToken string    `json:"reset_token"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ResetPasswordRequest sets a new password with a reset token
type ResetPasswordRequest struct {
	ResetToken  string `json:"reset_token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=72"`
}

// ToUserInfo converts a domain user
func ToUserInfo(u *identity.User) UserInfo {
	return UserInfo{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Phone: u.Phone,
		Role:  string(u.Role),
	}
}
