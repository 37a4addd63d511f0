package handler

import (
	"github.com/gin-gonic/gin"
	identityapp "github.com/techdigits/backend/internal/application/identity"
	"github.com/techdigits/backend/internal/interfaces/http/middleware"
)

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	BaseHandler
	authService AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Login godoc
// @Summary      User login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body identityapp.LoginRequest true "Login credentials"
// @Success      200 {object} dto.Response{data=identityapp.LoginResult}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req identityapp.LoginRequest
	if !h.bindJSON(c, &req) {
		return
	}
	result, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Logout revokes the presented access token.
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context(), middleware.GetJWTClaims(c)); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"message": "Logged out"})
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	user, err := h.authService.Me(c.Request.Context(), userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, user)
}

// ForgotPassword godoc
// @Summary      Send a password reset code
// @Description  The answer is the same whether or not the email is registered
// @Tags         auth
// @Param        request body identityapp.ForgotPasswordRequest true "Account email"
// @Success      200 {object} dto.Response{data=identityapp.ForgotPasswordResult}
// @Failure      429 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /auth/password/forgot [post]
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req identityapp.ForgotPasswordRequest
	if !h.bindJSON(c, &req) {
		return
	}
	result, err := h.authService.RequestReset(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// VerifyResetCode godoc
// @Summary      Exchange a reset code for a reset token
// @Tags         auth
// @Param        request body identityapp.VerifyResetRequest true "Email and code"
// @Success      200 {object} dto.Response{data=identityapp.VerifyResetResult}
// @Failure      410 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /auth/password/verify [post]
func (h *AuthHandler) VerifyResetCode(c *gin.Context) {
	var req identityapp.VerifyResetRequest
	if !h.bindJSON(c, &req) {
		return
	}
	result, err := h.authService.VerifyReset(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ResetPassword sets a new password with a reset token.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req identityapp.ResetPasswordRequest
	if !h.bindJSON(c, &req) {
		return
	}
	if err := h.authService.ResetPassword(c.Request.Context(), req); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"message": "Password updated"})
}
