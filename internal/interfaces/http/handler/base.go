// Package handler implements the HTTP handlers of the payment API.
package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/techdigits/backend/internal/domain/shared"
	"github.com/techdigits/backend/internal/infrastructure/logger"
	"github.com/techdigits/backend/internal/interfaces/http/dto"
	"github.com/techdigits/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessPage sends a paginated success response
func (h *BaseHandler) SuccessPage(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error envelope with the status its code maps to
func (h *BaseHandler) Error(c *gin.Context, code, message string) {
	middleware.SetErrorCode(c, code)
	c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, dto.ErrCodeBadRequest, message)
}

// HandleError converts an error returned by a service into a response.
// Domain errors keep their code. RATE_LIMITED adds Retry-After and
// CONFLICT the status the resource is in. Anything else is logged and
// answered with a 500 that reveals nothing.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var domainErr *shared.DomainError
	if !errors.As(err, &domainErr) {
		logger.L(c.Request.Context()).Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		h.Error(c, dto.ErrCodeInternal, "An unexpected error occurred")
		return
	}

	resp := dto.NewErrorResponseWithRequestID(domainErr.Code, domainErr.Message, middleware.GetRequestID(c))
	resp.Error.CurrentStatus = domainErr.CurrentStatus
	if domainErr.Code == shared.CodeRateLimited && domainErr.RetryAfter > 0 {
		seconds := int(math.Ceil(domainErr.RetryAfter.Seconds()))
		resp.Error.RetryAfter = seconds
		c.Header("Retry-After", strconv.Itoa(seconds))
	}
	middleware.SetErrorCode(c, domainErr.Code)
	c.JSON(dto.GetHTTPStatus(domainErr.Code), resp)
}

// bindJSON decodes the body strictly into req. It answers the request and
// returns false when the body is unusable.
func (h *BaseHandler) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.HandleBindError(c, err)
		return false
	}
	return true
}

// bindQuery binds query parameters into req.
func (h *BaseHandler) bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		middleware.HandleBindError(c, err)
		return false
	}
	return true
}

// pathUUID parses a UUID path parameter.
func (h *BaseHandler) pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.Error(c, shared.CodeInvalidInput, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// currentUser returns the authenticated user ID.
func (h *BaseHandler) currentUser(c *gin.Context) (uuid.UUID, bool) {
	id, err := middleware.GetJWTUserUUID(c)
	if err != nil {
		h.Error(c, shared.CodeUnauthorized, "Authentication required")
		return uuid.Nil, false
	}
	return id, true
}

// isAdmin reports whether the caller holds the admin role.
func (h *BaseHandler) isAdmin(c *gin.Context) bool {
	claims := middleware.GetJWTClaims(c)
	return claims != nil && claims.IsAdmin()
}
