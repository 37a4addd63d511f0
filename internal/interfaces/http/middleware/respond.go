// Package middleware provides the HTTP middleware of the payment API.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/techdigits/backend/internal/interfaces/http/dto"
)

// RequestIDKey is the gin context key holding the request ID
const RequestIDKey = "request_id"

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// ErrorCodeKey holds the error code of a failed request for metrics and
// tracing.
const ErrorCodeKey = "error_code"

// SetErrorCode records the error code a response carries.
func SetErrorCode(c *gin.Context, code string) {
	c.Set(ErrorCodeKey, code)
}

// GetRequestID returns the request ID set by RequestID.
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}

// abort stops the chain with an error envelope.
func abort(c *gin.Context, status int, code, message string) {
	SetErrorCode(c, code)
	c.AbortWithStatusJSON(status, dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
}
