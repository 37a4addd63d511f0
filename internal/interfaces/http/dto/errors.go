package dto

import (
	"net/http"

	"github.com/techdigits/backend/internal/domain/shared"
)

// Codes produced by the transport itself. Domain codes pass through
// unchanged.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeInternal         = "INTERNAL_ERROR"
	ErrCodeDuplicateRequest = "DUPLICATE_REQUEST"
	ErrCodeBodyTooLarge     = "REQUEST_TOO_LARGE"
	ErrCodeTimeout          = "REQUEST_TIMEOUT"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeValidation:       http.StatusBadRequest,
	ErrCodeBadRequest:       http.StatusBadRequest,
	ErrCodeInternal:         http.StatusInternalServerError,
	ErrCodeDuplicateRequest: http.StatusConflict,
	ErrCodeBodyTooLarge:     http.StatusRequestEntityTooLarge,
	ErrCodeTimeout:          http.StatusGatewayTimeout,

	shared.CodeInvalidInput:    http.StatusBadRequest,
	shared.CodeUnauthorized:    http.StatusUnauthorized,
	shared.CodeForbidden:       http.StatusForbidden,
	shared.CodeNotFound:        http.StatusNotFound,
	shared.CodeConflict:        http.StatusConflict,
	shared.CodeAlreadyVerified: http.StatusConflict,
	shared.CodeExpired:         http.StatusGone,
	shared.CodeMismatch:        http.StatusUnprocessableEntity,
	shared.CodeRateLimited:     http.StatusTooManyRequests,
	shared.CodeDeliveryFailed:  http.StatusBadGateway,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
