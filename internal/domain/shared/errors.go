package shared

import (
	"errors"
	"fmt"
	"time"
)

// Error codes shared by every bounded context.
const (
	CodeInvalidInput    = "INVALID_INPUT"
	CodeNotFound        = "NOT_FOUND"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeConflict        = "CONFLICT"
	CodeExpired         = "EXPIRED"
	CodeMismatch        = "MISMATCH"
	CodeAlreadyVerified = "ALREADY_VERIFIED"
	CodeRateLimited     = "RATE_LIMITED"
	CodeDeliveryFailed  = "DELIVERY_FAILED"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// RetryAfter is set on RATE_LIMITED errors.
	RetryAfter time.Duration `json:"-"`
	// CurrentStatus is set on CONFLICT errors raised by status guards.
	CurrentStatus string `json:"-"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError with the same code, so that
// errors.Is(err, ErrNotFound) holds for any NOT_FOUND error.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewConflictError reports that a resource is in a different state than required.
func NewConflictError(resource, currentStatus string) *DomainError {
	return &DomainError{
		Code:          CodeConflict,
		Message:       fmt.Sprintf("%s is already %s", resource, currentStatus),
		CurrentStatus: currentStatus,
	}
}

// NewRateLimitedError reports a send veto with the time left until a retry may succeed.
func NewRateLimitedError(message string, retryAfter time.Duration) *DomainError {
	return &DomainError{
		Code:       CodeRateLimited,
		Message:    message,
		RetryAfter: retryAfter,
	}
}

// AsDomainError extracts a DomainError from the chain.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// Common domain errors
var (
	ErrInvalidInput    = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrNotFound        = NewDomainError(CodeNotFound, "Resource not found")
	ErrUnauthorized    = NewDomainError(CodeUnauthorized, "Authentication required")
	ErrForbidden       = NewDomainError(CodeForbidden, "Access to this resource is forbidden")
	ErrConflict        = NewDomainError(CodeConflict, "Resource is not in the expected state")
	ErrExpired         = NewDomainError(CodeExpired, "Code has expired")
	ErrMismatch        = NewDomainError(CodeMismatch, "Code does not match")
	ErrAlreadyVerified = NewDomainError(CodeAlreadyVerified, "Code has already been used")
	ErrRateLimited     = NewDomainError(CodeRateLimited, "Too many requests, try again later")
	ErrDeliveryFailed  = NewDomainError(CodeDeliveryFailed, "Notification could not be delivered")
)
