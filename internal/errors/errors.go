// Package errors defines the service error type shared by all HTTP
// surfaces. Handlers translate a *ServiceError into a JSON response with
// the carried status code; anything else is treated as an internal error.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes returned in API responses.
const (
	CodeInvalidInput   = "INVALID_INPUT"
	CodeInvalidFormat  = "INVALID_FORMAT"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeInvalidToken   = "INVALID_TOKEN"
	CodeForbidden      = "FORBIDDEN"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodeQuotaExceeded  = "QUOTA_EXCEEDED"
	CodeRateLimited    = "RATE_LIMIT_EXCEEDED"
	CodeInternal       = "INTERNAL_ERROR"
	CodeUnavailable    = "SERVICE_UNAVAILABLE"
	CodePayloadTooBig  = "PAYLOAD_TOO_LARGE"
	CodeNotImplemented = "NOT_IMPLEMENTED"
)

// ServiceError is an error with an API-facing code, message and HTTP
// status. The wrapped cause, when present, is logged but never returned
// to the client.
type ServiceError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of the error with an extra detail attached.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	clone := *e
	clone.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		clone.Details[k] = v
	}
	clone.Details[key] = value
	return &clone
}

// New creates a ServiceError with an explicit code and status.
func New(code, message string, status int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status}
}

// InvalidInput reports a request that failed validation.
func InvalidInput(message string) *ServiceError {
	return &ServiceError{Code: CodeInvalidInput, Message: message, HTTPStatus: http.StatusBadRequest}
}

// InvalidFormat reports a field whose value is syntactically wrong.
func InvalidFormat(field, requirement string) *ServiceError {
	return &ServiceError{
		Code:       CodeInvalidFormat,
		Message:    fmt.Sprintf("invalid %s: %s", field, requirement),
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]interface{}{"field": field},
	}
}

// Unauthorized reports a missing or unusable credential.
func Unauthorized(message string) *ServiceError {
	return &ServiceError{Code: CodeUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// InvalidToken reports a token that failed parsing or verification.
func InvalidToken(cause error) *ServiceError {
	return &ServiceError{
		Code:       CodeInvalidToken,
		Message:    "invalid or expired token",
		HTTPStatus: http.StatusUnauthorized,
		Err:        cause,
	}
}

// Forbidden reports an authenticated caller lacking permission.
func Forbidden(message string) *ServiceError {
	return &ServiceError{Code: CodeForbidden, Message: message, HTTPStatus: http.StatusForbidden}
}

// NotFound reports a missing resource.
func NotFound(resource string) *ServiceError {
	return &ServiceError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

// Conflict reports a uniqueness or state violation.
func Conflict(message string) *ServiceError {
	return &ServiceError{Code: CodeConflict, Message: message, HTTPStatus: http.StatusConflict}
}

// QuotaExceeded reports an exhausted subscription allowance.
func QuotaExceeded(message string) *ServiceError {
	return &ServiceError{Code: CodeQuotaExceeded, Message: message, HTTPStatus: http.StatusForbidden}
}

// RateLimitExceeded reports too many requests in a window.
func RateLimitExceeded(limit int, window string) *ServiceError {
	return &ServiceError{
		Code:       CodeRateLimited,
		Message:    "rate limit exceeded",
		HTTPStatus: http.StatusTooManyRequests,
		Details:    map[string]interface{}{"limit": limit, "window": window},
	}
}

// PayloadTooLarge reports a body exceeding the accepted size.
func PayloadTooLarge(limit int64) *ServiceError {
	return &ServiceError{
		Code:       CodePayloadTooBig,
		Message:    "request payload too large",
		HTTPStatus: http.StatusRequestEntityTooLarge,
		Details:    map[string]interface{}{"max_bytes": limit},
	}
}

// Unavailable reports a dependency that could not be reached.
func Unavailable(message string, cause error) *ServiceError {
	return &ServiceError{Code: CodeUnavailable, Message: message, HTTPStatus: http.StatusServiceUnavailable, Err: cause}
}

// Internal reports an unexpected server-side failure. The cause is kept
// for logs; clients only see the generic message.
func Internal(message string, cause error) *ServiceError {
	return &ServiceError{Code: CodeInternal, Message: message, HTTPStatus: http.StatusInternalServerError, Err: cause}
}

// GetServiceError returns err as a *ServiceError when it is (or wraps)
// one, nil otherwise.
func GetServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	return nil
}

// IsNotFound reports whether err carries a NOT_FOUND code.
func IsNotFound(err error) bool {
	if svcErr := GetServiceError(err); svcErr != nil {
		return svcErr.Code == CodeNotFound
	}
	return false
}

// IsConflict reports whether err carries a CONFLICT code.
func IsConflict(err error) bool {
	if svcErr := GetServiceError(err); svcErr != nil {
		return svcErr.Code == CodeConflict
	}
	return false
}
