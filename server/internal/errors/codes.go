package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a specific error type for service operations.
type ErrorCode string

const (
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeUnauthorized indicates authentication failure.
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	// ErrCodeNotFound indicates the requested record does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeRateLimitExceeded indicates rate limit has been exceeded.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeConfiguration indicates the server is missing required configuration.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION"
	// ErrCodeProviderFailed indicates the speech provider rejected or failed the call.
	ErrCodeProviderFailed ErrorCode = "PROVIDER_FAILED"
	// ErrCodeCacheLookupFailed marks a degraded lookup. It is logged, never returned to clients.
	ErrCodeCacheLookupFailed ErrorCode = "CACHE_LOOKUP_FAILED"
	// ErrCodeInternal indicates an unexpected server failure.
	ErrCodeInternal ErrorCode = "INTERNAL"
	// ErrCodeContextCanceled indicates the operation was canceled.
	ErrCodeContextCanceled ErrorCode = "CONTEXT_CANCELED"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
)

// StatusClientClosedRequest is the non-standard status for requests the client abandoned.
const StatusClientClosedRequest = 499

// HTTPStatus maps a code to its response status.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeContextCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// ServiceError represents a structured error returned by the service layer.
// Message is safe to show to clients; Cause is not.
type ServiceError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *ServiceError) WithContext(key string, value any) *ServiceError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// HTTPStatus returns the response status for the error.
func (e *ServiceError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// ResponseBody is the JSON error body clients see. The cause is only included
// when withDetails is set.
func (e *ServiceError) ResponseBody(withDetails bool) map[string]string {
	body := map[string]string{"error": e.Message}
	if withDetails {
		if details := e.Details(); details != "" {
			body["details"] = details
		}
	}
	return body
}

// Details returns the cause text, or empty when there is none.
func (e *ServiceError) Details() string {
	if e.Cause == nil {
		return ""
	}
	return e.Cause.Error()
}

// Convenience constructors for common error types.

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *ServiceError {
	return &ServiceError{Code: ErrCodeInvalidArgument, Message: msg}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(msg string) *ServiceError {
	return &ServiceError{Code: ErrCodeUnauthorized, Message: msg}
}

// NotFound creates a not found error.
func NotFound(msg string) *ServiceError {
	return &ServiceError{Code: ErrCodeNotFound, Message: msg}
}

// RateLimitExceeded creates a rate limit exceeded error.
func RateLimitExceeded(msg string) *ServiceError {
	return &ServiceError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// Configuration creates a configuration error.
func Configuration(msg string) *ServiceError {
	return &ServiceError{Code: ErrCodeConfiguration, Message: msg}
}

// ProviderFailed creates a provider failure error.
func ProviderFailed(msg string, cause error) *ServiceError {
	return &ServiceError{Code: ErrCodeProviderFailed, Message: msg, Cause: cause}
}

// Internal creates an internal error.
func Internal(msg string, cause error) *ServiceError {
	return &ServiceError{Code: ErrCodeInternal, Message: msg, Cause: cause}
}

// ContextCanceled creates a context canceled error.
func ContextCanceled(cause error) *ServiceError {
	return &ServiceError{Code: ErrCodeContextCanceled, Message: "operation canceled", Cause: cause}
}

// FromContext converts a context error into a coded error, or returns nil.
func FromContext(err error) *ServiceError {
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		return &ServiceError{Code: ErrCodeTimeout, Message: "operation timed out", Cause: err}
	case stderrors.Is(err, context.Canceled):
		return ContextCanceled(err)
	default:
		return nil
	}
}

// As returns the ServiceError in err's chain.
func As(err error) (*ServiceError, bool) {
	var svcErr *ServiceError
	if stderrors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	if svcErr, ok := As(err); ok {
		return svcErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not a ServiceError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	if svcErr, ok := As(err); ok {
		return svcErr.Code
	}
	return defaultCode
}
