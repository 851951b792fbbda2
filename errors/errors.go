package errors

import (
	"fmt"
	"net/http"
	"time"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// HTTPStatus is the recommended HTTP status code for this error.
	HTTPStatus int `json:"-"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Retryable:  IsRetryableCode(code),
	}
}

// --- Dependency failures ---

// ServiceUnavailable creates a new AppError for a dependency that is temporarily unavailable.
func ServiceUnavailable(service string) *AppError {
	return &AppError{
		Code: ErrCodeServiceUnavailable, Message: fmt.Sprintf("The %s is temporarily unavailable. Please try again.", service),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: true,
		Details: map[string]any{"service": service},
	}
}

// Timeout creates a new AppError for a request that timed out.
func Timeout(operation string) *AppError {
	return &AppError{
		Code: ErrCodeTimeout, Message: "The request took too long. Please try again.",
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"operation": operation},
	}
}

// RateLimited creates a new AppError for a dependency that throttled the caller.
func RateLimited() *AppError {
	return &AppError{
		Code: ErrCodeRateLimited, Message: "Too many requests. Please wait a moment and try again.",
		HTTPStatus: http.StatusTooManyRequests, Retryable: true,
	}
}

// ExternalServiceError creates a new AppError for an error from an external service.
func ExternalServiceError(service string, cause error) *AppError {
	return &AppError{
		Code: ErrCodeExternalService, Message: fmt.Sprintf("The %s service encountered an error. Please try again.", service),
		HTTPStatus: http.StatusBadGateway, Retryable: true,
		Details: map[string]any{"service": service}, Cause: cause,
	}
}

// Permanent marks a dependency failure as not worth retrying, e.g. a 4xx
// answer from a regulatory API.
func Permanent(service string, status int, cause error) *AppError {
	return &AppError{
		Code: ErrCodeExternalService, Message: fmt.Sprintf("The %s service rejected the request.", service),
		HTTPStatus: status, Retryable: false,
		Details: map[string]any{"service": service, "status": status}, Cause: cause,
	}
}

// --- Guard failures ---

// BulkheadRejected creates a new AppError for load shed by a bulkhead.
func BulkheadRejected(bulkhead, reason string) *AppError {
	return &AppError{
		Code: ErrCodeBulkheadRejected, Message: fmt.Sprintf("The %s dependency is at capacity. Please try again later.", bulkhead),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: false,
		Details: map[string]any{"bulkhead": bulkhead, "reason": reason},
	}
}

// CircuitOpen creates a new AppError for a call short-circuited by an open breaker.
func CircuitOpen(dependency string, retryAt time.Time) *AppError {
	details := map[string]any{"dependency": dependency}
	if !retryAt.IsZero() {
		details["retry_at"] = retryAt.UTC().Format(time.RFC3339)
	}
	return &AppError{
		Code: ErrCodeCircuitOpen, Message: fmt.Sprintf("The %s dependency is failing; calls are suspended.", dependency),
		HTTPStatus: http.StatusServiceUnavailable, Retryable: false, Details: details,
	}
}

// ExecutionTimeout creates a new AppError for a call that exceeded its execution budget.
func ExecutionTimeout(bulkhead string, budget time.Duration) *AppError {
	return &AppError{
		Code: ErrCodeExecutionTimeout, Message: fmt.Sprintf("The call to %s exceeded %s.", bulkhead, budget),
		HTTPStatus: http.StatusGatewayTimeout, Retryable: true,
		Details: map[string]any{"bulkhead": bulkhead, "timeout_ms": budget.Milliseconds()},
	}
}

// --- Request failures ---

// NotFound creates a new AppError for a resource that was not found.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("The requested %s was not found.", resource),
		HTTPStatus: http.StatusNotFound, Retryable: false, Details: details,
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{
		Code: ErrCodeInvalidInput, Message: message,
		HTTPStatus: http.StatusBadRequest, Retryable: false,
	}
}

// Internal creates a new AppError for an internal error.
func Internal(cause error) *AppError {
	return &AppError{
		Code: ErrCodeInternal, Message: "An unexpected error occurred.",
		HTTPStatus: http.StatusInternalServerError, Retryable: false, Cause: cause,
	}
}
