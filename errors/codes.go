package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Connection/Availability errors (retryable)
const (
	// ErrCodeServiceUnavailable indicates the dependency is temporarily unavailable.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeConnectionFailed indicates a failed connection to a dependency.
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeRateLimited indicates the caller is rate limited by the dependency.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"
	// ErrCodeExternalService indicates an error reported by an external service.
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// Guard errors, produced by the resilience layer rather than the dependency.
const (
	// ErrCodeBulkheadRejected indicates load was shed by a bulkhead.
	ErrCodeBulkheadRejected ErrorCode = "BULKHEAD_REJECTED"
	// ErrCodeCircuitOpen indicates a circuit breaker short-circuited the call.
	ErrCodeCircuitOpen ErrorCode = "CIRCUIT_OPEN"
	// ErrCodeExecutionTimeout indicates the bulkhead execution budget was exceeded.
	ErrCodeExecutionTimeout ErrorCode = "EXECUTION_TIMEOUT"
)

// Request errors
const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeServiceUnavailable: true,
	ErrCodeConnectionFailed:   true,
	ErrCodeTimeout:            true,
	ErrCodeRateLimited:        true,
	ErrCodeExternalService:    true,
	ErrCodeExecutionTimeout:   true,
	// Shed load and open breakers must not be hammered by the same caller.
	ErrCodeBulkheadRejected: false,
	ErrCodeCircuitOpen:      false,
	ErrCodeInternal:         false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
