package guard

import (
	"context"
	"errors"

	apperrors "github.com/kbukum/depguard/errors"
	"github.com/kbukum/depguard/resilience"
)

// ToAppError converts an error returned by ExecuteCall into an AppError for
// transport layers. Guard failures map to their dedicated codes; an AppError
// produced by the operation is returned as-is.
func ToAppError(resource string, err error) *apperrors.AppError {
	if err == nil {
		return nil
	}
	if ae, ok := apperrors.AsAppError(err); ok {
		return ae
	}

	var (
		re *resilience.RejectionError
		te *resilience.ExecutionTimeoutError
		ce *resilience.CircuitOpenError
	)
	switch {
	case errors.As(err, &re):
		return apperrors.BulkheadRejected(re.Bulkhead, string(re.Reason)).WithCause(err)
	case errors.As(err, &te):
		return apperrors.ExecutionTimeout(te.Bulkhead, te.Timeout).WithCause(err)
	case errors.As(err, &ce):
		return apperrors.CircuitOpen(ce.Breaker, ce.RetryAt).WithCause(err)
	case errors.Is(err, context.Canceled):
		return apperrors.Timeout("request canceled").WithCause(err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Timeout("deadline exceeded").WithCause(err)
	default:
		return apperrors.ExternalServiceError(resource, err)
	}
}
