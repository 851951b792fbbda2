package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrRejected         = errors.New("bulkhead rejected call")
	ErrExecutionTimeout = errors.New("execution timeout")
	ErrCircuitOpen      = errors.New("circuit breaker is open")
)

// RejectReason describes why a bulkhead refused to run a call.
type RejectReason string

const (
	// RejectCapacity means every slot and every queue position was taken.
	RejectCapacity RejectReason = "capacity"
	// RejectQueueTimeout means the call waited longer than QueueTimeout.
	RejectQueueTimeout RejectReason = "queue_timeout"
	// RejectCanceled means the caller's context ended while the call was queued.
	RejectCanceled RejectReason = "canceled"
)

// RejectionError is returned when a bulkhead sheds a call. The wrapped
// operation was never invoked.
type RejectionError struct {
	Bulkhead string
	Reason   RejectReason
	// Waited is the time spent queued before rejection; zero for capacity rejections.
	Waited time.Duration
	// Cause is the caller's context error for RejectCanceled.
	Cause error
}

func (e *RejectionError) Error() string {
	if e.Waited > 0 {
		return fmt.Sprintf("bulkhead %q rejected call: %s after %s", e.Bulkhead, e.Reason, e.Waited.Round(time.Millisecond))
	}
	return fmt.Sprintf("bulkhead %q rejected call: %s", e.Bulkhead, e.Reason)
}

func (e *RejectionError) Is(target error) bool { return target == ErrRejected }

func (e *RejectionError) Unwrap() error { return e.Cause }

// ExecutionTimeoutError is returned when an admitted call exceeds the
// bulkhead's ExecutionTimeout. The operation's context is cancelled, but an
// operation that ignores its context may still be running.
type ExecutionTimeoutError struct {
	Bulkhead string
	Timeout  time.Duration
}

func (e *ExecutionTimeoutError) Error() string {
	return fmt.Sprintf("bulkhead %q: execution exceeded %s", e.Bulkhead, e.Timeout)
}

func (e *ExecutionTimeoutError) Is(target error) bool { return target == ErrExecutionTimeout }

// CircuitOpenError is returned when a breaker short-circuits a call without
// invoking it.
type CircuitOpenError struct {
	Breaker string
	// RetryAt is when the breaker will next admit a probe.
	RetryAt time.Time
}

func (e *CircuitOpenError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("circuit breaker %q is open", e.Breaker)
	}
	return fmt.Sprintf("circuit breaker %q is open until %s", e.Breaker, e.RetryAt.Format(time.RFC3339))
}

func (e *CircuitOpenError) Is(target error) bool { return target == ErrCircuitOpen }

// PanicError carries a panic recovered from a guarded operation.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("operation panicked: %v", e.Value)
}

// ErrorKind classifies a failure returned by the resilience layer.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindRejection
	KindExecutionTimeout
	KindCircuitOpen
	KindDownstream
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindRejection:
		return "rejection"
	case KindExecutionTimeout:
		return "execution_timeout"
	case KindCircuitOpen:
		return "circuit_open"
	case KindDownstream:
		return "downstream"
	default:
		return "unknown"
	}
}

// Classify reports which part of the taxonomy err belongs to. Any error that
// is not produced by a bulkhead or breaker is a downstream failure.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrRejected):
		return KindRejection
	case errors.Is(err, ErrExecutionTimeout):
		return KindExecutionTimeout
	case errors.Is(err, ErrCircuitOpen):
		return KindCircuitOpen
	default:
		return KindDownstream
	}
}

// IsRejection reports whether err is a bulkhead rejection.
func IsRejection(err error) bool { return Classify(err) == KindRejection }

// IsExecutionTimeout reports whether err is a bulkhead execution timeout.
func IsExecutionTimeout(err error) bool { return Classify(err) == KindExecutionTimeout }

// IsCircuitOpen reports whether err is an open-breaker short circuit.
func IsCircuitOpen(err error) bool { return Classify(err) == KindCircuitOpen }

// safeCall invokes fn, converting a panic into a *PanicError.
func safeCall[T any](ctx context.Context, fn func(context.Context) (T, error)) (data T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn(ctx)
}
