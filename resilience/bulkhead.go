package resilience

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/kbukum/depguard/logger"
	"github.com/kbukum/depguard/validation"
)

// executionWindowSize is the number of recent execution times kept for the
// rolling average.
const executionWindowSize = 100

// Baseline bulkhead settings used for any field left at zero.
const (
	DefaultMaxConcurrentCalls = 10
	DefaultMaxQueueSize       = 50
	DefaultQueueTimeout       = 5 * time.Second
	DefaultExecutionTimeout   = 30 * time.Second
)

// BulkheadConfig configures a bulkhead. Zero values take the baseline
// defaults; negative values are rejected by NewBulkhead.
type BulkheadConfig struct {
	// Name identifies this bulkhead for metrics/logging.
	Name string `validate:"required"`
	// MaxConcurrentCalls is the number of calls allowed to execute at once.
	MaxConcurrentCalls int `validate:"gte=0"`
	// MaxQueueSize is the number of calls allowed to wait for a slot.
	MaxQueueSize int `validate:"gte=0"`
	// QueueTimeout is how long a queued call waits before it is rejected.
	QueueTimeout time.Duration `validate:"gte=0"`
	// ExecutionTimeout bounds a single admitted call, including any retries
	// and retry delays running inside it.
	ExecutionTimeout time.Duration `validate:"gte=0"`
	// MonitoringEnabled turns on logging of rejections, timeouts and completions.
	MonitoringEnabled bool
	// Logger receives monitoring output. Nil discards it.
	Logger *logger.Logger
	// OnReject is called when a call is rejected.
	OnReject func(name string, reason RejectReason)
	// OnAcquire is called when a call takes a slot.
	OnAcquire func(name string)
	// OnRelease is called when a call gives its slot up.
	OnRelease func(name string)
}

// DefaultBulkheadConfig returns the baseline configuration.
func DefaultBulkheadConfig(name string) BulkheadConfig {
	return BulkheadConfig{
		Name:               name,
		MaxConcurrentCalls: DefaultMaxConcurrentCalls,
		MaxQueueSize:       DefaultMaxQueueSize,
		QueueTimeout:       DefaultQueueTimeout,
		ExecutionTimeout:   DefaultExecutionTimeout,
		MonitoringEnabled:  true,
	}
}

// Validate checks the configuration without applying defaults.
func (c BulkheadConfig) Validate() error {
	return validation.Validate(c)
}

func (c BulkheadConfig) withDefaults() BulkheadConfig {
	if c.MaxConcurrentCalls == 0 {
		c.MaxConcurrentCalls = DefaultMaxConcurrentCalls
	}
	if c.MaxQueueSize == 0 {
		c.MaxQueueSize = DefaultMaxQueueSize
	}
	if c.QueueTimeout == 0 {
		c.QueueTimeout = DefaultQueueTimeout
	}
	if c.ExecutionTimeout == 0 {
		c.ExecutionTimeout = DefaultExecutionTimeout
	}
	return c
}

// BulkheadResult is the outcome of a call submitted to a bulkhead. Failures
// are reported here, never panicked.
type BulkheadResult[T any] struct {
	Success bool
	Data    T
	// Err is a *RejectionError when Rejected, an *ExecutionTimeoutError when
	// the budget ran out, or the operation's own error.
	Err           error
	Rejected      bool
	ExecutionTime time.Duration
	BulkheadName  string
}

// BulkheadStats is a point-in-time snapshot of a bulkhead.
type BulkheadStats struct {
	Name                 string        `json:"name"`
	ActiveCalls          int           `json:"active_calls"`
	QueuedCalls          int           `json:"queued_calls"`
	CompletedCalls       int64         `json:"completed_calls"`
	FailedCalls          int64         `json:"failed_calls"`
	RejectedCalls        int64         `json:"rejected_calls"`
	AverageExecutionTime time.Duration `json:"-"`
	AverageExecutionMs   float64       `json:"average_execution_ms"`
	LastExecutionTime    time.Time     `json:"last_execution_time,omitempty"`
	MaxConcurrentCalls   int           `json:"max_concurrent_calls"`
	MaxQueueSize         int           `json:"max_queue_size"`
}

// Bulkhead caps concurrent calls against one resource and queues a bounded
// number of extra calls in FIFO order.
//
// Slots are handed directly from a finishing call to the oldest waiter, so a
// newly arriving call can never overtake a queued one.
type Bulkhead struct {
	config BulkheadConfig
	log    *logger.Logger

	mu        sync.Mutex
	active    int
	queue     *list.List // of *waiter
	completed int64
	failed    int64
	rejected  int64
	window    []time.Duration
	windowPos int
	lastExec  time.Time
}

type waiter struct {
	ready   chan struct{}
	granted bool
}

// NewBulkhead creates a new bulkhead. It fails only on malformed config.
func NewBulkhead(config BulkheadConfig) (*Bulkhead, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()

	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Bulkhead{
		config: config,
		log:    log.WithComponent("bulkhead").WithFields(logger.Fields(logger.FieldBulkhead, config.Name)),
		queue:  list.New(),
		window: make([]time.Duration, 0, executionWindowSize),
	}, nil
}

// Execute runs fn within the bulkhead.
func (b *Bulkhead) Execute(ctx context.Context, fn func(context.Context) error) BulkheadResult[struct{}] {
	return ExecuteWithResult(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}

// ExecuteWithResult runs a function that returns a value within the bulkhead.
//
// The context handed to fn is cancelled when ExecutionTimeout elapses. The
// bulkhead stops waiting at that point and frees the slot; fn keeps running
// in the background unless it observes its context.
func ExecuteWithResult[T any](ctx context.Context, b *Bulkhead, fn func(context.Context) (T, error)) BulkheadResult[T] {
	result := BulkheadResult[T]{BulkheadName: b.config.Name}

	if err := b.acquire(ctx); err != nil {
		result.Rejected = true
		result.Err = err
		return result
	}

	start := time.Now()
	data, err := runWithTimeout(ctx, b.config.Name, b.config.ExecutionTimeout, fn)
	result.ExecutionTime = time.Since(start)
	b.release(result.ExecutionTime, err)

	if err != nil {
		result.Err = err
		return result
	}
	result.Success = true
	result.Data = data
	return result
}

// runWithTimeout races fn against timeout.
func runWithTimeout[T any](ctx context.Context, name string, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		data T
		err  error
	}
	// Buffered so an abandoned operation can still deliver and exit.
	done := make(chan outcome, 1)
	go func() {
		data, err := safeCall(callCtx, fn)
		done <- outcome{data: data, err: err}
	}()

	select {
	case o := <-done:
		// An operation that gave up on its own deadline still ran out of budget.
		if o.err != nil && budgetExceeded(ctx, callCtx) {
			return zero, &ExecutionTimeoutError{Bulkhead: name, Timeout: timeout}
		}
		return o.data, o.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, &ExecutionTimeoutError{Bulkhead: name, Timeout: timeout}
	}
}

func budgetExceeded(parent, call context.Context) bool {
	return parent.Err() == nil && call.Err() == context.DeadlineExceeded
}

// acquire takes a slot, queues for one, or rejects.
func (b *Bulkhead) acquire(ctx context.Context) error {
	b.mu.Lock()
	if b.active < b.config.MaxConcurrentCalls {
		b.active++
		b.mu.Unlock()
		b.acquired()
		return nil
	}
	if b.queue.Len() >= b.config.MaxQueueSize {
		b.rejected++
		b.mu.Unlock()
		return b.reject(RejectCapacity, 0, nil)
	}
	w := &waiter{ready: make(chan struct{})}
	elem := b.queue.PushBack(w)
	b.mu.Unlock()

	start := time.Now()
	timer := time.NewTimer(b.config.QueueTimeout)
	defer timer.Stop()

	var reason RejectReason
	var cause error
	select {
	case <-w.ready:
		b.acquired()
		return nil
	case <-timer.C:
		reason = RejectQueueTimeout
	case <-ctx.Done():
		reason = RejectCanceled
		cause = ctx.Err()
	}

	b.mu.Lock()
	if w.granted {
		// The slot was handed over before the timeout could be resolved.
		b.mu.Unlock()
		b.acquired()
		return nil
	}
	b.queue.Remove(elem)
	b.rejected++
	b.mu.Unlock()
	return b.reject(reason, time.Since(start), cause)
}

// release records the outcome and passes the slot to the oldest waiter.
func (b *Bulkhead) release(elapsed time.Duration, err error) {
	b.mu.Lock()
	if err == nil {
		b.completed++
	} else {
		b.failed++
	}
	if len(b.window) < executionWindowSize {
		b.window = append(b.window, elapsed)
	} else {
		b.window[b.windowPos] = elapsed
		b.windowPos = (b.windowPos + 1) % executionWindowSize
	}
	b.lastExec = time.Now()

	if front := b.queue.Front(); front != nil {
		w := b.queue.Remove(front).(*waiter)
		w.granted = true
		close(w.ready)
	} else {
		b.active--
	}
	b.mu.Unlock()

	if b.config.OnRelease != nil {
		b.config.OnRelease(b.config.Name)
	}
	if !b.config.MonitoringEnabled {
		return
	}
	switch Classify(err) {
	case KindNone:
		b.log.Debug("call completed", logger.MergeWithDuration(nil, elapsed))
	case KindExecutionTimeout:
		b.log.Warn("call exceeded execution timeout", logger.Fields(
			logger.FieldDuration, elapsed.Milliseconds(),
			"timeout_ms", b.config.ExecutionTimeout.Milliseconds(),
		))
	default:
		b.log.Debug("call failed", logger.MergeWithDuration(logger.ErrorFields("execute", err), elapsed))
	}
}

func (b *Bulkhead) acquired() {
	if b.config.OnAcquire != nil {
		b.config.OnAcquire(b.config.Name)
	}
}

func (b *Bulkhead) reject(reason RejectReason, waited time.Duration, cause error) error {
	if b.config.OnReject != nil {
		b.config.OnReject(b.config.Name, reason)
	}
	if b.config.MonitoringEnabled {
		b.log.Warn("call rejected", logger.Fields(
			logger.FieldReason, string(reason),
			"waited_ms", waited.Milliseconds(),
		))
	}
	return &RejectionError{Bulkhead: b.config.Name, Reason: reason, Waited: waited, Cause: cause}
}

// Stats returns a snapshot of the bulkhead's counters.
func (b *Bulkhead) Stats() BulkheadStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	var avg time.Duration
	if n := len(b.window); n > 0 {
		var total time.Duration
		for _, d := range b.window {
			total += d
		}
		avg = total / time.Duration(n)
	}

	return BulkheadStats{
		Name:                 b.config.Name,
		ActiveCalls:          b.active,
		QueuedCalls:          b.queue.Len(),
		CompletedCalls:       b.completed,
		FailedCalls:          b.failed,
		RejectedCalls:        b.rejected,
		AverageExecutionTime: avg,
		AverageExecutionMs:   float64(avg) / float64(time.Millisecond),
		LastExecutionTime:    b.lastExec,
		MaxConcurrentCalls:   b.config.MaxConcurrentCalls,
		MaxQueueSize:         b.config.MaxQueueSize,
	}
}

// Name returns the bulkhead name.
func (b *Bulkhead) Name() string {
	return b.config.Name
}

// Config returns the effective configuration, defaults applied.
func (b *Bulkhead) Config() BulkheadConfig {
	return b.config
}

// Available returns the number of free execution slots.
func (b *Bulkhead) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.config.MaxConcurrentCalls - b.active
}

// InUse returns the number of slots currently in use.
func (b *Bulkhead) InUse() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// QueueLength returns the number of calls waiting for a slot.
func (b *Bulkhead) QueueLength() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queue.Len()
}
