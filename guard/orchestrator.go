package guard

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/depguard/logger"
	"github.com/kbukum/depguard/observability"
	"github.com/kbukum/depguard/resilience"
)

// Options configures an Orchestrator.
type Options struct {
	// Logger receives call, retry and breaker logs. Nil discards them.
	Logger *logger.Logger
	// Retry is the default retry policy. Nil uses resilience.DefaultRetryConfig.
	Retry *resilience.RetryConfig
	// CircuitBreaker is the template for per-resource breakers; its Name is
	// replaced by the resource name. Nil uses the defaults.
	CircuitBreaker *resilience.CircuitBreakerConfig
	// DisableCircuitBreakers turns breakers off for every call.
	DisableCircuitBreakers bool
	// Metrics records guard instruments. Nil skips recording.
	Metrics *observability.Metrics
}

// Orchestrator guards calls to named resources. Each call runs the full
// retry loop inside one bulkhead slot; each attempt passes through the
// resource's circuit breaker.
type Orchestrator struct {
	registry        *Registry
	log             *logger.Logger
	retry           resilience.RetryConfig
	breakerTemplate resilience.CircuitBreakerConfig
	breakersEnabled bool
	metrics         *observability.Metrics

	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker
}

// New creates an orchestrator over registry.
func New(registry *Registry, opts Options) (*Orchestrator, error) {
	if registry == nil {
		return nil, errors.New("guard: registry is required")
	}

	retry := resilience.DefaultRetryConfig()
	if opts.Retry != nil {
		retry = *opts.Retry
	}
	if err := retry.Validate(); err != nil {
		return nil, err
	}

	template := resilience.DefaultCircuitBreakerConfig("template")
	if opts.CircuitBreaker != nil {
		template = *opts.CircuitBreaker
		template.Name = "template"
	}
	if err := template.Validate(); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Orchestrator{
		registry:        registry,
		log:             log.WithComponent("guard"),
		retry:           retry,
		breakerTemplate: template,
		breakersEnabled: !opts.DisableCircuitBreakers,
		metrics:         opts.Metrics,
		breakers:        make(map[string]*resilience.CircuitBreaker),
	}, nil
}

// ExecuteCall runs op against resource under its bulkhead, retry policy and
// circuit breaker.
//
// On success it returns op's value. A bulkhead rejection returns a
// *resilience.RejectionError naming the bulkhead; an exhausted budget a
// *resilience.ExecutionTimeoutError; an open breaker a
// *resilience.CircuitOpenError. Any other failure is op's last error,
// returned unmodified.
func ExecuteCall[T any](ctx context.Context, o *Orchestrator, resource string, op func(context.Context) (T, error), opts ...CallOption) (T, error) {
	var zero T
	var co callOptions
	for _, opt := range opts {
		opt(&co)
	}

	callID := uuid.NewString()
	cc := observability.NewCallContext(resource, callID, co.description, o.metrics)
	ctx, span := cc.Start(ctx)

	fields := logger.Fields(logger.FieldResource, resource, logger.FieldCallID, callID)
	if co.description != "" {
		fields[logger.FieldOperation] = co.description
	}
	log := o.log.WithFields(fields)

	bh, err := o.registry.GetBulkhead(resource, co.bulkhead)
	if err != nil {
		cc.End(ctx, span, observability.OutcomeFailure, 0, err)
		return zero, err
	}

	var cb *resilience.CircuitBreaker
	if o.breakersEnabled && !co.noBreaker {
		if cb, err = o.breaker(resource, co.breaker); err != nil {
			cc.End(ctx, span, observability.OutcomeFailure, 0, err)
			return zero, err
		}
	}

	retry := o.retry
	if co.retry != nil {
		retry = *co.retry
	}
	own := retry.OnRetry
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		cc.Retry(ctx, attempt, delay, err)
		log.Warn("retrying call", logger.Fields(
			logger.FieldAttempt, attempt,
			logger.FieldDelay, delay.Milliseconds(),
			logger.FieldError, err.Error(),
		))
		if own != nil {
			own(attempt, err, delay)
		}
	}

	// Written by the bulkhead's goroutine, which may outlive an execution timeout.
	var attempts atomic.Int64
	res := resilience.ExecuteWithResult(ctx, bh, func(ctx context.Context) (T, error) {
		r := resilience.Retry(ctx, retry, func(ctx context.Context) (T, error) {
			attempts.Add(1)
			if cb == nil {
				return op(ctx)
			}
			return resilience.CallWithBreaker(ctx, cb, op)
		})
		return r.Data, r.Err
	})
	n := int(attempts.Load())

	if res.Success {
		log.Debug("call succeeded", logger.MergeWithDuration(logger.Fields(logger.FieldAttempt, n), cc.Duration()))
		cc.End(ctx, span, observability.OutcomeSuccess, n, nil)
		return res.Data, nil
	}

	outcome := outcomeOf(res.Err)
	if res.Rejected {
		outcome = observability.OutcomeRejected
		if o.metrics != nil {
			var re *resilience.RejectionError
			if errors.As(res.Err, &re) {
				o.metrics.RecordRejection(ctx, resource, string(re.Reason))
			}
		}
	}
	log.Warn("call failed", logger.MergeWithDuration(logger.Fields(
		logger.FieldAttempt, n,
		"kind", resilience.Classify(res.Err).String(),
		logger.FieldError, res.Err.Error(),
	), cc.Duration()))
	cc.End(ctx, span, outcome, n, res.Err)
	return zero, res.Err
}

// Execute runs an operation that returns only an error.
func (o *Orchestrator) Execute(ctx context.Context, resource string, op func(context.Context) error, opts ...CallOption) error {
	_, err := ExecuteCall(ctx, o, resource, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts...)
	return err
}

func outcomeOf(err error) string {
	switch resilience.Classify(err) {
	case resilience.KindNone:
		return observability.OutcomeSuccess
	case resilience.KindRejection:
		return observability.OutcomeRejected
	case resilience.KindExecutionTimeout:
		return observability.OutcomeTimeout
	case resilience.KindCircuitOpen:
		return observability.OutcomeCircuitOpen
	default:
		return observability.OutcomeFailure
	}
}

// breaker returns the breaker for resource, creating it on first use.
func (o *Orchestrator) breaker(resource string, override *resilience.CircuitBreakerConfig) (*resilience.CircuitBreaker, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if cb, ok := o.breakers[resource]; ok {
		return cb, nil
	}

	cfg := o.breakerTemplate
	if override != nil {
		cfg = *override
	}
	cfg.Name = resource
	if cfg.Logger == nil {
		cfg.Logger = o.log
	}
	own := cfg.OnStateChange
	cfg.OnStateChange = func(name string, from, to resilience.State) {
		if o.metrics != nil {
			o.metrics.RecordTransition(context.Background(), name, from.String(), to.String())
		}
		if own != nil {
			own(name, from, to)
		}
	}

	cb, err := resilience.NewCircuitBreaker(cfg)
	if err != nil {
		return nil, err
	}
	o.breakers[resource] = cb
	return cb, nil
}

// Registry returns the registry the orchestrator draws bulkheads from.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Bulkhead returns the bulkhead of resource, if one was created.
func (o *Orchestrator) Bulkhead(resource string) (*resilience.Bulkhead, bool) {
	return o.registry.Lookup(resource)
}

// CircuitBreaker returns the breaker of resource, if one was created.
func (o *Orchestrator) CircuitBreaker(resource string) (*resilience.CircuitBreaker, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	cb, ok := o.breakers[resource]
	return cb, ok
}

// ResetCircuitBreaker forces the breaker of resource closed. It reports
// whether the breaker exists.
func (o *Orchestrator) ResetCircuitBreaker(resource string) bool {
	cb, ok := o.CircuitBreaker(resource)
	if !ok {
		return false
	}
	cb.Reset()
	o.log.Info("circuit breaker reset by operator", logger.Fields(logger.FieldResource, resource))
	return true
}

// CircuitBreakers returns every breaker, sorted by name.
func (o *Orchestrator) CircuitBreakers() []*resilience.CircuitBreaker {
	o.mu.Lock()
	out := make([]*resilience.CircuitBreaker, 0, len(o.breakers))
	for _, cb := range o.breakers {
		out = append(out, cb)
	}
	o.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// FleetStats aggregates every bulkhead and breaker of an orchestrator.
type FleetStats struct {
	TotalBulkheads      int                              `json:"total_bulkheads"`
	TotalActiveCalls    int                              `json:"total_active_calls"`
	TotalQueuedCalls    int                              `json:"total_queued_calls"`
	TotalCompletedCalls int64                            `json:"total_completed_calls"`
	TotalFailedCalls    int64                            `json:"total_failed_calls"`
	TotalRejectedCalls  int64                            `json:"total_rejected_calls"`
	OpenBreakers        int                              `json:"open_breakers"`
	Bulkheads           []resilience.BulkheadStats       `json:"bulkheads"`
	Breakers            []resilience.CircuitBreakerStats `json:"breakers"`
}

// Stats returns fleet-wide statistics.
func (o *Orchestrator) Stats() FleetStats {
	fs := FleetStats{Bulkheads: o.registry.Stats()}
	fs.TotalBulkheads = len(fs.Bulkheads)
	for _, s := range fs.Bulkheads {
		fs.TotalActiveCalls += s.ActiveCalls
		fs.TotalQueuedCalls += s.QueuedCalls
		fs.TotalCompletedCalls += s.CompletedCalls
		fs.TotalFailedCalls += s.FailedCalls
		fs.TotalRejectedCalls += s.RejectedCalls
	}

	breakers := o.CircuitBreakers()
	fs.Breakers = make([]resilience.CircuitBreakerStats, len(breakers))
	for i, cb := range breakers {
		fs.Breakers[i] = cb.Stats()
		if fs.Breakers[i].State == resilience.StateOpen {
			fs.OpenBreakers++
		}
	}
	return fs
}

// ResourceStats describes one resource.
type ResourceStats struct {
	Bulkhead resilience.BulkheadStats        `json:"bulkhead"`
	Class    string                          `json:"class"`
	Breaker  *resilience.CircuitBreakerStats `json:"breaker,omitempty"`
}

// ResourceStats returns the stats of one resource, if its bulkhead exists.
func (o *Orchestrator) ResourceStats(resource string) (ResourceStats, bool) {
	bh, ok := o.registry.Lookup(resource)
	if !ok {
		return ResourceStats{}, false
	}
	rs := ResourceStats{Bulkhead: bh.Stats(), Class: o.registry.ClassOf(resource)}
	if cb, ok := o.CircuitBreaker(resource); ok {
		s := cb.Stats()
		rs.Breaker = &s
	}
	return rs, true
}

// Monitor logs fleet stats every interval until ctx is done.
func (o *Orchestrator) Monitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := o.Stats()
			o.log.Info("fleet stats", logger.Fields(
				"bulkheads", s.TotalBulkheads,
				"active_calls", s.TotalActiveCalls,
				"queued_calls", s.TotalQueuedCalls,
				"completed_calls", s.TotalCompletedCalls,
				"failed_calls", s.TotalFailedCalls,
				"rejected_calls", s.TotalRejectedCalls,
				"open_breakers", s.OpenBreakers,
			))
		}
	}
}
