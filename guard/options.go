package guard

import "github.com/kbukum/depguard/resilience"

type callOptions struct {
	retry       *resilience.RetryConfig
	description string
	bulkhead    *resilience.BulkheadConfig
	noBreaker   bool
	breaker     *resilience.CircuitBreakerConfig
}

// CallOption customizes one ExecuteCall.
type CallOption func(*callOptions)

// WithRetryConfig replaces the orchestrator's retry policy for this call.
func WithRetryConfig(cfg resilience.RetryConfig) CallOption {
	return func(o *callOptions) { o.retry = &cfg }
}

// WithDescription labels the call in logs and spans.
func WithDescription(desc string) CallOption {
	return func(o *callOptions) { o.description = desc }
}

// WithBulkheadConfig overrides the resource's bulkhead configuration. It
// only takes effect if this call creates the bulkhead.
func WithBulkheadConfig(cfg resilience.BulkheadConfig) CallOption {
	return func(o *callOptions) { o.bulkhead = &cfg }
}

// WithoutCircuitBreaker bypasses the resource's breaker for this call.
func WithoutCircuitBreaker() CallOption {
	return func(o *callOptions) { o.noBreaker = true }
}

// WithCircuitBreakerConfig overrides the resource's breaker configuration.
// It only takes effect if this call creates the breaker.
func WithCircuitBreakerConfig(cfg resilience.CircuitBreakerConfig) CallOption {
	return func(o *callOptions) { o.breaker = &cfg }
}
