// Package resilience guards calls to unreliable dependencies.
//
// This package includes:
//   - Bulkhead: caps concurrent calls per resource, with a bounded FIFO queue
//     and a per-call execution timeout
//   - Retry: retries failed operations with capped exponential backoff and jitter
//   - CircuitBreaker: fails fast while a dependency keeps failing
//
// The primitives report expected failures as values, never panics. Errors
// they produce are typed so callers can tell overload from timeouts, open
// circuits and the dependency's own failures:
//
//	switch resilience.Classify(err) {
//	case resilience.KindRejection:       // shed load
//	case resilience.KindExecutionTimeout: // budget exceeded, work may still run
//	case resilience.KindCircuitOpen:      // dependency known to be down
//	case resilience.KindDownstream:       // the call itself failed
//	}
//
// Composed, a retry loop runs inside one bulkhead slot and each attempt
// passes through the breaker:
//
//	bh, _ := resilience.NewBulkhead(resilience.DefaultBulkheadConfig("ledger"))
//	cb, _ := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("ledger"))
//
//	res := resilience.ExecuteWithResult(ctx, bh, func(ctx context.Context) (*Entry, error) {
//	    r := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func(ctx context.Context) (*Entry, error) {
//	        return resilience.CallWithBreaker(ctx, cb, fetch)
//	    })
//	    return r.Data, r.Err
//	})
//
// The guard package wires this composition per named dependency.
package resilience
