// Package guard composes bulkheads, retries and circuit breakers per named
// dependency.
//
// A Registry resolves each resource name to a bulkhead configuration by
// layering the baseline, the resource's class default, any configured
// resource settings and a per-call override. The Orchestrator runs a call's
// whole retry loop inside one bulkhead slot and sends every attempt through
// the resource's circuit breaker:
//
//	reg, _ := guard.NewRegistry(guard.RegistryOptions{Logger: log})
//	orch, _ := guard.New(reg, guard.Options{Logger: log, Metrics: metrics})
//
//	body, err := guard.ExecuteCall(ctx, orch, "payments_third_party",
//		func(ctx context.Context) ([]byte, error) { return client.Fetch(ctx) },
//		guard.WithDescription("fetch invoice"))
//	if err != nil {
//		return guard.ToAppError("payments_third_party", err)
//	}
package guard
