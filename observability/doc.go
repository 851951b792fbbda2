// Package observability provides OpenTelemetry tracing and metrics for
// guarded dependency calls.
//
// Tracing:
//
//	cfg := observability.DefaultTracerConfig("billing")
//	tp, err := observability.InitTracer(ctx, &cfg, log)
//	defer tp.Shutdown(ctx)
//
// Metrics:
//
//	mcfg := observability.DefaultMeterConfig("billing")
//	mp, err := observability.InitMeter(ctx, &mcfg, log)
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewMetrics(observability.Meter("billing"))
//
// Per call, a CallContext opens the guard.call span and records the
// guard.call.* instruments:
//
//	cc := observability.NewCallContext("ledger", callID, "post entry", metrics)
//	ctx, span := cc.Start(ctx)
//	defer cc.End(ctx, span, observability.OutcomeSuccess, 1, nil)
//
// Health:
//
//	health := observability.NewServiceHealth("billing", version)
//	health.AddComponent(observability.BreakerHealth(cb.Stats()))
package observability
