package observability

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/depguard/logger"
	"github.com/kbukum/depguard/resilience"
)

// installRecorder swaps in an in-memory tracer provider for the test.
func installRecorder(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func sumCounter(t *testing.T, rm metricdata.ResourceMetrics, name string, match attribute.KeyValue) int64 {
	t.Helper()
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: unexpected data type %T", name, m.Data)
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value(match.Key); ok && v == match.Value {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestDefaultTracerConfig(t *testing.T) {
	cfg := DefaultTracerConfig("test-service")

	if cfg.ServiceName != "test-service" {
		t.Errorf("expected ServiceName 'test-service', got %s", cfg.ServiceName)
	}
	if cfg.Endpoint != "localhost:4318" {
		t.Errorf("expected Endpoint 'localhost:4318', got %s", cfg.Endpoint)
	}
	if cfg.SampleRate != 1.0 {
		t.Errorf("expected SampleRate 1.0, got %f", cfg.SampleRate)
	}
	if !cfg.Insecure {
		t.Error("expected Insecure to be true")
	}
}

func TestDefaultMeterConfig(t *testing.T) {
	cfg := DefaultMeterConfig("test-service")

	if cfg.ServiceName != "test-service" {
		t.Errorf("expected ServiceName 'test-service', got %s", cfg.ServiceName)
	}
	if cfg.Interval != 15*time.Second {
		t.Errorf("expected Interval 15s, got %v", cfg.Interval)
	}
}

func TestNewMetrics_Noop(t *testing.T) {
	metrics, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error creating metrics: %v", err)
	}

	ctx := context.Background()
	metrics.RecordCallStart(ctx, "ledger")
	metrics.RecordCallEnd(ctx, "ledger", OutcomeSuccess, 100*time.Millisecond)
	metrics.RecordRetry(ctx, "ledger")
	metrics.RecordRejection(ctx, "ledger", "capacity")
	metrics.RecordTransition(ctx, "ledger", "closed", "open")
}

func TestMetrics_Recorded(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	ctx := context.Background()
	metrics.RecordCallEnd(ctx, "ledger", OutcomeSuccess, time.Millisecond)
	metrics.RecordCallEnd(ctx, "ledger", OutcomeRejected, time.Millisecond)
	metrics.RecordRetry(ctx, "ledger")
	metrics.RecordRetry(ctx, "ledger")
	metrics.RecordRejection(ctx, "ledger", "queue_timeout")
	metrics.RecordTransition(ctx, "ledger", "closed", "open")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if n := sumCounter(t, rm, "guard.call.total", attribute.String("outcome", OutcomeRejected)); n != 1 {
		t.Errorf("expected 1 rejected call, got %d", n)
	}
	if n := sumCounter(t, rm, "guard.retry.total", attribute.String("resource", "ledger")); n != 2 {
		t.Errorf("expected 2 retries, got %d", n)
	}
	if n := sumCounter(t, rm, "guard.rejection.total", attribute.String("reason", "queue_timeout")); n != 1 {
		t.Errorf("expected 1 queue_timeout rejection, got %d", n)
	}
	if n := sumCounter(t, rm, "guard.breaker.transition.total", attribute.String("to", "open")); n != 1 {
		t.Errorf("expected 1 transition to open, got %d", n)
	}
}

func TestCallContext_SpanAndMetrics(t *testing.T) {
	exporter := installRecorder(t)
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())
	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	cc := NewCallContext("ledger", "call-1", "post entry", metrics)
	ctx, span := cc.Start(context.Background())

	if got := CallIDFromContext(ctx); got != "call-1" {
		t.Errorf("expected call id in context, got %q", got)
	}
	cc.End(ctx, span, OutcomeFailure, 3, fmt.Errorf("boom"))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name != SpanGuardCall {
		t.Errorf("expected span %s, got %s", SpanGuardCall, s.Name)
	}
	if s.Status.Code != codes.Error {
		t.Errorf("expected error status, got %v", s.Status.Code)
	}
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range s.Attributes {
		attrs[kv.Key] = kv.Value
	}
	if attrs[AttrResource].AsString() != "ledger" {
		t.Errorf("expected resource attribute, got %v", attrs[AttrResource])
	}
	if attrs[AttrAttempts].AsInt64() != 3 {
		t.Errorf("expected 3 attempts, got %v", attrs[AttrAttempts])
	}
	if attrs[AttrOutcome].AsString() != OutcomeFailure {
		t.Errorf("expected failure outcome, got %v", attrs[AttrOutcome])
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if n := sumCounter(t, rm, "guard.call.total", attribute.String("outcome", OutcomeFailure)); n != 1 {
		t.Errorf("expected 1 failed call, got %d", n)
	}
	if n := sumCounter(t, rm, "guard.call.active", attribute.String("resource", "ledger")); n != 0 {
		t.Errorf("expected no calls in flight, got %d", n)
	}
}

func TestCallContext_NilMetrics(t *testing.T) {
	cc := NewCallContext("ledger", "call-2", "", nil)
	ctx, span := cc.Start(context.Background())
	cc.End(ctx, span, OutcomeSuccess, 1, nil)

	if cc.Duration() < 0 {
		t.Error("expected non-negative duration")
	}
}

func TestCallContextFromContext_NotSet(t *testing.T) {
	if cc := CallContextFromContext(context.Background()); cc != nil {
		t.Errorf("expected nil, got %+v", cc)
	}
	if id := CallIDFromContext(context.Background()); id != "" {
		t.Errorf("expected empty id, got %q", id)
	}
}

func TestCallContext_RetryEvent(t *testing.T) {
	exporter := installRecorder(t)
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())
	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	cc := NewCallContext("ledger", "call-3", "", metrics)
	ctx, span := cc.Start(context.Background())
	cc.Retry(ctx, 1, 150*time.Millisecond, fmt.Errorf("connection reset"))
	cc.End(ctx, span, OutcomeSuccess, 2, nil)

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].SpanKind != trace.SpanKindClient {
		t.Errorf("expected client span, got %v", spans[0].SpanKind)
	}
	events := spans[0].Events
	if len(events) != 1 || events[0].Name != EventRetry {
		t.Fatalf("expected one %s event, got %+v", EventRetry, events)
	}
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range events[0].Attributes {
		attrs[kv.Key] = kv.Value
	}
	if attrs[AttrAttempt].AsInt64() != 1 {
		t.Errorf("expected attempt 1, got %v", attrs[AttrAttempt])
	}
	if attrs[AttrDelayMs].AsInt64() != 150 {
		t.Errorf("expected delay 150ms, got %v", attrs[AttrDelayMs])
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if n := sumCounter(t, rm, "guard.retry.total", attribute.String("resource", "ledger")); n != 1 {
		t.Errorf("expected 1 retry, got %d", n)
	}
}

func TestRecordRetryWithoutSpan(t *testing.T) {
	RecordRetry(context.Background(), 1, time.Millisecond, fmt.Errorf("no span"))
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, "AlwaysOnSampler"},
		{2.0, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tc := range tests {
		if got := samplerFor(tc.rate).Description(); got != tc.want {
			t.Errorf("samplerFor(%v) = %q, want %q", tc.rate, got, tc.want)
		}
	}
}

func TestBreakerHealth(t *testing.T) {
	tests := []struct {
		state resilience.State
		want  HealthStatus
	}{
		{resilience.StateClosed, HealthStatusUp},
		{resilience.StateHalfOpen, HealthStatusDegraded},
		{resilience.StateOpen, HealthStatusDown},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			h := BreakerHealth(resilience.CircuitBreakerStats{
				Name:          "ledger",
				State:         tt.state,
				NextRetryTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			})
			if h.Status != tt.want {
				t.Errorf("expected %s, got %s", tt.want, h.Status)
			}
			if h.Details["state"] != tt.state.String() {
				t.Errorf("expected state detail %s, got %s", tt.state, h.Details["state"])
			}
		})
	}
}

func TestBulkheadHealth_QueueFull(t *testing.T) {
	h := BulkheadHealth(resilience.BulkheadStats{
		Name: "ledger", ActiveCalls: 2, MaxConcurrentCalls: 2, QueuedCalls: 1, MaxQueueSize: 1,
	})
	if h.Status != HealthStatusDegraded {
		t.Errorf("expected degraded, got %s", h.Status)
	}
	if h.Details["active"] != "2/2" {
		t.Errorf("expected active 2/2, got %s", h.Details["active"])
	}
}

func TestServiceHealth_AddComponent(t *testing.T) {
	sh := NewServiceHealth("billing", "1.0.0")
	if sh.Status != HealthStatusUp {
		t.Fatalf("expected up, got %s", sh.Status)
	}

	sh.AddComponent(Health{Name: "a", Status: HealthStatusUp})
	if sh.Status != HealthStatusUp {
		t.Errorf("expected up, got %s", sh.Status)
	}
	sh.AddComponent(Health{Name: "b", Status: HealthStatusDown})
	if sh.Status != HealthStatusDegraded {
		t.Errorf("expected a down dependency to degrade the service, got %s", sh.Status)
	}
	if len(sh.Components) != 2 {
		t.Errorf("expected 2 components, got %d", len(sh.Components))
	}
}

func TestInitTracerSamplingRates(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate float64
		insecure   bool
	}{
		{"always sample", 1.0, true},
		{"never sample", 0.0, true},
		{"ratio based", 0.5, true},
		{"secure", 1.0, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			prev := otel.GetTracerProvider()
			defer otel.SetTracerProvider(prev)

			cfg := &TracerConfig{
				ServiceName:    "test",
				ServiceVersion: "1.0.0",
				Environment:    "test",
				Endpoint:       "localhost:4318",
				Insecure:       tc.insecure,
				SampleRate:     tc.sampleRate,
			}
			tp, err := InitTracer(context.Background(), cfg, logger.Nop())
			if err != nil {
				t.Fatalf("InitTracer: %v", err)
			}
			_ = tp.Shutdown(context.Background())
		})
	}
}

func TestInitMeter(t *testing.T) {
	prev := otel.GetMeterProvider()
	defer otel.SetMeterProvider(prev)

	cfg := DefaultMeterConfig("test")
	mp, err := InitMeter(context.Background(), &cfg, nil)
	if err != nil {
		t.Fatalf("InitMeter: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = mp.Shutdown(ctx)
}

func TestTelemetry_Lifecycle(t *testing.T) {
	prevTP := otel.GetTracerProvider()
	prevMP := otel.GetMeterProvider()
	defer func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
	}()

	tracerCfg := DefaultTracerConfig("test")
	meterCfg := DefaultMeterConfig("test")
	tel := NewTelemetry(&tracerCfg, &meterCfg, nil)

	if h := tel.Health(context.Background()); h.Status != HealthStatusDown {
		t.Errorf("expected down before start, got %s", h.Status)
	}
	if err := tel.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h := tel.Health(context.Background()); h.Status != HealthStatusUp {
		t.Errorf("expected up after start, got %s", h.Status)
	}

	// Nothing listens on the endpoint; only the shutdown path matters here.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = tel.Stop(ctx)
	if h := tel.Health(context.Background()); h.Status != HealthStatusDown {
		t.Errorf("expected down after stop, got %s", h.Status)
	}
}

func TestTelemetry_NothingConfigured(t *testing.T) {
	tel := NewTelemetry(nil, nil, logger.Nop())
	if err := tel.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h := tel.Health(context.Background()); h.Status != HealthStatusUp {
		t.Errorf("expected up with nothing to install, got %s", h.Status)
	}
	if err := tel.Stop(context.Background()); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
