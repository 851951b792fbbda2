package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/depguard/logger"
)

// MeterConfig configures OTLP metric export.
type MeterConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the OTLP HTTP collector host:port.
	Endpoint string
	Insecure bool
	// Interval is how often guard instruments are pushed.
	Interval time.Duration
}

// DefaultMeterConfig pushes to a local collector every 15 seconds.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "dev",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider and installs it
// globally. The provider should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig, log *logger.Logger) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	if log != nil {
		log.Info("meter initialized", logger.Fields(
			"service", config.ServiceName,
			"endpoint", config.Endpoint,
			"interval", config.Interval.String(),
		))
	}

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Call outcomes recorded on guard.call.total.
const (
	OutcomeSuccess     = "success"
	OutcomeRejected    = "rejected"
	OutcomeTimeout     = "timeout"
	OutcomeCircuitOpen = "circuit_open"
	OutcomeFailure     = "failure"
)

// Metrics holds the instruments recorded for guarded calls.
type Metrics struct {
	callTotal       metric.Int64Counter
	callDuration    metric.Float64Histogram
	callActive      metric.Int64UpDownCounter
	retryTotal      metric.Int64Counter
	rejectionTotal  metric.Int64Counter
	transitionTotal metric.Int64Counter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	callTotal, err := meter.Int64Counter("guard.call.total",
		metric.WithDescription("Guarded calls by resource and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating guard.call.total counter: %w", err)
	}

	callDuration, err := meter.Float64Histogram("guard.call.duration",
		metric.WithDescription("Duration of guarded calls in seconds, queueing and retries included"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating guard.call.duration histogram: %w", err)
	}

	callActive, err := meter.Int64UpDownCounter("guard.call.active",
		metric.WithDescription("Guarded calls currently in flight"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating guard.call.active gauge: %w", err)
	}

	retryTotal, err := meter.Int64Counter("guard.retry.total",
		metric.WithDescription("Retries scheduled after a failed attempt"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating guard.retry.total counter: %w", err)
	}

	rejectionTotal, err := meter.Int64Counter("guard.rejection.total",
		metric.WithDescription("Calls shed by a bulkhead, by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating guard.rejection.total counter: %w", err)
	}

	transitionTotal, err := meter.Int64Counter("guard.breaker.transition.total",
		metric.WithDescription("Circuit breaker state transitions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating guard.breaker.transition.total counter: %w", err)
	}

	return &Metrics{
		callTotal:       callTotal,
		callDuration:    callDuration,
		callActive:      callActive,
		retryTotal:      retryTotal,
		rejectionTotal:  rejectionTotal,
		transitionTotal: transitionTotal,
	}, nil
}

// RecordCallStart increments the in-flight count for resource.
func (m *Metrics) RecordCallStart(ctx context.Context, resource string) {
	m.callActive.Add(ctx, 1, metric.WithAttributes(attribute.String("resource", resource)))
}

// RecordCallEnd decrements the in-flight count and records the finished call.
func (m *Metrics) RecordCallEnd(ctx context.Context, resource, outcome string, duration time.Duration) {
	res := attribute.String("resource", resource)
	m.callActive.Add(ctx, -1, metric.WithAttributes(res))
	m.callTotal.Add(ctx, 1, metric.WithAttributes(res, attribute.String("outcome", outcome)))
	m.callDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(res))
}

// RecordRetry records a retry scheduled for resource.
func (m *Metrics) RecordRetry(ctx context.Context, resource string) {
	m.retryTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("resource", resource)))
}

// RecordRejection records a bulkhead rejection.
func (m *Metrics) RecordRejection(ctx context.Context, resource, reason string) {
	m.rejectionTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("resource", resource),
		attribute.String("reason", reason),
	))
}

// RecordTransition records a circuit breaker state change.
func (m *Metrics) RecordTransition(ctx context.Context, breaker, from, to string) {
	m.transitionTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", breaker),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}
