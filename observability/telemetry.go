package observability

import (
	"context"
	"errors"
	"sync"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kbukum/depguard/logger"
)

// Telemetry owns the tracer and meter providers as one lifecycle
// component: Start installs them globally, Stop flushes and shuts them down.
type Telemetry struct {
	tracerCfg *TracerConfig
	meterCfg  *MeterConfig
	log       *logger.Logger

	mu sync.Mutex
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// NewTelemetry creates the component. A nil config skips that signal.
func NewTelemetry(tracerCfg *TracerConfig, meterCfg *MeterConfig, log *logger.Logger) *Telemetry {
	if log == nil {
		log = logger.Nop()
	}
	return &Telemetry{tracerCfg: tracerCfg, meterCfg: meterCfg, log: log.WithComponent("telemetry")}
}

// Name returns the component name.
func (t *Telemetry) Name() string { return "telemetry" }

// Start creates the exporters and installs the global providers.
func (t *Telemetry) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.tracerCfg != nil {
		tp, err := InitTracer(ctx, t.tracerCfg, t.log)
		if err != nil {
			return err
		}
		t.tp = tp
	}
	if t.meterCfg != nil {
		mp, err := InitMeter(ctx, t.meterCfg, t.log)
		if err != nil {
			return err
		}
		t.mp = mp
	}
	return nil
}

// Stop flushes pending spans and metrics and shuts the providers down.
func (t *Telemetry) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var errs []error
	if t.tp != nil {
		errs = append(errs, t.tp.Shutdown(ctx))
		t.tp = nil
	}
	if t.mp != nil {
		errs = append(errs, t.mp.Shutdown(ctx))
		t.mp = nil
	}
	return errors.Join(errs...)
}

// Health reports down until the configured providers are installed.
func (t *Telemetry) Health(ctx context.Context) Health {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := Health{Name: t.Name(), Status: HealthStatusUp}
	if (t.tracerCfg != nil && t.tp == nil) || (t.meterCfg != nil && t.mp == nil) {
		h.Status = HealthStatusDown
		h.Message = "providers not installed"
	}
	return h
}
