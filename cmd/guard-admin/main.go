// Command guard-admin runs the guard control plane with its operator HTTP
// surface. Configuration is read from config.yml and .env in the standard
// locations, with GUARD_ environment overrides.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kbukum/depguard/bootstrap"
	"github.com/kbukum/depguard/config"
	"github.com/kbukum/depguard/guard"
	"github.com/kbukum/depguard/logger"
	"github.com/kbukum/depguard/observability"
	"github.com/kbukum/depguard/server"
	"github.com/kbukum/depguard/version"
)

const serviceName = "guard-admin"

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		logger.NewFromEnv(serviceName).WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}
	if err := run(context.Background(), cfg); err != nil {
		logger.NewFromEnv(serviceName).WithError(err).Error("guard-admin stopped with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	cfg.ApplyDefaults()
	if cfg.Version == "" {
		cfg.Version = version.GetShortVersion()
	}
	app, err := bootstrap.NewApp(cfg, bootstrap.WithGracefulTimeout(cfg.Admin.ShutdownTimeout))
	if err != nil {
		return err
	}
	if err := wire(app); err != nil {
		return err
	}
	return app.Run(ctx)
}

// wire registers telemetry, the stats monitor and the admin server on app.
func wire(app *bootstrap.App[*config.Config]) error {
	cfg := app.Cfg
	log := app.Logger

	var metrics *observability.Metrics
	if cfg.Telemetry.Enabled {
		if err := app.RegisterComponent(observability.NewTelemetry(cfg.TracerConfig(), cfg.MeterConfig(), log)); err != nil {
			return err
		}
		m, err := observability.NewMetrics(observability.Meter("depguard"))
		if err != nil {
			return fmt.Errorf("create metrics: %w", err)
		}
		metrics = m
	}

	orch, err := newOrchestrator(cfg, log, metrics)
	if err != nil {
		return err
	}

	if err := app.RegisterComponent(newMonitor(orch, cfg.Admin.StatsInterval)); err != nil {
		return err
	}

	srv := server.New(cfg.Admin, log)
	if err := srv.RegisterEndpoints(app.Name, app.Version, orch); err != nil {
		return err
	}
	return app.RegisterComponent(srv)
}

// newOrchestrator builds the bulkhead registry and orchestrator from cfg.
func newOrchestrator(cfg *config.Config, log *logger.Logger, metrics *observability.Metrics) (*guard.Orchestrator, error) {
	baseline := cfg.BaselineConfig()
	resources := make(map[string]guard.BulkheadLayer, len(cfg.Resources))
	for name, s := range cfg.Resources {
		resources[name] = s
	}

	registry, err := guard.NewRegistry(guard.RegistryOptions{
		Baseline:  &baseline,
		Classes:   cfg.ClassConfigs(guard.DefaultClasses()),
		Resources: resources,
		Logger:    log,
	})
	if err != nil {
		return nil, fmt.Errorf("create registry: %w", err)
	}

	retry := cfg.Retry.ToRetryConfig()
	breaker := cfg.CircuitBreaker.ToCircuitBreakerConfig("template")
	orch, err := guard.New(registry, guard.Options{
		Logger:                 log,
		Retry:                  &retry,
		CircuitBreaker:         &breaker,
		DisableCircuitBreakers: !cfg.CircuitBreaker.IsEnabled(),
		Metrics:                metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}
	return orch, nil
}
