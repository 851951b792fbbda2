package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/kbukum/depguard/observability"
	"github.com/kbukum/depguard/validation"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "GUARD"

// Config is the configuration of a guard deployment.
type Config struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Admin AdminConfig `yaml:"admin" mapstructure:"admin"`
	// Baseline overrides the built-in bulkhead baseline.
	Baseline BulkheadSettings `yaml:"baseline" mapstructure:"baseline"`
	// Classes overrides the built-in resource-class defaults, by class name.
	Classes map[string]BulkheadSettings `yaml:"classes" mapstructure:"classes" validate:"dive,keys,oneof=regulatory_agency third_party internal notification,endkeys"`
	// Resources holds per-resource overrides applied on top of the class.
	Resources      map[string]BulkheadSettings `yaml:"resources" mapstructure:"resources" validate:"dive"`
	Retry          RetrySettings               `yaml:"retry" mapstructure:"retry"`
	CircuitBreaker BreakerSettings             `yaml:"circuit_breaker" mapstructure:"circuit_breaker"`
	Telemetry      TelemetryConfig             `yaml:"telemetry" mapstructure:"telemetry"`
}

// ApplyDefaults applies default values to every section.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	c.Admin.ApplyDefaults()
	c.Telemetry.ApplyDefaults()
}

// Validate validates every section.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := validation.Validate(c); err != nil {
		return err
	}
	return c.Retry.ToRetryConfig().Validate()
}

// AdminConfig configures the operator HTTP surface.
type AdminConfig struct {
	Host string `yaml:"host" mapstructure:"host" validate:"required"`
	Port int    `yaml:"port" mapstructure:"port" validate:"gte=1,lte=65535"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"gte=0"`
	// StatsInterval is how often fleet stats are logged. Zero disables it.
	StatsInterval time.Duration `yaml:"stats_interval" mapstructure:"stats_interval" validate:"gte=0"`
}

// ApplyDefaults applies default values to the admin section.
func (c *AdminConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8086
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Addr returns host:port.
func (c AdminConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// TelemetryConfig configures OTLP export of traces and metrics.
type TelemetryConfig struct {
	Enabled    bool          `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string        `yaml:"endpoint" mapstructure:"endpoint" validate:"required_if=Enabled true"`
	Insecure   bool          `yaml:"insecure" mapstructure:"insecure"`
	Interval   time.Duration `yaml:"interval" mapstructure:"interval" validate:"gte=0"`
	SampleRate float64       `yaml:"sample_rate" mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// ApplyDefaults applies default values to the telemetry section.
func (c *TelemetryConfig) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.Interval == 0 {
		c.Interval = 15 * time.Second
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
}

// TracerConfig builds the tracer configuration for the service.
func (c *Config) TracerConfig() *observability.TracerConfig {
	return &observability.TracerConfig{
		ServiceName:    c.Name,
		ServiceVersion: c.Version,
		Environment:    c.Environment,
		Endpoint:       c.Telemetry.Endpoint,
		Insecure:       c.Telemetry.Insecure,
		SampleRate:     c.Telemetry.SampleRate,
	}
}

// MeterConfig builds the meter configuration for the service.
func (c *Config) MeterConfig() *observability.MeterConfig {
	return &observability.MeterConfig{
		ServiceName:    c.Name,
		ServiceVersion: c.Version,
		Environment:    c.Environment,
		Endpoint:       c.Telemetry.Endpoint,
		Insecure:       c.Telemetry.Insecure,
		Interval:       c.Telemetry.Interval,
	}
}

// Load reads configuration for service from config.yml, .env and GUARD_
// environment variables, then applies defaults and validates it.
func Load(service string, opts ...LoaderOption) (*Config, error) {
	cfg := &Config{ServiceConfig: ServiceConfig{Name: service}}
	opts = append([]LoaderOption{WithEnvPrefix(EnvPrefix)}, opts...)
	if err := LoadConfig(service, cfg, opts...); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = service
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
