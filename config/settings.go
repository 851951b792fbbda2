package config

import (
	"time"

	"github.com/kbukum/depguard/resilience"
)

// BulkheadSettings is a partial bulkhead configuration. Zero fields inherit
// from the layer below.
type BulkheadSettings struct {
	MaxConcurrentCalls int           `yaml:"max_concurrent_calls" mapstructure:"max_concurrent_calls" validate:"gte=0"`
	MaxQueueSize       int           `yaml:"max_queue_size" mapstructure:"max_queue_size" validate:"gte=0"`
	QueueTimeout       time.Duration `yaml:"queue_timeout" mapstructure:"queue_timeout" validate:"gte=0"`
	ExecutionTimeout   time.Duration `yaml:"execution_timeout" mapstructure:"execution_timeout" validate:"gte=0"`
	// MonitoringEnabled overrides monitoring when set, on or off.
	MonitoringEnabled *bool `yaml:"monitoring_enabled" mapstructure:"monitoring_enabled"`
}

// Apply layers the settings over base.
func (s BulkheadSettings) Apply(base resilience.BulkheadConfig) resilience.BulkheadConfig {
	if s.MaxConcurrentCalls > 0 {
		base.MaxConcurrentCalls = s.MaxConcurrentCalls
	}
	if s.MaxQueueSize > 0 {
		base.MaxQueueSize = s.MaxQueueSize
	}
	if s.QueueTimeout > 0 {
		base.QueueTimeout = s.QueueTimeout
	}
	if s.ExecutionTimeout > 0 {
		base.ExecutionTimeout = s.ExecutionTimeout
	}
	if s.MonitoringEnabled != nil {
		base.MonitoringEnabled = *s.MonitoringEnabled
	}
	return base
}

// BaselineConfig returns the built-in baseline with the configured overrides.
func (c *Config) BaselineConfig() resilience.BulkheadConfig {
	return c.Baseline.Apply(resilience.DefaultBulkheadConfig(""))
}

// ClassConfigs layers the configured class settings over defaults. Classes
// absent from defaults are ignored.
func (c *Config) ClassConfigs(defaults map[string]resilience.BulkheadConfig) map[string]resilience.BulkheadConfig {
	out := make(map[string]resilience.BulkheadConfig, len(defaults))
	for name, def := range defaults {
		if s, ok := c.Classes[name]; ok {
			def = s.Apply(def)
		}
		out[name] = def
	}
	return out
}

// RetrySettings configures the default retry policy of guarded calls.
type RetrySettings struct {
	MaxAttempts       int           `yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=0"`
	InitialDelay      time.Duration `yaml:"initial_delay" mapstructure:"initial_delay" validate:"gte=0"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" mapstructure:"backoff_multiplier" validate:"eq=0|gte=1"`
	MaxDelay          time.Duration `yaml:"max_delay" mapstructure:"max_delay" validate:"gte=0"`
	// Jitter defaults to on.
	Jitter *bool `yaml:"jitter" mapstructure:"jitter"`
}

// ToRetryConfig converts the settings, filling gaps from the defaults.
func (s RetrySettings) ToRetryConfig() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	if s.MaxAttempts > 0 {
		cfg.MaxAttempts = s.MaxAttempts
	}
	if s.InitialDelay > 0 {
		cfg.InitialDelay = s.InitialDelay
	}
	if s.BackoffMultiplier > 0 {
		cfg.BackoffMultiplier = s.BackoffMultiplier
	}
	if s.MaxDelay > 0 {
		cfg.MaxDelay = s.MaxDelay
	}
	if s.Jitter != nil {
		cfg.JitterEnabled = *s.Jitter
	}
	return cfg
}

// BreakerSettings configures the per-resource circuit breakers.
type BreakerSettings struct {
	// Enabled defaults to on.
	Enabled          *bool         `yaml:"enabled" mapstructure:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold" mapstructure:"failure_threshold" validate:"gte=0"`
	SuccessThreshold int           `yaml:"success_threshold" mapstructure:"success_threshold" validate:"gte=0"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout" mapstructure:"recovery_timeout" validate:"gte=0"`
	HalfOpenMaxCalls int           `yaml:"half_open_max_calls" mapstructure:"half_open_max_calls" validate:"gte=0"`
}

// IsEnabled reports whether breakers are on.
func (s BreakerSettings) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// ToCircuitBreakerConfig converts the settings for the breaker of one
// resource, filling gaps from the defaults.
func (s BreakerSettings) ToCircuitBreakerConfig(name string) resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig(name)
	if s.FailureThreshold > 0 {
		cfg.FailureThreshold = s.FailureThreshold
	}
	if s.SuccessThreshold > 0 {
		cfg.SuccessThreshold = s.SuccessThreshold
	}
	if s.RecoveryTimeout > 0 {
		cfg.RecoveryTimeout = s.RecoveryTimeout
	}
	cfg.HalfOpenMaxCalls = s.HalfOpenMaxCalls
	return cfg
}
