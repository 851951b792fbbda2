package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/depguard/resilience"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestServiceConfigApplyDefaults(t *testing.T) {
	t.Run("empty environment defaults to development", func(t *testing.T) {
		cfg := ServiceConfig{Name: "svc"}
		cfg.ApplyDefaults()
		if cfg.Environment != "development" {
			t.Errorf("expected 'development', got %q", cfg.Environment)
		}
		if !cfg.Debug {
			t.Error("expected debug=true for development")
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("expected debug logging in development, got %q", cfg.Logging.Level)
		}
	})

	t.Run("production environment keeps debug false", func(t *testing.T) {
		cfg := ServiceConfig{Name: "svc", Environment: "production"}
		cfg.ApplyDefaults()
		if cfg.Debug {
			t.Error("expected debug=false for production")
		}
		if cfg.Logging.Level != "info" {
			t.Errorf("expected info logging, got %q", cfg.Logging.Level)
		}
	})
}

func TestServiceConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServiceConfig
		wantErr bool
		errMsg  string
	}{
		{"valid staging", ServiceConfig{Name: "svc", Environment: "staging"}, false, ""},
		{"missing name", ServiceConfig{Environment: "production"}, true, "config.name is required"},
		{"invalid environment", ServiceConfig{Name: "svc", Environment: "invalid"}, true, "config.environment must be one of"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.cfg.Logging.ApplyDefaults()
			err := tc.cfg.Validate()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !strings.Contains(err.Error(), tc.errMsg) {
					t.Errorf("expected error containing %q, got %q", tc.errMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, `
name: guard-admin
environment: staging
admin:
  port: 9090
baseline:
  max_concurrent_calls: 12
classes:
  regulatory_agency:
    max_concurrent_calls: 2
    queue_timeout: 45s
resources:
  fda_api:
    execution_timeout: 90s
    monitoring_enabled: false
retry:
  max_attempts: 4
  initial_delay: 250ms
  jitter: false
circuit_breaker:
  failure_threshold: 7
  recovery_timeout: 2m
`)

	cfg, err := Load("guard-admin", WithConfigFile(path))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Environment != "staging" {
		t.Errorf("expected staging, got %q", cfg.Environment)
	}
	if cfg.Admin.Port != 9090 || cfg.Admin.Host != "0.0.0.0" {
		t.Errorf("unexpected admin section %+v", cfg.Admin)
	}
	if got := cfg.BaselineConfig().MaxConcurrentCalls; got != 12 {
		t.Errorf("expected baseline concurrency 12, got %d", got)
	}
	if got := cfg.Classes["regulatory_agency"].QueueTimeout; got != 45*time.Second {
		t.Errorf("expected 45s class queue timeout, got %v", got)
	}
	fda := cfg.Resources["fda_api"]
	if fda.ExecutionTimeout != 90*time.Second {
		t.Errorf("expected 90s resource execution timeout, got %v", fda.ExecutionTimeout)
	}
	if fda.MonitoringEnabled == nil || *fda.MonitoringEnabled {
		t.Error("expected monitoring explicitly disabled for fda_api")
	}

	retry := cfg.Retry.ToRetryConfig()
	if retry.MaxAttempts != 4 || retry.InitialDelay != 250*time.Millisecond || retry.JitterEnabled {
		t.Errorf("unexpected retry config %+v", retry)
	}
	if retry.MaxDelay != resilience.DefaultMaxDelay {
		t.Errorf("expected default max delay, got %v", retry.MaxDelay)
	}

	cb := cfg.CircuitBreaker.ToCircuitBreakerConfig("fda_api")
	if cb.Name != "fda_api" || cb.FailureThreshold != 7 || cb.RecoveryTimeout != 2*time.Minute {
		t.Errorf("unexpected breaker config %+v", cb)
	}
	if cb.SuccessThreshold != resilience.DefaultSuccessThreshold {
		t.Errorf("expected default success threshold, got %d", cb.SuccessThreshold)
	}
	if !cfg.CircuitBreaker.IsEnabled() {
		t.Error("expected breakers enabled by default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
name: guard-admin
classes:
  internal:
    max_queue_size: 40
`)
	t.Setenv("GUARD_ADMIN_PORT", "7070")
	t.Setenv("GUARD_CIRCUIT_BREAKER_ENABLED", "false")
	t.Setenv("GUARD_RETRY_MAX_DELAY", "10s")
	t.Setenv("GUARD_CLASSES_INTERNAL_MAX_QUEUE_SIZE", "80")

	cfg, err := Load("guard-admin", WithConfigFile(path))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Admin.Port != 7070 {
		t.Errorf("expected port 7070 from env, got %d", cfg.Admin.Port)
	}
	if cfg.CircuitBreaker.IsEnabled() {
		t.Error("expected breakers disabled from env")
	}
	if cfg.Retry.MaxDelay != 10*time.Second {
		t.Errorf("expected 10s max delay from env, got %v", cfg.Retry.MaxDelay)
	}
	if got := cfg.Classes["internal"].MaxQueueSize; got != 80 {
		t.Errorf("expected class queue size 80 from env, got %d", got)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("GUARD_ADMIN_HOST=127.0.0.1\n"), 0644); err != nil {
		t.Fatalf("failed to write env: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("GUARD_ADMIN_HOST") })

	cfg, err := Load("guard-admin", WithConfigFile(filepath.Join(dir, "missing.yml")), WithEnvFile(envPath))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Admin.Host != "127.0.0.1" {
		t.Errorf("expected host from .env, got %q", cfg.Admin.Host)
	}
	if cfg.Name != "guard-admin" {
		t.Errorf("expected service name default, got %q", cfg.Name)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown class", "classes:\n  partner:\n    max_queue_size: 3\n"},
		{"negative concurrency", "baseline:\n  max_concurrent_calls: -1\n"},
		{"shrinking backoff", "retry:\n  backoff_multiplier: 0.5\n"},
		{"max delay below initial", "retry:\n  initial_delay: 1m\n  max_delay: 1s\n"},
		{"port out of range", "admin:\n  port: 70000\n"},
		{"sample rate", "telemetry:\n  sample_rate: 2\n"},
		{"bad environment", "environment: qa\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			if _, err := Load("guard-admin", WithConfigFile(path)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	var cfg Config
	err := LoadConfig("nonexistent-service", &cfg, WithConfigFile("/nonexistent/path.yml"))
	if err != nil {
		t.Fatalf("expected LoadConfig to succeed with missing file, got %v", err)
	}
}

func TestBulkheadSettings_Apply(t *testing.T) {
	off := false
	base := resilience.DefaultBulkheadConfig("x")
	got := BulkheadSettings{MaxQueueSize: 3, MonitoringEnabled: &off}.Apply(base)

	if got.MaxQueueSize != 3 {
		t.Errorf("expected queue 3, got %d", got.MaxQueueSize)
	}
	if got.MaxConcurrentCalls != base.MaxConcurrentCalls {
		t.Errorf("expected inherited concurrency, got %d", got.MaxConcurrentCalls)
	}
	if got.MonitoringEnabled {
		t.Error("expected monitoring turned off")
	}
}

func TestClassConfigs(t *testing.T) {
	cfg := Config{Classes: map[string]BulkheadSettings{
		"internal": {MaxConcurrentCalls: 99},
	}}
	defaults := map[string]resilience.BulkheadConfig{
		"internal":    {MaxConcurrentCalls: 20, MaxQueueSize: 50},
		"third_party": {MaxConcurrentCalls: 5},
	}

	got := cfg.ClassConfigs(defaults)
	if got["internal"].MaxConcurrentCalls != 99 || got["internal"].MaxQueueSize != 50 {
		t.Errorf("unexpected internal class %+v", got["internal"])
	}
	if got["third_party"].MaxConcurrentCalls != 5 {
		t.Errorf("expected third_party untouched, got %+v", got["third_party"])
	}
}

func TestStructKeys(t *testing.T) {
	keys := structKeys(reflect.TypeOf(Config{}), "")
	want := []string{"name", "logging.level", "admin.port", "retry.jitter", "circuit_breaker.failure_threshold", "telemetry.sample_rate"}
	set := map[string]bool{}
	for _, k := range keys {
		set[k] = true
	}
	for _, w := range want {
		if !set[w] {
			t.Errorf("expected key %s in %v", w, keys)
		}
	}
	if set["classes"] || set["resources"] {
		t.Error("expected map sections to be skipped")
	}
}

func TestConfigResolverWithMockFS(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		"./cmd/guard-admin/config.yml": true,
	}}
	resolver := &Resolver{FileSystem: fs}
	files := resolver.ResolveFiles("guard-admin", LoaderConfig{})
	if files.ConfigFile != "./cmd/guard-admin/config.yml" {
		t.Errorf("expected config file at ./cmd/guard-admin/config.yml, got %q", files.ConfigFile)
	}
}

func TestConfigResolverEnvFileOrder(t *testing.T) {
	fs := &mockFS{files: map[string]bool{
		"../config/.env":             true,
		"./.env.guard-admin":         true,
		"../../cmd/guard-admin/.env": true,
	}}
	resolver := &Resolver{FileSystem: fs}
	files := resolver.ResolveFiles("guard-admin", LoaderConfig{})
	// The service-specific name wins over any plain .env.
	if files.EnvFile != "./.env.guard-admin" {
		t.Errorf("EnvFile = %q, want ./.env.guard-admin", files.EnvFile)
	}

	delete(fs.files, "./.env.guard-admin")
	files = resolver.ResolveFiles("guard-admin", LoaderConfig{})
	if files.EnvFile != "../../cmd/guard-admin/.env" {
		t.Errorf("EnvFile = %q, want ../../cmd/guard-admin/.env", files.EnvFile)
	}
	if files.ConfigFile != "" {
		t.Errorf("ConfigFile = %q, want empty", files.ConfigFile)
	}
}

type mockFS struct {
	files map[string]bool
}

func (m *mockFS) Exists(path string) bool { return m.files[path] }
func (m *mockFS) LoadEnv(path string) error { return nil }

func TestLoaderOptions(t *testing.T) {
	var lc LoaderConfig
	WithFileSystem(&mockFS{})(&lc)
	WithConfigFile("/path/to/config.yml")(&lc)
	WithEnvFile("/path/to/.env")(&lc)
	WithEnvPrefix("GUARD")(&lc)

	if lc.FileSystem == nil {
		t.Error("expected FileSystem to be set")
	}
	if lc.ConfigFile != "/path/to/config.yml" || lc.EnvFile != "/path/to/.env" || lc.EnvPrefix != "GUARD" {
		t.Errorf("unexpected loader config %+v", lc)
	}
}
