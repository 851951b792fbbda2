// Package config loads and validates depguard configuration.
//
// It uses Viper to read config.yml from standard locations, godotenv to load
// a .env file, and binds environment variables over every known key:
//
//	cfg, err := config.Load("guard-admin")
//
// Environment variables use the GUARD_ prefix with underscore-separated
// paths (e.g., GUARD_ADMIN_PORT, GUARD_CIRCUIT_BREAKER_RECOVERY_TIMEOUT=90s).
//
// The bulkhead, retry and breaker sections convert into resilience
// configurations with BulkheadSettings.Apply, RetrySettings.ToRetryConfig and
// BreakerSettings.ToCircuitBreakerConfig.
package config
