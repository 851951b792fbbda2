// Package validation validates configuration structs for depguard.
//
// Struct tags cover per-field rules:
//
//	type BulkheadConfig struct {
//	    Name               string `validate:"required"`
//	    MaxConcurrentCalls int    `validate:"gte=0"`
//	}
//	err := validation.Validate(cfg)
//
// Cross-field rules are collected programmatically:
//
//	v := validation.New()
//	v.Custom(cfg.MaxDelay >= cfg.InitialDelay, "max_delay", "must not be below initial_delay")
//	err := v.Validate()
//
// Both return *errors.AppError with per-field details.
package validation
