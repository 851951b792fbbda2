// Package logger provides structured logging for depguard using zerolog.
//
// Components receive a *Logger by injection and tag it with their name:
//
//	log := logger.New(&cfg, "guard-admin").WithComponent("bulkhead")
//	log.Warn("call rejected", logger.Fields(logger.FieldBulkhead, name))
//
// Nop returns a logger that discards everything; primitives fall back to it
// when no logger is configured.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
package logger
