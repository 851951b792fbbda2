package endpoint

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/depguard/errors"
	"github.com/kbukum/depguard/guard"
)

// Stats returns fleet-wide bulkhead and breaker statistics.
func Stats(orch *guard.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		respondOK(c, orch.Stats())
	}
}

// ResourceStats returns the statistics of the resource named in the path.
func ResourceStats(orch *guard.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		resource := c.Param("resource")
		rs, ok := orch.ResourceStats(resource)
		if !ok {
			respondError(c, apperrors.NotFound("resource", resource))
			return
		}
		respondOK(c, rs)
	}
}

// Breakers lists every circuit breaker.
func Breakers(orch *guard.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		respondOK(c, orch.Stats().Breakers)
	}
}

// ResetBreaker forces the breaker named in the path closed.
func ResetBreaker(orch *guard.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		resource := c.Param("resource")
		if !orch.ResetCircuitBreaker(resource) {
			respondError(c, apperrors.NotFound("circuit breaker", resource))
			return
		}
		cb, _ := orch.CircuitBreaker(resource)
		respondOK(c, cb.Stats())
	}
}
