package endpoint

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/depguard/guard"
	"github.com/kbukum/depguard/observability"
)

// Health reports the service as up, or degraded while any bulkhead sheds
// load or any breaker is not closed. The status code is always 200: a
// failing dependency is what the guard absorbs.
func Health(serviceName, version string, orch *guard.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := observability.NewServiceHealth(serviceName, version)
		stats := orch.Stats()
		for _, b := range stats.Bulkheads {
			h.AddComponent(observability.BulkheadHealth(b))
		}
		for _, cb := range stats.Breakers {
			h.AddComponent(observability.BreakerHealth(cb))
		}

		c.JSON(http.StatusOK, gin.H{
			"status":     h.Status,
			"service":    h.Service,
			"version":    h.Version,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"components": h.Components,
		})
	}
}
