package observability

import (
	"fmt"
	"time"

	"github.com/kbukum/depguard/resilience"
)

// HealthStatus represents the health state of a dependency or service.
type HealthStatus string

const (
	HealthStatusUp       HealthStatus = "up"
	HealthStatusDown     HealthStatus = "down"
	HealthStatusDegraded HealthStatus = "degraded"
)

// Health describes the health of one guarded dependency.
type Health struct {
	Name    string            `json:"name"`
	Status  HealthStatus      `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// ServiceHealth describes the overall health of a service and the
// dependencies it guards.
type ServiceHealth struct {
	Service    string       `json:"service"`
	Status     HealthStatus `json:"status"`
	Version    string       `json:"version,omitempty"`
	Components []Health     `json:"components,omitempty"`
}

// NewServiceHealth creates a ServiceHealth with status up.
func NewServiceHealth(service, version string) *ServiceHealth {
	return &ServiceHealth{
		Service: service,
		Status:  HealthStatusUp,
		Version: version,
	}
}

// AddComponent adds a dependency health result. A down dependency only
// degrades the service: the guard exists so the service survives it.
func (sh *ServiceHealth) AddComponent(ch Health) {
	sh.Components = append(sh.Components, ch)

	if ch.Status != HealthStatusUp && sh.Status == HealthStatusUp {
		sh.Status = HealthStatusDegraded
	}
}

// BreakerHealth maps a breaker snapshot to health: open is down, half-open
// is degraded.
func BreakerHealth(stats resilience.CircuitBreakerStats) Health {
	h := Health{
		Name:    stats.Name,
		Status:  HealthStatusUp,
		Details: map[string]string{"state": stats.State.String()},
	}
	switch stats.State {
	case resilience.StateOpen:
		h.Status = HealthStatusDown
		h.Message = "circuit open"
		if !stats.NextRetryTime.IsZero() {
			h.Details["next_retry_time"] = stats.NextRetryTime.UTC().Format(time.RFC3339)
		}
	case resilience.StateHalfOpen:
		h.Status = HealthStatusDegraded
		h.Message = "probing recovery"
	}
	return h
}

// BulkheadHealth maps a bulkhead snapshot to health: a full queue is
// degraded, since further calls are being shed.
func BulkheadHealth(stats resilience.BulkheadStats) Health {
	h := Health{
		Name:   stats.Name,
		Status: HealthStatusUp,
		Details: map[string]string{
			"active": fmt.Sprintf("%d/%d", stats.ActiveCalls, stats.MaxConcurrentCalls),
			"queued": fmt.Sprintf("%d/%d", stats.QueuedCalls, stats.MaxQueueSize),
		},
	}
	if stats.MaxQueueSize > 0 && stats.QueuedCalls >= stats.MaxQueueSize {
		h.Status = HealthStatusDegraded
		h.Message = "queue full"
	}
	return h
}
