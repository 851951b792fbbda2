package endpoint

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kbukum/depguard/guard"
	"github.com/kbukum/depguard/resilience"
)

const namespace = "guard"

// Collector exports orchestrator snapshots as Prometheus metrics. Values
// are read at scrape time, so nothing is recorded on the call path.
type Collector struct {
	orch *guard.Orchestrator

	active       *prometheus.Desc
	queued       *prometheus.Desc
	maxActive    *prometheus.Desc
	maxQueued    *prometheus.Desc
	calls        *prometheus.Desc
	avgExecution *prometheus.Desc
	breakerState *prometheus.Desc
	breakerFails *prometheus.Desc
}

// NewCollector creates a collector over orch.
func NewCollector(orch *guard.Orchestrator) *Collector {
	resource := []string{"resource"}
	return &Collector{
		orch: orch,
		active: prometheus.NewDesc(prometheus.BuildFQName(namespace, "bulkhead", "active_calls"),
			"Calls holding a bulkhead slot", resource, nil),
		queued: prometheus.NewDesc(prometheus.BuildFQName(namespace, "bulkhead", "queued_calls"),
			"Calls waiting for a bulkhead slot", resource, nil),
		maxActive: prometheus.NewDesc(prometheus.BuildFQName(namespace, "bulkhead", "max_concurrent_calls"),
			"Configured bulkhead slots", resource, nil),
		maxQueued: prometheus.NewDesc(prometheus.BuildFQName(namespace, "bulkhead", "max_queue_size"),
			"Configured bulkhead queue size", resource, nil),
		calls: prometheus.NewDesc(prometheus.BuildFQName(namespace, "bulkhead", "calls_total"),
			"Bulkhead calls by result", []string{"resource", "result"}, nil),
		avgExecution: prometheus.NewDesc(prometheus.BuildFQName(namespace, "bulkhead", "average_execution_seconds"),
			"Rolling average execution time of admitted calls", resource, nil),
		breakerState: prometheus.NewDesc(prometheus.BuildFQName(namespace, "circuit_breaker", "state"),
			"Circuit breaker state: 0 closed, 1 open, 2 half-open", resource, nil),
		breakerFails: prometheus.NewDesc(prometheus.BuildFQName(namespace, "circuit_breaker", "failures"),
			"Consecutive failures counted by the breaker", resource, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.active
	ch <- c.queued
	ch <- c.maxActive
	ch <- c.maxQueued
	ch <- c.calls
	ch <- c.avgExecution
	ch <- c.breakerState
	ch <- c.breakerFails
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.orch.Stats()
	for _, b := range stats.Bulkheads {
		ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(b.ActiveCalls), b.Name)
		ch <- prometheus.MustNewConstMetric(c.queued, prometheus.GaugeValue, float64(b.QueuedCalls), b.Name)
		ch <- prometheus.MustNewConstMetric(c.maxActive, prometheus.GaugeValue, float64(b.MaxConcurrentCalls), b.Name)
		ch <- prometheus.MustNewConstMetric(c.maxQueued, prometheus.GaugeValue, float64(b.MaxQueueSize), b.Name)
		ch <- prometheus.MustNewConstMetric(c.calls, prometheus.CounterValue, float64(b.CompletedCalls), b.Name, "completed")
		ch <- prometheus.MustNewConstMetric(c.calls, prometheus.CounterValue, float64(b.FailedCalls), b.Name, "failed")
		ch <- prometheus.MustNewConstMetric(c.calls, prometheus.CounterValue, float64(b.RejectedCalls), b.Name, "rejected")
		ch <- prometheus.MustNewConstMetric(c.avgExecution, prometheus.GaugeValue, b.AverageExecutionTime.Seconds(), b.Name)
	}
	for _, cb := range stats.Breakers {
		ch <- prometheus.MustNewConstMetric(c.breakerState, prometheus.GaugeValue, stateValue(cb.State), cb.Name)
		ch <- prometheus.MustNewConstMetric(c.breakerFails, prometheus.GaugeValue, float64(cb.FailureCount), cb.Name)
	}
}

func stateValue(s resilience.State) float64 {
	switch s {
	case resilience.StateOpen:
		return 1
	case resilience.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
