package main

import (
	"context"
	"sync"
	"time"

	"github.com/kbukum/depguard/guard"
	"github.com/kbukum/depguard/observability"
)

// monitor runs Orchestrator.Monitor for the lifetime of the application.
type monitor struct {
	orch     *guard.Orchestrator
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newMonitor(orch *guard.Orchestrator, interval time.Duration) *monitor {
	return &monitor{orch: orch, interval: interval}
}

func (m *monitor) Name() string { return "stats-monitor" }

func (m *monitor) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil || m.interval <= 0 {
		return nil
	}
	// The start context is bounded by startup, not by the application.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.cancel, m.done = cancel, done
	go func() {
		defer close(done)
		m.orch.Monitor(ctx, m.interval)
	}()
	return nil
}

func (m *monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *monitor) Health(_ context.Context) observability.Health {
	h := observability.Health{Name: m.Name(), Status: observability.HealthStatusUp}
	if m.interval <= 0 {
		h.Message = "disabled"
	}
	return h
}
