package component

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kbukum/depguard/observability"
)

type mockComponent struct {
	name       string
	startErr   error
	stopErr    error
	status     observability.HealthStatus
	startOrder *[]string
	stopOrder  *[]string
}

func (m *mockComponent) Name() string { return m.name }
func (m *mockComponent) Start(ctx context.Context) error {
	if m.startOrder != nil {
		*m.startOrder = append(*m.startOrder, m.name)
	}
	return m.startErr
}
func (m *mockComponent) Stop(ctx context.Context) error {
	if m.stopOrder != nil {
		*m.stopOrder = append(*m.stopOrder, m.name)
	}
	return m.stopErr
}
func (m *mockComponent) Health(ctx context.Context) observability.Health {
	status := m.status
	if status == "" {
		status = observability.HealthStatusUp
	}
	return observability.Health{Name: m.name, Status: status}
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Register(&mockComponent{name: "admin-server"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register(&mockComponent{name: "admin-server"}); err == nil {
		t.Error("expected error for duplicate registration")
	}
}

func TestGet(t *testing.T) {
	r := NewRegistry(nil)
	_ = r.Register(&mockComponent{name: "telemetry"})

	if got := r.Get("telemetry"); got == nil || got.Name() != "telemetry" {
		t.Fatalf("expected registered component, got %v", got)
	}
	if r.Get("missing") != nil {
		t.Error("expected nil for unregistered component")
	}
	if len(r.All()) != 1 {
		t.Errorf("expected 1 component, got %d", len(r.All()))
	}
}

func TestStartAllOrder(t *testing.T) {
	r := NewRegistry(nil)
	var order []string
	_ = r.Register(&mockComponent{name: "telemetry", startOrder: &order})
	_ = r.Register(&mockComponent{name: "admin-server", startOrder: &order})

	if err := r.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll failed: %v", err)
	}
	if len(order) != 2 || order[0] != "telemetry" || order[1] != "admin-server" {
		t.Errorf("expected start order [telemetry admin-server], got %v", order)
	}
}

func TestStartAllErrorLeavesEarlierStarted(t *testing.T) {
	r := NewRegistry(nil)
	var stops []string
	_ = r.Register(&mockComponent{name: "telemetry", stopOrder: &stops})
	_ = r.Register(&mockComponent{name: "admin-server", startErr: fmt.Errorf("address in use"), stopOrder: &stops})

	if err := r.StartAll(context.Background()); err == nil {
		t.Fatal("expected error from StartAll")
	}
	if err := r.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll failed: %v", err)
	}
	if len(stops) != 1 || stops[0] != "telemetry" {
		t.Errorf("expected only telemetry stopped, got %v", stops)
	}
}

func TestStopAllReverseOrder(t *testing.T) {
	r := NewRegistry(nil)
	var order []string
	for _, name := range []string{"telemetry", "monitor", "admin-server"} {
		_ = r.Register(&mockComponent{name: name, stopOrder: &order})
	}

	_ = r.StartAll(context.Background())
	if err := r.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll failed: %v", err)
	}
	want := []string{"admin-server", "monitor", "telemetry"}
	for i, w := range want {
		if i >= len(order) || order[i] != w {
			t.Fatalf("expected reverse stop order %v, got %v", want, order)
		}
	}
}

func TestStopAllJoinsErrors(t *testing.T) {
	r := NewRegistry(nil)
	errA := errors.New("flush failed")
	errB := errors.New("shutdown timed out")
	_ = r.Register(&mockComponent{name: "a", stopErr: errA})
	_ = r.Register(&mockComponent{name: "b", stopErr: errB})
	_ = r.StartAll(context.Background())

	err := r.StopAll(context.Background())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("expected both stop errors, got %v", err)
	}
}

func TestHealthAll(t *testing.T) {
	r := NewRegistry(nil)
	_ = r.Register(&mockComponent{name: "admin-server"})
	_ = r.Register(&mockComponent{name: "telemetry", status: observability.HealthStatusDown})

	results := r.HealthAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Status != observability.HealthStatusUp {
		t.Errorf("expected admin-server up, got %s", results[0].Status)
	}
	if results[1].Status != observability.HealthStatusDown {
		t.Errorf("expected telemetry down, got %s", results[1].Status)
	}
}
