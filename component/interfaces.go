package component

import (
	"context"

	"github.com/kbukum/depguard/observability"
)

// Component is a lifecycle-managed part of a guard deployment: the admin
// server, telemetry exporters, the stats monitor.
type Component interface {
	// Name returns the unique name of the component for registration.
	Name() string

	// Start initializes and starts the component.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the component and releases resources.
	Stop(ctx context.Context) error

	// Health returns the current health of the component.
	Health(ctx context.Context) observability.Health
}
