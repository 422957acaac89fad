package adapter

import (
	"context"
	"sync"

	"github.com/radio-control/rcpilot/internal/override"
)

// VehicleLink is the narrow capability a vehicle link exposes.
type VehicleLink interface {
	// SendOverride queues one override frame. It must not block.
	SendOverride(ctx context.Context, frame override.Frame) error

	// GetParam reads a named vehicle parameter.
	GetParam(ctx context.Context, name string) (float64, error)

	// SetMode asks the vehicle to switch to a named flight mode.
	SetMode(ctx context.Context, mode string) error

	// Close releases the link.
	Close() error
}

// AltitudeSource is implemented by links that report altitude in metres.
type AltitudeSource interface {
	Altitude(ctx context.Context) (float64, error)
}

// Link status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
	StatusClosed  = "closed"
)

// LinkBase provides common functionality for link implementations.
type LinkBase struct {
	mu sync.RWMutex

	// Name identifies the link in logs and telemetry
	Name string

	// Kind is "sitl", "mavlink" or "fake"
	Kind string

	status string
}

// GetName returns the link name.
func (b *LinkBase) GetName() string {
	return b.Name
}

// GetKind returns the link kind.
func (b *LinkBase) GetKind() string {
	return b.Kind
}

// GetStatus returns the link status.
func (b *LinkBase) GetStatus() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.status == "" {
		return StatusOffline
	}
	return b.status
}

// SetStatus updates the link status.
func (b *LinkBase) SetStatus(status string) {
	b.mu.Lock()
	b.status = status
	b.mu.Unlock()
}
