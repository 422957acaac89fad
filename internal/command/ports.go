package command

import (
	"context"
	"time"

	"github.com/radio-control/rcpilot/internal/speech"
	"github.com/radio-control/rcpilot/internal/telemetry"
)

// AuditLogger writes audit records.
type AuditLogger interface {
	LogAction(ctx context.Context, action string, params map[string]interface{}, code string, err error, latency time.Duration)
}

// Publisher publishes telemetry events.
type Publisher interface {
	Publish(event telemetry.Event) error
}

// Speaker announces text.
type Speaker interface {
	Say(text string, priority speech.Priority)
	SetEnabled(enabled bool)
	Enabled() bool
}

// AltitudeHold is the altitude-hold target holder.
type AltitudeHold interface {
	SetTarget(metres float64) error
	Clear()
	Target() (float64, bool)
}
