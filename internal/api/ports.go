package api

import (
	"context"
	"net/http"

	"github.com/radio-control/rcpilot/internal/command"
	"github.com/radio-control/rcpilot/internal/override"
	"github.com/radio-control/rcpilot/internal/stick"
	"github.com/radio-control/rcpilot/internal/telemetry"
)

// ControlPort is what the API needs from the command dispatcher.
type ControlPort interface {
	SetChannel(ctx context.Context, ch int, value int) error
	SetAll(ctx context.Context, value int) error
	SetAxis(ctx context.Context, axis stick.Axis, percent int) error
	Execute(ctx context.Context, line string) (*command.Result, error)
	Status() override.Status
}

// TelemetryPort is what the API needs from the telemetry hub.
type TelemetryPort interface {
	Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error
	ServeWebSocket(w http.ResponseWriter, r *http.Request) error
	ClientCount() int
}

var _ ControlPort = (*command.Dispatcher)(nil)
var _ TelemetryPort = (*telemetry.Hub)(nil)
