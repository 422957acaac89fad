// Package fake provides an in-memory vehicle link for tests and dry runs.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/radio-control/rcpilot/internal/adapter"
	"github.com/radio-control/rcpilot/internal/override"
)

// DefaultModes are the flight modes the fake accepts.
var DefaultModes = []string{"stabilize", "alt_hold", "loiter", "rtl", "land", "guided", "auto"}

// Link records everything sent to it.
type Link struct {
	adapter.LinkBase

	mu       sync.Mutex
	frames   []override.Frame
	params   map[string]float64
	modes    map[string]bool
	mode     string
	altitude float64
	closed   bool

	// Error simulation
	sendErr  error
	paramErr error
	modeErr  error
}

// NewLink creates a fake link with ArduCopter-like parameters.
func NewLink(name string) *Link {
	l := &Link{
		LinkBase: adapter.LinkBase{
			Name: name,
			Kind: "fake",
		},
		params: map[string]float64{
			"FLTMODE_CH": 5,
		},
		modes: make(map[string]bool),
		mode:  "stabilize",
	}
	for _, m := range DefaultModes {
		l.modes[m] = true
	}
	l.SetStatus(adapter.StatusOnline)
	return l
}

// SendOverride records the frame.
func (l *Link) SendOverride(ctx context.Context, frame override.Frame) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("%w: link closed", adapter.ErrUnavailable)
	}
	if l.sendErr != nil {
		return adapter.NormalizeLinkError(l.sendErr, frame)
	}
	l.frames = append(l.frames, frame)
	return nil
}

// GetParam returns a configured parameter.
func (l *Link) GetParam(ctx context.Context, name string) (float64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.paramErr != nil {
		return 0, adapter.NormalizeLinkError(l.paramErr, name)
	}
	v, ok := l.params[name]
	if !ok {
		return 0, fmt.Errorf("%w: unknown parameter %s", adapter.ErrInvalidRange, name)
	}
	return v, nil
}

// SetMode records the mode if it is known.
func (l *Link) SetMode(ctx context.Context, mode string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.modeErr != nil {
		return adapter.NormalizeLinkError(l.modeErr, mode)
	}
	if !l.modes[mode] {
		return fmt.Errorf("%w: unknown mode %s", adapter.ErrInvalidRange, mode)
	}
	l.mode = mode
	return nil
}

// Altitude returns the simulated altitude.
func (l *Link) Altitude(ctx context.Context) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.altitude, nil
}

// Close marks the link closed.
func (l *Link) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.SetStatus(adapter.StatusClosed)
	return nil
}

// Frames returns a copy of the recorded frames.
func (l *Link) Frames() []override.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]override.Frame(nil), l.frames...)
}

// LastFrame returns the most recent frame and whether one was sent.
func (l *Link) LastFrame() (override.Frame, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.frames) == 0 {
		return override.Frame{}, false
	}
	return l.frames[len(l.frames)-1], true
}

// Mode returns the last mode set.
func (l *Link) Mode() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

// SetParam sets a parameter value.
func (l *Link) SetParam(name string, value float64) {
	l.mu.Lock()
	l.params[name] = value
	l.mu.Unlock()
}

// DeleteParam removes a parameter so reads fail.
func (l *Link) DeleteParam(name string) {
	l.mu.Lock()
	delete(l.params, name)
	l.mu.Unlock()
}

// SetAltitude sets the simulated altitude.
func (l *Link) SetAltitude(metres float64) {
	l.mu.Lock()
	l.altitude = metres
	l.mu.Unlock()
}

// SimulateSendError makes SendOverride fail with err until cleared with nil.
func (l *Link) SimulateSendError(err error) {
	l.mu.Lock()
	l.sendErr = err
	l.mu.Unlock()
}

// SimulateParamError makes GetParam fail with err until cleared with nil.
func (l *Link) SimulateParamError(err error) {
	l.mu.Lock()
	l.paramErr = err
	l.mu.Unlock()
}

// SimulateModeError makes SetMode fail with err until cleared with nil.
func (l *Link) SimulateModeError(err error) {
	l.mu.Lock()
	l.modeErr = err
	l.mu.Unlock()
}
