// Package override holds the RC override table and re-broadcasts it at a
// fixed period so a link that drops a single update still converges on the
// last commanded values.
package override

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/radio-control/rcpilot/internal/stick"
)

const (
	// NumChannels is the size of the override table.
	NumChannels = 8

	// Release is the command-level value meaning "stop overriding this channel".
	Release = -1

	// WireRelease is the on-the-wire form of Release.
	WireRelease uint16 = 65535

	// DefaultResends is the number of forced re-sends after every change.
	DefaultResends = 10

	// LivePeriod and SimulatedPeriod are the re-send periods for live and
	// simulated links.
	LivePeriod      = time.Second
	SimulatedPeriod = time.Second / 20
)

var (
	// ErrInvalidChannel indicates a channel outside 1..8.
	ErrInvalidChannel = errors.New("INVALID_CHANNEL")

	// ErrInvalidRange indicates a value that is neither -1 nor in [0, 65535].
	ErrInvalidRange = stick.ErrInvalidRange
)

// Frame is one override frame: 8 pulse widths, index = channel-1.
type Frame [NumChannels]uint16

// Sender delivers frames to a vehicle link. Implementations must not block;
// SendOverride is called with the transmitter lock held.
type Sender interface {
	SendOverride(ctx context.Context, frame Frame) error
}

// State is the transmitter state.
type State int

const (
	Idle State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Status is a point-in-time view of the transmitter.
type Status struct {
	Table       Frame  `json:"table"`
	LastSent    Frame  `json:"lastSent"`
	Counter     int    `json:"counter"`
	State       string `json:"state"`
	Sent        uint64 `json:"sent"`
	SendErrors  uint64 `json:"sendErrors"`
	PeriodMilli int64  `json:"periodMs"`
}

// Options configures a Transmitter.
type Options struct {
	// Period between ticks in Run. Defaults to LivePeriod.
	Period time.Duration

	// Resends is the forced re-send count set on every change. Defaults to
	// DefaultResends.
	Resends int

	// ResendWhileActive keeps transmitting on every tick while any channel is
	// non-zero, even when nothing changed and the counter is exhausted.
	ResendWhileActive bool

	// OnTransmit, if set, is called after every transmission outside the lock.
	OnTransmit func(frame Frame, err error)

	Logger *slog.Logger
}

// Transmitter owns the override table.
type Transmitter struct {
	mu      sync.Mutex
	link    Sender
	table   Frame
	last    Frame
	counter int

	sent       uint64
	sendErrors uint64

	period            time.Duration
	resends           int
	resendWhileActive bool
	onTransmit        func(Frame, error)
	logger            *slog.Logger
}

// NewTransmitter creates a transmitter in the Idle state with all channels zero.
func NewTransmitter(link Sender, opts Options) *Transmitter {
	if opts.Period <= 0 {
		opts.Period = LivePeriod
	}
	if opts.Resends <= 0 {
		opts.Resends = DefaultResends
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Transmitter{
		link:              link,
		period:            opts.Period,
		resends:           opts.Resends,
		resendWhileActive: opts.ResendWhileActive,
		onTransmit:        opts.OnTransmit,
		logger:            opts.Logger.With(slog.String("component", "override")),
	}
}

// WireValue translates a command-level value into its wire form.
func WireValue(value int) (uint16, error) {
	if value == Release {
		return WireRelease, nil
	}
	if value < 0 || value > int(WireRelease) {
		return 0, fmt.Errorf("%w: value %d must be -1 or in [0, %d]", ErrInvalidRange, value, WireRelease)
	}
	return uint16(value), nil
}

// ValidateChannel rejects channels outside 1..8.
func ValidateChannel(ch int) error {
	if ch < 1 || ch > NumChannels {
		return fmt.Errorf("%w: channel %d must be between 1 and %d", ErrInvalidChannel, ch, NumChannels)
	}
	return nil
}

// SetChannel stores value on channel ch (1-based) and transmits immediately.
// The table is left untouched when ch or value is invalid.
func (t *Transmitter) SetChannel(ctx context.Context, ch int, value int) error {
	if err := ValidateChannel(ch); err != nil {
		return err
	}
	wire, err := WireValue(value)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.table[ch-1] = wire
	t.counter = t.resends
	frame, sendErr := t.transmitLocked(ctx)
	t.mu.Unlock()

	t.notify(frame, sendErr)
	return nil
}

// SetAll stores value on every channel in one update and transmits once.
func (t *Transmitter) SetAll(ctx context.Context, value int) error {
	wire, err := WireValue(value)
	if err != nil {
		return err
	}

	t.mu.Lock()
	for i := range t.table {
		t.table[i] = wire
	}
	t.counter = t.resends
	frame, sendErr := t.transmitLocked(ctx)
	t.mu.Unlock()

	t.notify(frame, sendErr)
	return nil
}

// Tick transmits the table when it differs from the last transmitted frame
// or while forced re-sends remain, then consumes one forced re-send. It
// reports whether a frame was transmitted.
func (t *Transmitter) Tick(ctx context.Context) bool {
	t.mu.Lock()

	force := t.counter > 0 || t.table != t.last
	if t.resendWhileActive && t.table != (Frame{}) {
		force = true
	}
	if !force {
		t.mu.Unlock()
		return false
	}

	frame, sendErr := t.transmitLocked(ctx)
	if t.counter > 0 {
		t.counter--
	}
	t.mu.Unlock()

	t.notify(frame, sendErr)
	return true
}

// Run ticks every period until ctx is cancelled.
func (t *Transmitter) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.period)
	defer ticker.Stop()

	t.logger.Info("override transmitter started", slog.Duration("period", t.period))
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("override transmitter stopped")
			return nil
		case <-ticker.C:
			t.Tick(ctx)
		}
	}
}

// Table returns a copy of the current override table.
func (t *Transmitter) Table() Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.table
}

// State reports Active while any channel is non-zero or re-sends are pending.
func (t *Transmitter) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

// Status returns a snapshot of the transmitter.
func (t *Transmitter) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Status{
		Table:       t.table,
		LastSent:    t.last,
		Counter:     t.counter,
		State:       t.stateLocked().String(),
		Sent:        t.sent,
		SendErrors:  t.sendErrors,
		PeriodMilli: t.period.Milliseconds(),
	}
}

// Period returns the tick period used by Run.
func (t *Transmitter) Period() time.Duration {
	return t.period
}

func (t *Transmitter) stateLocked() State {
	if t.counter > 0 || t.table != (Frame{}) {
		return Active
	}
	return Idle
}

// transmitLocked hands the table to the link and records it as the last
// transmitted frame. Caller must hold t.mu.
func (t *Transmitter) transmitLocked(ctx context.Context) (Frame, error) {
	frame := t.table
	t.last = frame

	if t.link == nil {
		return frame, nil
	}

	err := t.link.SendOverride(ctx, frame)
	if err != nil {
		t.sendErrors++
		t.logger.Warn("override send failed", slog.Any("frame", frame), slog.String("error", err.Error()))
		return frame, err
	}
	t.sent++
	t.logger.Debug("override sent", slog.Any("frame", frame), slog.Int("counter", t.counter))
	return frame, nil
}

func (t *Transmitter) notify(frame Frame, err error) {
	if t.onTransmit != nil {
		t.onTransmit(frame, err)
	}
}
