package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/radio-control/rcpilot/internal/adapter"
	"github.com/radio-control/rcpilot/internal/config"
	"github.com/radio-control/rcpilot/internal/override"
	"github.com/radio-control/rcpilot/internal/stick"
	"github.com/radio-control/rcpilot/internal/telemetry"
)

// SwitchPositions are the pulse widths of the six-position flight-mode
// switch. Position 0 releases the channel.
var SwitchPositions = [7]int{0, 1165, 1295, 1425, 1555, 1685, 1815}

// Flight-mode channel parameters and their defaults per vehicle.
const (
	ParamFlightModeChannel = "FLTMODE_CH"
	ParamRoverModeChannel  = "MODE_CH"

	DefaultCopterModeChannel = 5
	DefaultPlaneModeChannel  = 8
	DefaultRoverModeChannel  = 8
)

// HoldMode is the mode hover and initquadcontrol switch to.
const HoldMode = "alt_hold"

// Result is the outcome of one command line.
type Result struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Output  []string `json:"output,omitempty"`
}

// Options configures a Dispatcher.
type Options struct {
	Envelope stick.Envelope
	Axes     stick.AxisMap
	Vehicle  string
	Timing   config.TimingConfig

	// Debug echoes every computed pulse width.
	Debug bool

	Audit   AuditLogger
	Hub     Publisher
	Speaker Speaker
	AltHold AltitudeHold
	Logger  *slog.Logger
}

// Dispatcher executes operator commands.
type Dispatcher struct {
	tx   *override.Transmitter
	link adapter.VehicleLink

	env     stick.Envelope
	axes    stick.AxisMap
	vehicle string
	timing  config.TimingConfig
	debug   bool

	audit   AuditLogger
	hub     Publisher
	speaker Speaker
	althold AltitudeHold
	logger  *slog.Logger

	commands map[string]*definition
}

// NewDispatcher wires the command surface to a transmitter and a link.
func NewDispatcher(tx *override.Transmitter, link adapter.VehicleLink, opts Options) *Dispatcher {
	if opts.Envelope == (stick.Envelope{}) {
		opts.Envelope = stick.DefaultEnvelope()
	}
	if opts.Axes == (stick.AxisMap{}) {
		opts.Axes = stick.DefaultAxisMap()
	}
	if opts.Vehicle == "" {
		opts.Vehicle = config.VehicleCopter
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	d := &Dispatcher{
		tx:      tx,
		link:    link,
		env:     opts.Envelope,
		axes:    opts.Axes,
		vehicle: opts.Vehicle,
		timing:  opts.Timing,
		debug:   opts.Debug,
		audit:   opts.Audit,
		hub:     opts.Hub,
		speaker: opts.Speaker,
		althold: opts.AltHold,
		logger:  opts.Logger.With(slog.String("component", "command")),
	}
	d.commands = d.registry()
	return d
}

// SetSpeaker attaches the speech notifier. The notifier writes through the
// console, which is built on the dispatcher.
func (d *Dispatcher) SetSpeaker(s Speaker) {
	d.speaker = s
}

// SetAltitudeHold attaches the altitude-hold controller. The controller
// pushes throttle through the dispatcher, so it is attached after both exist.
func (d *Dispatcher) SetAltitudeHold(h AltitudeHold) {
	d.althold = h
}

// Execute runs one command line. Usage errors leave every state untouched.
func (d *Dispatcher) Execute(ctx context.Context, line string) (*Result, error) {
	start := time.Now()

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return &Result{}, nil
	}

	name := strings.ToLower(fields[0])
	args := fields[1:]
	result := &Result{Command: name, Args: args}

	cmd, ok := d.commands[name]
	var err error
	switch {
	case !ok:
		err = usageError(name, "", fmt.Errorf("%w: %q, try help", ErrUnknownCommand, name))
	case len(args) < cmd.minArgs || (cmd.maxArgs >= 0 && len(args) > cmd.maxArgs):
		err = usageError(name, cmd.usage, fmt.Errorf("%w: %s takes %s", ErrInvalidArgumentCount, name, cmd.arity()))
	default:
		err = cmd.run(ctx, args, result)
	}

	d.record(ctx, name, map[string]interface{}{"args": args}, err, time.Since(start))
	d.publishCommand(result, err)

	return result, err
}

// Commands returns the command names, sorted.
func (d *Dispatcher) Commands() []string {
	names := make([]string, 0, len(d.commands))
	for name := range d.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Usage returns the usage line of a command.
func (d *Dispatcher) Usage(name string) (string, bool) {
	cmd, ok := d.commands[name]
	if !ok {
		return "", false
	}
	return cmd.usage, true
}

// SetChannel sets one channel outside the command line, with audit.
func (d *Dispatcher) SetChannel(ctx context.Context, ch int, value int) error {
	start := time.Now()
	err := d.tx.SetChannel(ctx, ch, value)
	d.record(ctx, "rc", map[string]interface{}{"channel": ch, "value": value}, err, time.Since(start))
	return err
}

// SetAll sets every channel outside the command line, with audit.
func (d *Dispatcher) SetAll(ctx context.Context, value int) error {
	start := time.Now()
	err := d.tx.SetAll(ctx, value)
	d.record(ctx, "rc", map[string]interface{}{"channel": "all", "value": value}, err, time.Since(start))
	return err
}

// SetAxis deflects one stick outside the command line, with audit.
func (d *Dispatcher) SetAxis(ctx context.Context, axis stick.Axis, percent int) error {
	start := time.Now()
	_, err := d.moveAxis(ctx, axis, percent)
	d.record(ctx, "stick", map[string]interface{}{"axis": string(axis), "percent": percent}, err, time.Since(start))
	return err
}

// Status returns the transmitter status.
func (d *Dispatcher) Status() override.Status {
	return d.tx.Status()
}

// Snapshot is the state sent to new telemetry subscribers.
func (d *Dispatcher) Snapshot() map[string]interface{} {
	snap := map[string]interface{}{
		"override": d.tx.Status(),
		"vehicle":  d.vehicle,
	}
	if d.althold != nil {
		if target, ok := d.althold.Target(); ok {
			snap["altholdTarget"] = target
		}
	}
	if d.speaker != nil {
		snap["speech"] = d.speaker.Enabled()
	}
	return snap
}

// FlightModeChannel reads the vehicle's flight-mode channel, falling back to
// the vehicle default when the link cannot supply it.
func (d *Dispatcher) FlightModeChannel(ctx context.Context) int {
	param, fallback := ParamFlightModeChannel, DefaultCopterModeChannel
	switch d.vehicle {
	case config.VehiclePlane:
		fallback = DefaultPlaneModeChannel
	case config.VehicleRover:
		param, fallback = ParamRoverModeChannel, DefaultRoverModeChannel
	}

	if d.link == nil {
		return fallback
	}

	if d.timing.ParamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timing.ParamTimeout)
		defer cancel()
	}

	v, err := d.link.GetParam(ctx, param)
	if err != nil {
		if !errors.Is(err, adapter.ErrUnsupported) {
			d.logger.Warn("flight mode channel unavailable, using default",
				slog.String("param", param),
				slog.Int("default", fallback),
				slog.String("error", err.Error()))
		}
		return fallback
	}

	ch := int(v)
	if float64(ch) != v || override.ValidateChannel(ch) != nil {
		d.logger.Warn("flight mode channel out of range, using default",
			slog.String("param", param),
			slog.Float64("value", v),
			slog.Int("default", fallback))
		return fallback
	}
	return ch
}

// moveAxis maps percent onto the axis channel. It returns the pulse width.
func (d *Dispatcher) moveAxis(ctx context.Context, axis stick.Axis, percent int) (int, error) {
	if err := stick.ValidatePercent(percent); err != nil {
		return 0, err
	}
	ch, err := d.axes.Channel(axis)
	if err != nil {
		return 0, err
	}

	value := stick.MapPercent(percent, d.env)
	if err := d.tx.SetChannel(ctx, ch, value); err != nil {
		return 0, err
	}
	return value, nil
}

// setMode asks the link for a mode change. A link without mode support is
// reported in the output rather than failing the command.
func (d *Dispatcher) setMode(ctx context.Context, mode string, result *Result) error {
	if d.link == nil {
		return fmt.Errorf("%w: no vehicle link", adapter.ErrUnavailable)
	}

	if d.timing.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timing.CommandTimeout)
		defer cancel()
	}

	err := d.link.SetMode(ctx, mode)
	switch {
	case err == nil:
		d.publish(telemetry.EventMode, map[string]interface{}{"mode": mode})
		result.Output = append(result.Output, "Mode "+mode)
		return nil
	case errors.Is(err, adapter.ErrUnsupported):
		result.Output = append(result.Output, fmt.Sprintf("Mode %s not supported by this link", mode))
		return nil
	}

	d.publishFault(err, "mode change to "+mode+" failed")
	return err
}

func (d *Dispatcher) record(ctx context.Context, action string, params map[string]interface{}, err error, latency time.Duration) {
	if err != nil && !IsUsage(err) {
		d.logger.Warn("command failed", slog.String("action", action), slog.String("error", err.Error()))
	}
	if d.audit != nil {
		d.audit.LogAction(ctx, action, params, Code(err), err, latency)
	}
}

func (d *Dispatcher) publishCommand(result *Result, err error) {
	data := map[string]interface{}{
		"command": result.Command,
		"args":    result.Args,
		"code":    Code(err),
	}
	if err != nil {
		data["message"] = err.Error()
	}
	d.publish(telemetry.EventCommand, data)
}

func (d *Dispatcher) publishFault(err error, message string) {
	d.publish(telemetry.EventFault, map[string]interface{}{
		"code":    Code(err),
		"message": message,
		"error":   err.Error(),
	})
}

func (d *Dispatcher) publish(eventType string, data map[string]interface{}) {
	if d.hub == nil {
		return
	}
	if err := d.hub.Publish(telemetry.Event{Type: eventType, Data: data}); err != nil {
		d.logger.Debug("telemetry publish failed", slog.String("type", eventType), slog.String("error", err.Error()))
	}
}

// parseInt parses a decimal integer argument. Anything else is a range error.
func parseInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidRange, s)
	}
	return n, nil
}
