package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/radio-control/rcpilot/internal/override"
	"github.com/radio-control/rcpilot/internal/speech"
	"github.com/radio-control/rcpilot/internal/stick"
	"github.com/radio-control/rcpilot/internal/telemetry"
)

type runFunc func(ctx context.Context, args []string, result *Result) error

type definition struct {
	name    string
	usage   string
	help    string
	minArgs int
	maxArgs int // -1 for no limit
	run     runFunc
}

func (s *definition) arity() string {
	switch {
	case s.maxArgs < 0:
		return fmt.Sprintf("at least %d argument(s)", s.minArgs)
	case s.minArgs == s.maxArgs:
		return fmt.Sprintf("exactly %d argument(s)", s.minArgs)
	}
	return fmt.Sprintf("%d to %d arguments", s.minArgs, s.maxArgs)
}

const percentUsage = "<percent value (between -100 and 100)>"

func (d *Dispatcher) registry() map[string]*definition {
	defs := []*definition{
		{
			name:    "rc",
			usage:   "rc <1-8|all> <pwm value|-1>",
			help:    "Set an RC override channel; -1 releases it",
			minArgs: 2,
			maxArgs: 2,
			run:     d.cmdRC,
		},
		{
			name:    "switch",
			usage:   "switch <0-6>",
			help:    "Move the flight-mode switch; 0 releases it",
			minArgs: 1,
			maxArgs: 1,
			run:     d.cmdSwitch,
		},
		d.axisCommand("movez", stick.Pitch, "Move forwards or backwards"),
		d.axisCommand("strafe", stick.Roll, "Strafe left or right"),
		d.axisCommand("movey", stick.Throttle, "Move up or down"),
		d.axisCommand("yaw", stick.Yaw, "Yaw left or right"),
		{
			name:    "bend",
			usage:   "bend <percent yaw> <percent pitch> (between -100 and 100)",
			help:    "Move the vehicle in a curve",
			minArgs: 2,
			maxArgs: 2,
			run:     d.cmdBend,
		},
		{
			name:  "hover",
			usage: "hover",
			help:  "Centre all sticks and switch to alt_hold",
			run:   d.cmdHover,
		},
		{
			name:  "initquadcontrol",
			usage: "initquadcontrol",
			help:  "Centre the throttle and switch to alt_hold",
			run:   d.cmdInit,
		},
		{
			name:    "althold",
			usage:   "althold <metres|off>",
			help:    "Hold an altitude with throttle corrections",
			minArgs: 1,
			maxArgs: 1,
			run:     d.cmdAltHold,
		},
		{
			name:    "mode",
			usage:   "mode <name>",
			help:    "Change the flight mode",
			minArgs: 1,
			maxArgs: 1,
			run:     d.cmdMode,
		},
		{
			name:    "say",
			usage:   "say <text>",
			help:    "Announce text",
			minArgs: 1,
			maxArgs: -1,
			run:     d.cmdSay,
		},
		{
			name:    "speech",
			usage:   "speech <on|off>",
			help:    "Enable or disable spoken announcements",
			minArgs: 1,
			maxArgs: 1,
			run:     d.cmdSpeech,
		},
		{
			name:  "status",
			usage: "status",
			help:  "Show the override table",
			run:   d.cmdStatus,
		},
		{
			name:  "help",
			usage: "help",
			help:  "List commands",
			run:   d.cmdHelp,
		},
	}

	m := make(map[string]*definition, len(defs))
	for _, s := range defs {
		m[s.name] = s
	}
	return m
}

func (d *Dispatcher) axisCommand(name string, axis stick.Axis, help string) *definition {
	usage := name + " " + percentUsage
	return &definition{
		name:    name,
		usage:   usage,
		help:    help,
		minArgs: 1,
		maxArgs: 1,
		run: func(ctx context.Context, args []string, result *Result) error {
			percent, err := parseInt(args[0])
			if err == nil {
				err = stick.ValidatePercent(percent)
			}
			if err != nil {
				return usageError(name, usage, err)
			}
			return d.applyAxis(ctx, axis, percent, result)
		},
	}
}

func (d *Dispatcher) applyAxis(ctx context.Context, axis stick.Axis, percent int, result *Result) error {
	value, err := d.moveAxis(ctx, axis, percent)
	if err != nil {
		return err
	}
	if d.debug {
		ch, _ := d.axes.Channel(axis)
		result.Output = append(result.Output,
			fmt.Sprintf("%s at %d%% with value %d on channel %d", axis, percent, value, ch))
	}
	return nil
}

func (d *Dispatcher) cmdRC(ctx context.Context, args []string, result *Result) error {
	const usage = "rc <1-8|all> <pwm value|-1>"

	value, err := parseInt(args[1])
	if err == nil {
		_, err = override.WireValue(value)
	}
	if err != nil {
		return usageError("rc", usage, err)
	}

	if strings.EqualFold(args[0], "all") {
		return d.tx.SetAll(ctx, value)
	}

	ch, err := strconv.Atoi(args[0])
	if err != nil {
		return usageError("rc", usage, fmt.Errorf("%w: %q", ErrInvalidChannel, args[0]))
	}
	if err := override.ValidateChannel(ch); err != nil {
		return usageError("rc", usage, err)
	}
	return d.tx.SetChannel(ctx, ch, value)
}

func (d *Dispatcher) cmdSwitch(ctx context.Context, args []string, result *Result) error {
	const usage = "switch <0-6>"

	pos, err := parseInt(args[0])
	if err == nil && (pos < 0 || pos >= len(SwitchPositions)) {
		err = fmt.Errorf("%w: switch position %d not in 0..%d", ErrInvalidRange, pos, len(SwitchPositions)-1)
	}
	if err != nil {
		return usageError("switch", usage, err)
	}

	ch := d.FlightModeChannel(ctx)
	value := SwitchPositions[pos]
	if err := d.tx.SetChannel(ctx, ch, value); err != nil {
		return err
	}
	if pos == 0 {
		result.Output = append(result.Output, fmt.Sprintf("Flight mode switch on channel %d disabled", ch))
		return nil
	}
	result.Output = append(result.Output, fmt.Sprintf("Flight mode switch at position %d: %d on channel %d", pos, value, ch))
	return nil
}

func (d *Dispatcher) cmdBend(ctx context.Context, args []string, result *Result) error {
	const usage = "bend <percent yaw> <percent pitch> (between -100 and 100)"

	yaw, err := parseInt(args[0])
	if err == nil {
		err = stick.ValidatePercent(yaw)
	}
	if err != nil {
		return usageError("bend", usage, err)
	}
	pitch, err := parseInt(args[1])
	if err == nil {
		err = stick.ValidatePercent(pitch)
	}
	if err != nil {
		return usageError("bend", usage, err)
	}

	if err := d.applyAxis(ctx, stick.Yaw, yaw, result); err != nil {
		return err
	}
	return d.applyAxis(ctx, stick.Pitch, pitch, result)
}

func (d *Dispatcher) cmdHover(ctx context.Context, args []string, result *Result) error {
	result.Output = append(result.Output, "Resetting vehicle to stand still in "+HoldMode+" mode")
	for _, axis := range []stick.Axis{stick.Roll, stick.Pitch, stick.Throttle, stick.Yaw} {
		if err := d.applyAxis(ctx, axis, 0, result); err != nil {
			return err
		}
	}
	if err := d.setMode(ctx, HoldMode, result); err != nil {
		return err
	}
	result.Output = append(result.Output, "Done")
	return nil
}

func (d *Dispatcher) cmdInit(ctx context.Context, args []string, result *Result) error {
	if err := d.applyAxis(ctx, stick.Throttle, 0, result); err != nil {
		return err
	}
	if err := d.setMode(ctx, HoldMode, result); err != nil {
		return err
	}
	result.Output = append(result.Output, "Quadcontrol initialization done")
	return nil
}

func (d *Dispatcher) cmdAltHold(ctx context.Context, args []string, result *Result) error {
	const usage = "althold <metres|off>"

	if d.althold == nil {
		return usageError("althold", usage, fmt.Errorf("%w: altitude hold not configured", ErrUnknownCommand))
	}

	if strings.EqualFold(args[0], "off") {
		d.althold.Clear()
		d.publish(telemetry.EventAltHold, map[string]interface{}{"active": false})
		result.Output = append(result.Output, "Altitude hold off")
		return nil
	}

	metres, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return usageError("althold", usage, fmt.Errorf("%w: %q is not a number", ErrInvalidRange, args[0]))
	}
	if err := d.althold.SetTarget(metres); err != nil {
		if IsRange(err) {
			return usageError("althold", usage, err)
		}
		return err
	}

	d.publish(telemetry.EventAltHold, map[string]interface{}{"active": true, "target": metres})
	result.Output = append(result.Output, fmt.Sprintf("Holding %.1f m", metres))
	return nil
}

func (d *Dispatcher) cmdMode(ctx context.Context, args []string, result *Result) error {
	return d.setMode(ctx, strings.ToLower(args[0]), result)
}

func (d *Dispatcher) cmdSay(ctx context.Context, args []string, result *Result) error {
	text := strings.Join(args, " ")
	if d.speaker == nil {
		result.Output = append(result.Output, text)
		return nil
	}
	d.speaker.Say(text, speech.Important)
	return nil
}

func (d *Dispatcher) cmdSpeech(ctx context.Context, args []string, result *Result) error {
	const usage = "speech <on|off>"

	var enabled bool
	switch strings.ToLower(args[0]) {
	case "on", "1", "true":
		enabled = true
	case "off", "0", "false":
	default:
		return usageError("speech", usage, fmt.Errorf("%w: %q", ErrInvalidRange, args[0]))
	}

	if d.speaker == nil {
		return usageError("speech", usage, fmt.Errorf("%w: speech not configured", ErrUnknownCommand))
	}
	d.speaker.SetEnabled(enabled)
	result.Output = append(result.Output, fmt.Sprintf("speech %s", onOff(enabled)))
	return nil
}

func (d *Dispatcher) cmdStatus(ctx context.Context, args []string, result *Result) error {
	st := d.tx.Status()

	result.Output = append(result.Output,
		fmt.Sprintf("override: %v", st.Table),
		fmt.Sprintf("state: %s, forced re-sends left: %d", st.State, st.Counter),
		fmt.Sprintf("sent: %d, send errors: %d, period: %dms", st.Sent, st.SendErrors, st.PeriodMilli),
	)
	if d.althold != nil {
		if target, ok := d.althold.Target(); ok {
			result.Output = append(result.Output, fmt.Sprintf("althold: %.1f m", target))
		} else {
			result.Output = append(result.Output, "althold: off")
		}
	}
	if d.speaker != nil {
		result.Output = append(result.Output, "speech: "+onOff(d.speaker.Enabled()))
	}
	return nil
}

func (d *Dispatcher) cmdHelp(ctx context.Context, args []string, result *Result) error {
	for _, name := range d.Commands() {
		s := d.commands[name]
		result.Output = append(result.Output, fmt.Sprintf("%-16s %s", s.name, s.help))
		result.Output = append(result.Output, fmt.Sprintf("%-16s   %s", "", s.usage))
	}
	return nil
}

// IsRange reports whether err is a range error.
func IsRange(err error) bool {
	return Code(err) == ErrInvalidRange.Error()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
