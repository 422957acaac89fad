package stick

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRange indicates a percentage outside [-100, 100].
var ErrInvalidRange = errors.New("INVALID_RANGE")

// ErrUnknownAxis indicates an axis name that is not roll, pitch, throttle or yaw.
var ErrUnknownAxis = errors.New("UNKNOWN_AXIS")

// Percentage bounds accepted by the command surface.
const (
	MinPercent = -100
	MaxPercent = 100
)

// Envelope is the {min, mid, max} pulse-width triple of a stick channel.
type Envelope struct {
	Min int `yaml:"min" json:"min"`
	Mid int `yaml:"mid" json:"mid"`
	Max int `yaml:"max" json:"max"`
}

// DefaultEnvelope returns the 800/1500/2200 envelope.
func DefaultEnvelope() Envelope {
	return Envelope{Min: 800, Mid: 1500, Max: 2200}
}

// Validate checks that the envelope is ordered and that full negative
// deflection (2*mid - max) does not fall below min.
func (e Envelope) Validate() error {
	if e.Min < 0 || e.Max > 65534 {
		return fmt.Errorf("envelope %d/%d/%d outside pulse-width range [0, 65534]", e.Min, e.Mid, e.Max)
	}
	if !(e.Min <= e.Mid && e.Mid < e.Max) {
		return fmt.Errorf("envelope must satisfy min <= mid < max, got %d/%d/%d", e.Min, e.Mid, e.Max)
	}
	if 2*e.Mid-e.Max < e.Min {
		return fmt.Errorf("envelope full reverse deflection %d is below min %d", 2*e.Mid-e.Max, e.Min)
	}
	return nil
}

// ValidatePercent rejects percentages outside [-100, 100].
func ValidatePercent(percent int) error {
	if percent < MinPercent || percent > MaxPercent {
		return fmt.Errorf("%w: percent %d not in [%d, %d]", ErrInvalidRange, percent, MinPercent, MaxPercent)
	}
	return nil
}

// MapPercent converts a signed percentage into a pulse width:
//
//	mid + sign(percent) * (max - mid) * |percent| / 100
//
// Range is not re-checked here; callers validate with ValidatePercent.
func MapPercent(percent int, env Envelope) int {
	if percent == 0 {
		return env.Mid
	}

	sign, magnitude := 1, percent
	if percent < 0 {
		sign, magnitude = -1, -percent
	}

	return env.Mid + sign*(env.Max-env.Mid)*magnitude/100
}

// Axis names a logical stick.
type Axis string

const (
	Roll     Axis = "roll"
	Pitch    Axis = "pitch"
	Throttle Axis = "throttle"
	Yaw      Axis = "yaw"
)

// Axes lists every axis in channel order of the default map.
var Axes = []Axis{Roll, Pitch, Throttle, Yaw}

// ParseAxis resolves a case-insensitive axis name.
func ParseAxis(name string) (Axis, error) {
	axis := Axis(strings.ToLower(strings.TrimSpace(name)))
	for _, a := range Axes {
		if a == axis {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAxis, name)
}

// AxisMap binds each axis to an RC channel (1-based).
type AxisMap struct {
	Roll     int `yaml:"roll" json:"roll"`
	Pitch    int `yaml:"pitch" json:"pitch"`
	Throttle int `yaml:"throttle" json:"throttle"`
	Yaw      int `yaml:"yaw" json:"yaw"`
}

// DefaultAxisMap returns the ArduPilot layout: roll 1, pitch 2, throttle 3, yaw 4.
func DefaultAxisMap() AxisMap {
	return AxisMap{Roll: 1, Pitch: 2, Throttle: 3, Yaw: 4}
}

// Channel returns the RC channel bound to axis.
func (m AxisMap) Channel(axis Axis) (int, error) {
	switch axis {
	case Roll:
		return m.Roll, nil
	case Pitch:
		return m.Pitch, nil
	case Throttle:
		return m.Throttle, nil
	case Yaw:
		return m.Yaw, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAxis, axis)
}

// Validate checks that every axis maps to a distinct channel in [1, 8].
func (m AxisMap) Validate() error {
	seen := make(map[int]Axis, len(Axes))
	for _, axis := range Axes {
		ch, _ := m.Channel(axis)
		if ch < 1 || ch > 8 {
			return fmt.Errorf("axis %s mapped to channel %d, must be 1-8", axis, ch)
		}
		if other, dup := seen[ch]; dup {
			return fmt.Errorf("axes %s and %s both mapped to channel %d", other, axis, ch)
		}
		seen[ch] = axis
	}
	return nil
}
