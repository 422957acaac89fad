// Package althold runs a bang-bang altitude hold beside the operator.
//
// The controller polls a reported altitude and nudges the throttle axis by a
// fixed climb or descend percentage while the vehicle is outside the
// tolerance band around the target. Inside the band the throttle is centred.
// Only changes of the chosen correction are pushed; the override
// transmitter's re-send keeps the last one alive.
package althold

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/radio-control/rcpilot/internal/adapter"
	"github.com/radio-control/rcpilot/internal/config"
	"github.com/radio-control/rcpilot/internal/stick"
)

// ErrNoAltitudeSource is returned when the link reports no altitude.
var ErrNoAltitudeSource = fmt.Errorf("%w: link reports no altitude", adapter.ErrUnavailable)

// ThrottleFunc moves the throttle axis to percent.
type ThrottleFunc func(ctx context.Context, percent int) error

// CorrectionFunc observes every pushed correction.
type CorrectionFunc func(target, altitude float64, percent int)

// Controller holds altitude around a target.
type Controller struct {
	source   adapter.AltitudeSource
	throttle ThrottleFunc
	cfg      config.AltHoldConfig
	logger   *slog.Logger
	observe  CorrectionFunc

	// Written by the command surface, read by the loop
	target atomic.Pointer[float64]

	stepMu   sync.Mutex
	pushed   bool
	lastPush int
}

// New creates a controller. source may be nil when the link has no
// altitude; SetTarget then fails.
func New(source adapter.AltitudeSource, throttle ThrottleFunc, cfg config.AltHoldConfig, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		source:   source,
		throttle: throttle,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "althold")),
	}
}

// OnCorrection registers an observer for pushed corrections.
func (c *Controller) OnCorrection(fn CorrectionFunc) {
	c.observe = fn
}

// SetTarget starts holding metres.
func (c *Controller) SetTarget(metres float64) error {
	if c.source == nil {
		return ErrNoAltitudeSource
	}
	if math.IsNaN(metres) || math.IsInf(metres, 0) || metres < 0 || metres > c.cfg.MaxAltitude {
		return fmt.Errorf("%w: altitude %v outside 0..%v", stick.ErrInvalidRange, metres, c.cfg.MaxAltitude)
	}
	c.target.Store(&metres)
	return nil
}

// Clear stops holding. The next step centres the throttle if a correction
// is in force.
func (c *Controller) Clear() {
	c.target.Store(nil)
}

// Target returns the current target and whether one is set.
func (c *Controller) Target() (float64, bool) {
	p := c.target.Load()
	if p == nil {
		return 0, false
	}
	return *p, true
}

// Decide returns the throttle percent for an altitude reading.
func Decide(altitude, target float64, cfg config.AltHoldConfig) int {
	switch {
	case altitude < target-cfg.Tolerance:
		return cfg.ClimbPercent
	case altitude > target+cfg.Tolerance:
		return cfg.DescendPercent
	}
	return 0
}

// Step runs one poll. It reports whether a correction was pushed.
func (c *Controller) Step(ctx context.Context) (bool, error) {
	c.stepMu.Lock()
	defer c.stepMu.Unlock()

	target, ok := c.Target()
	if !ok {
		if c.pushed && c.lastPush != 0 {
			if err := c.throttle(ctx, 0); err != nil {
				return false, err
			}
			c.logger.Info("altitude hold released, throttle centred")
		}
		c.pushed = false
		return false, nil
	}

	altitude, err := c.source.Altitude(ctx)
	if err != nil {
		return false, err
	}

	percent := Decide(altitude, target, c.cfg)
	if c.pushed && percent == c.lastPush {
		return false, nil
	}

	if err := c.throttle(ctx, percent); err != nil {
		return false, err
	}
	c.pushed = true
	c.lastPush = percent

	c.logger.Debug("altitude correction",
		slog.Float64("target", target),
		slog.Float64("altitude", altitude),
		slog.Int("throttle", percent))
	if c.observe != nil {
		c.observe(target, altitude, percent)
	}
	return true, nil
}

// Run polls until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	interval := c.cfg.PollInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := c.Step(ctx); err != nil {
				// Log each distinct failure once
				if err.Error() != lastErr {
					c.logger.Warn("altitude hold step failed", slog.String("error", err.Error()))
					lastErr = err.Error()
				}
				continue
			}
			lastErr = ""
		}
	}
}
