package config

import (
	"fmt"
	"strings"
)

// Validate enforces configuration rules.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if err := cfg.Envelope.Validate(); err != nil {
		return fmt.Errorf("envelope validation failed: %w", err)
	}

	if err := cfg.Axes.Validate(); err != nil {
		return fmt.Errorf("axes validation failed: %w", err)
	}

	if err := validateVehicle(cfg.Vehicle); err != nil {
		return fmt.Errorf("vehicle validation failed: %w", err)
	}

	if err := validateLink(cfg.Link); err != nil {
		return fmt.Errorf("link validation failed: %w", err)
	}

	if err := validateTiming(cfg.Timing); err != nil {
		return fmt.Errorf("timing validation failed: %w", err)
	}

	if err := validateAltHold(cfg.AltHold); err != nil {
		return fmt.Errorf("althold validation failed: %w", err)
	}

	if err := validateAPI(cfg.API); err != nil {
		return fmt.Errorf("api validation failed: %w", err)
	}

	if err := validateLog(cfg.Log); err != nil {
		return fmt.Errorf("log validation failed: %w", err)
	}

	return nil
}

func validateVehicle(v VehicleConfig) error {
	switch v.Type {
	case VehicleCopter, VehiclePlane, VehicleRover:
		return nil
	}
	return fmt.Errorf("invalid vehicle type %q, must be one of: copter, plane, rover", v.Type)
}

func validateLink(l LinkConfig) error {
	switch l.Kind {
	case LinkSITL:
		if l.SITLAddress == "" {
			return fmt.Errorf("sitl link requires sitlAddress")
		}
	case LinkMAVLink:
		if l.Endpoint == "" {
			return fmt.Errorf("mavlink link requires endpoint")
		}
		if _, _, err := SplitEndpoint(l.Endpoint); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid link kind %q, must be sitl or mavlink", l.Kind)
	}

	if l.QueueSize <= 0 {
		return fmt.Errorf("queue size must be positive, got %d", l.QueueSize)
	}
	return nil
}

// SplitEndpoint splits "udp-client:host:port" into its kind and address.
func SplitEndpoint(endpoint string) (string, string, error) {
	kind, addr, ok := strings.Cut(endpoint, ":")
	if !ok || addr == "" {
		return "", "", fmt.Errorf("invalid endpoint %q, expected <kind>:<host>:<port>", endpoint)
	}
	switch kind {
	case "udp-client", "udp-server", "tcp-client", "tcp-server":
		return kind, addr, nil
	}
	return "", "", fmt.Errorf("invalid endpoint kind %q", kind)
}

func validateTiming(t TimingConfig) error {
	// Periods must be positive and the simulated one no slower than live
	if t.LivePeriod <= 0 || t.SimulatedPeriod <= 0 {
		return fmt.Errorf("override periods must be positive, got live=%v simulated=%v", t.LivePeriod, t.SimulatedPeriod)
	}
	if t.SimulatedPeriod > t.LivePeriod {
		return fmt.Errorf("simulated period %v must not exceed live period %v", t.SimulatedPeriod, t.LivePeriod)
	}

	if t.Resends < 1 || t.Resends > 100 {
		return fmt.Errorf("resends %d outside reasonable range [1, 100]", t.Resends)
	}

	// A write that outlives one simulated tick would stall the next frame
	if t.WriteTimeout <= 0 || t.WriteTimeout > t.LivePeriod {
		return fmt.Errorf("write timeout %v must be positive and <= live period %v", t.WriteTimeout, t.LivePeriod)
	}

	if t.ParamTimeout <= 0 || t.CommandTimeout <= 0 {
		return fmt.Errorf("param and command timeouts must be positive")
	}

	if t.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %v", t.HeartbeatInterval)
	}

	if t.EventBufferSize <= 0 {
		return fmt.Errorf("event buffer size must be positive, got %d", t.EventBufferSize)
	}
	return nil
}

func validateAltHold(a AltHoldConfig) error {
	if a.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", a.PollInterval)
	}
	if a.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %v", a.Tolerance)
	}
	if a.ClimbPercent <= 0 || a.ClimbPercent > 100 {
		return fmt.Errorf("climb percent %d must be in (0, 100]", a.ClimbPercent)
	}
	if a.DescendPercent >= 0 || a.DescendPercent < -100 {
		return fmt.Errorf("descend percent %d must be in [-100, 0)", a.DescendPercent)
	}
	if a.MaxAltitude <= 0 {
		return fmt.Errorf("max altitude must be positive, got %v", a.MaxAltitude)
	}
	return nil
}

func validateAPI(a APIConfig) error {
	switch a.Auth.Mode {
	case "none", "":
	case "hs256":
		if a.Auth.HMACKey == "" {
			return fmt.Errorf("hs256 auth requires hmacKey")
		}
	case "rs256":
		if a.Auth.PublicKey == "" {
			return fmt.Errorf("rs256 auth requires publicKey")
		}
	default:
		return fmt.Errorf("invalid auth mode %q, must be none, hs256 or rs256", a.Auth.Mode)
	}
	return nil
}

func validateLog(l LogConfig) error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", l.Level)
	}
	if l.MaxSizeMB <= 0 {
		return fmt.Errorf("max size must be positive, got %d", l.MaxSizeMB)
	}
	return nil
}
