package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// EnvConfigFile names the config file when no path is passed to Load.
const EnvConfigFile = "RCPILOT_CONFIG"

// Load merges Baseline() + optional YAML file + RCPILOT_* environment overrides,
// then validates the result. An empty path falls back to $RCPILOT_CONFIG; a
// missing file at either location is an error, no file at all is not.
func Load(path string) (*Config, error) {
	// Start with baseline
	cfg := Baseline()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}

	// Merge the YAML file over the baseline
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	// Apply environment variable overrides
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	// Validate the final configuration
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile unmarshals YAML over cfg so absent keys keep their baseline value.
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, cfg)
}

// applyEnvOverrides applies RCPILOT_* environment variables to the config.
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"RCPILOT_VEHICLE_TYPE":   &cfg.Vehicle.Type,
		"RCPILOT_LINK_KIND":      &cfg.Link.Kind,
		"RCPILOT_SITL_ADDRESS":   &cfg.Link.SITLAddress,
		"RCPILOT_MAVLINK":        &cfg.Link.Endpoint,
		"RCPILOT_SPEECH_COMMAND": &cfg.Speech.Command,
		"RCPILOT_API_ADDR":       &cfg.API.Addr,
		"RCPILOT_AUTH_MODE":      &cfg.API.Auth.Mode,
		"RCPILOT_AUTH_HMAC_KEY":  &cfg.API.Auth.HMACKey,
		"RCPILOT_LOG_DIR":        &cfg.Log.Dir,
		"RCPILOT_LOG_LEVEL":      &cfg.Log.Level,
	}
	for key, dst := range strs {
		if val := os.Getenv(key); val != "" {
			*dst = val
		}
	}

	durations := map[string]*time.Duration{
		"RCPILOT_TIMING_LIVE_PERIOD":      &cfg.Timing.LivePeriod,
		"RCPILOT_TIMING_SIMULATED_PERIOD": &cfg.Timing.SimulatedPeriod,
		"RCPILOT_TIMING_WRITE_TIMEOUT":    &cfg.Timing.WriteTimeout,
		"RCPILOT_TIMING_PARAM_TIMEOUT":    &cfg.Timing.ParamTimeout,
		"RCPILOT_ALTHOLD_POLL_INTERVAL":   &cfg.AltHold.PollInterval,
	}
	for key, dst := range durations {
		if val := os.Getenv(key); val != "" {
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}

	ints := map[string]*int{
		"RCPILOT_ENVELOPE_MIN":            &cfg.Envelope.Min,
		"RCPILOT_ENVELOPE_MID":            &cfg.Envelope.Mid,
		"RCPILOT_ENVELOPE_MAX":            &cfg.Envelope.Max,
		"RCPILOT_TIMING_RESENDS":          &cfg.Timing.Resends,
		"RCPILOT_ALTHOLD_CLIMB_PERCENT":   &cfg.AltHold.ClimbPercent,
		"RCPILOT_ALTHOLD_DESCEND_PERCENT": &cfg.AltHold.DescendPercent,
	}
	for key, dst := range ints {
		if val := os.Getenv(key); val != "" {
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"RCPILOT_SPEECH":                     &cfg.Speech.Enabled,
		"RCPILOT_DEBUG":                      &cfg.Debug,
		"RCPILOT_TIMING_RESEND_WHILE_ACTIVE": &cfg.Timing.ResendWhileActive,
	}
	for key, dst := range bools {
		if val := os.Getenv(key); val != "" {
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}

	if val := os.Getenv("RCPILOT_ALTHOLD_TOLERANCE"); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("RCPILOT_ALTHOLD_TOLERANCE: %w", err)
		}
		cfg.AltHold.Tolerance = f
	}

	return nil
}
