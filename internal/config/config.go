package config

import (
	"time"

	"github.com/radio-control/rcpilot/internal/override"
	"github.com/radio-control/rcpilot/internal/stick"
)

// Link kinds.
const (
	LinkSITL    = "sitl"
	LinkMAVLink = "mavlink"
)

// Vehicle types. They decide which parameter holds the flight-mode channel.
const (
	VehicleCopter = "copter"
	VehiclePlane  = "plane"
	VehicleRover  = "rover"
)

// Config is the complete rcpilot configuration.
type Config struct {
	Envelope stick.Envelope `yaml:"envelope"`
	Axes     stick.AxisMap  `yaml:"axes"`
	Vehicle  VehicleConfig  `yaml:"vehicle"`
	Link     LinkConfig     `yaml:"link"`
	Timing   TimingConfig   `yaml:"timing"`
	AltHold  AltHoldConfig  `yaml:"althold"`
	Speech   SpeechConfig   `yaml:"speech"`
	API      APIConfig      `yaml:"api"`
	Log      LogConfig      `yaml:"log"`

	// Debug echoes every computed stick value at info level.
	Debug bool `yaml:"debug"`
}

// VehicleConfig describes the controlled vehicle.
type VehicleConfig struct {
	Type string `yaml:"type"`
}

// LinkConfig selects and configures the vehicle link.
type LinkConfig struct {
	Kind string `yaml:"kind"`

	// SITLAddress is the UDP address raw override frames are written to.
	SITLAddress string `yaml:"sitlAddress"`

	// Endpoint is a MAVLink endpoint: udp-client:host:port,
	// udp-server:host:port, tcp-client:host:port or tcp-server:host:port.
	Endpoint        string `yaml:"endpoint"`
	SystemID        uint8  `yaml:"systemId"`
	TargetSystem    uint8  `yaml:"targetSystem"`
	TargetComponent uint8  `yaml:"targetComponent"`

	// QueueSize bounds the outbound frame queue.
	QueueSize int `yaml:"queueSize"`
}

// TimingConfig holds every period and timeout.
type TimingConfig struct {
	LivePeriod        time.Duration `yaml:"livePeriod"`
	SimulatedPeriod   time.Duration `yaml:"simulatedPeriod"`
	Resends           int           `yaml:"resends"`
	ResendWhileActive bool          `yaml:"resendWhileActive"`
	WriteTimeout      time.Duration `yaml:"writeTimeout"`
	ParamTimeout      time.Duration `yaml:"paramTimeout"`
	CommandTimeout    time.Duration `yaml:"commandTimeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
	EventBufferSize   int           `yaml:"eventBufferSize"`
}

// AltHoldConfig tunes the bang-bang altitude hold loop.
type AltHoldConfig struct {
	PollInterval   time.Duration `yaml:"pollInterval"`
	Tolerance      float64       `yaml:"tolerance"`
	ClimbPercent   int           `yaml:"climbPercent"`
	DescendPercent int           `yaml:"descendPercent"`
	MaxAltitude    float64       `yaml:"maxAltitude"`
}

// SpeechConfig configures the text-to-speech notifier.
type SpeechConfig struct {
	Enabled bool          `yaml:"enabled"`
	Command string        `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

// APIConfig configures the HTTP control API.
type APIConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
	Auth         AuthConfig    `yaml:"auth"`
}

// AuthConfig configures bearer-token verification. Mode "none" disables it.
type AuthConfig struct {
	Mode      string `yaml:"mode"`
	HMACKey   string `yaml:"hmacKey"`
	PublicKey string `yaml:"publicKey"`
}

// LogConfig configures the structured and audit logs.
type LogConfig struct {
	Dir        string `yaml:"dir"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// Baseline returns the default configuration.
func Baseline() *Config {
	return &Config{
		Envelope: stick.DefaultEnvelope(),
		Axes:     stick.DefaultAxisMap(),
		Vehicle: VehicleConfig{
			Type: VehicleCopter,
		},
		Link: LinkConfig{
			Kind:            LinkSITL,
			SITLAddress:     "127.0.0.1:5501",
			Endpoint:        "udp-client:127.0.0.1:14550",
			SystemID:        255,
			TargetSystem:    1,
			TargetComponent: 1,
			QueueSize:       16,
		},
		Timing: TimingConfig{
			LivePeriod:        override.LivePeriod,
			SimulatedPeriod:   override.SimulatedPeriod,
			Resends:           override.DefaultResends,
			WriteTimeout:      20 * time.Millisecond,
			ParamTimeout:      2 * time.Second,
			CommandTimeout:    5 * time.Second,
			HeartbeatInterval: 15 * time.Second,
			EventBufferSize:   50,
		},
		AltHold: AltHoldConfig{
			PollInterval:   200 * time.Millisecond,
			Tolerance:      0.3,
			ClimbPercent:   14,
			DescendPercent: -29,
			MaxAltitude:    1000,
		},
		Speech: SpeechConfig{
			Enabled: true,
			Command: "spd-say",
			Timeout: 10 * time.Second,
		},
		API: APIConfig{
			Addr:         "127.0.0.1:8000",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  120 * time.Second,
			Auth: AuthConfig{
				Mode: "none",
			},
		},
		Log: LogConfig{
			Dir:        "logs",
			Level:      "info",
			MaxSizeMB:  32,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
	}
}

// Simulated reports whether the configured link is a simulated one.
func (c *Config) Simulated() bool {
	return c.Link.Kind == LinkSITL
}

// OverridePeriod returns the re-send period for the configured link.
func (c *Config) OverridePeriod() time.Duration {
	if c.Simulated() {
		return c.Timing.SimulatedPeriod
	}
	return c.Timing.LivePeriod
}
