// Package config provides configuration management for the runtime
package config

import (
	"fmt"
	"time"

	"github.com/najoast/skyrt/log"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// String returns the string representation of Environment
func (e Environment) String() string {
	return string(e)
}

// IsValid checks if the environment is valid
func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvTesting, EnvStaging, EnvProduction:
		return true
	default:
		return false
	}
}

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// String returns the string representation of LogLevel
func (l LogLevel) String() string {
	return string(l)
}

// IsValid checks if the log level is valid
func (l LogLevel) IsValid() bool {
	return l.Level() != log.InvalidLevel
}

// Level converts to the logger's level.
func (l LogLevel) Level() log.Level {
	return log.ParseLevel(string(l))
}

// Config represents the complete runtime configuration
type Config struct {
	// Application configuration
	App AppConfig `yaml:"app" json:"app"`

	// Logging configuration
	Log LogConfig `yaml:"log" json:"log"`

	// Scheduler configuration, fixed at start
	Engine EngineConfig `yaml:"engine" json:"engine"`

	// TCP gate configuration
	Gate GateConfig `yaml:"gate" json:"gate"`

	// Metrics configuration
	Monitor MonitorConfig `yaml:"monitor" json:"monitor"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	// Application name
	Name string `yaml:"name" json:"name"`

	// Deployment environment
	Environment Environment `yaml:"environment" json:"environment"`

	// Debug mode
	Debug bool `yaml:"debug" json:"debug"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	// Log level, the only setting applied on reload
	Level LogLevel `yaml:"level" json:"level"`

	// Runtime log destination (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`

	// File written by the logger service; empty means stdout
	Logfile string `yaml:"logfile" json:"logfile"`
}

// EngineConfig contains scheduler configuration
type EngineConfig struct {
	// Number of worker goroutines
	Threads int `yaml:"threads" json:"threads"`

	// Per-worker batch weights; workers beyond the table get 0
	Weights []int `yaml:"weights,omitempty" json:"weights,omitempty"`

	// Stall monitor sampling period
	StallInterval time.Duration `yaml:"stall_interval" json:"stall_interval"`

	// Base mailbox overload threshold
	OverloadThreshold int `yaml:"overload_threshold" json:"overload_threshold"`

	// Initial mailbox ring size
	MailboxCapacity int `yaml:"mailbox_capacity" json:"mailbox_capacity"`

	// Busy headroom used when a push wakes a worker
	WakeBusy int `yaml:"wake_busy" json:"wake_busy"`

	// Node id in the high 8 bits of every handle
	Harbor int `yaml:"harbor" json:"harbor"`

	// Stop once every actor has retired
	ExitWhenIdle bool `yaml:"exit_when_idle" json:"exit_when_idle"`
}

// GateConfig contains the TCP gate configuration
type GateConfig struct {
	// Enable the gate
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Listen address
	Address string `yaml:"address" json:"address"`

	// Listen port
	Port int `yaml:"port" json:"port"`

	// Name of the actor receiving socket events
	Watchdog string `yaml:"watchdog" json:"watchdog"`

	// Maximum concurrent connections, 0 for unlimited
	MaxConnections int `yaml:"max_connections" json:"max_connections"`

	// Idle read timeout, 0 for none
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`
}

// Addr returns the listen address in host:port form.
func (g GateConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Address, g.Port)
}

// MonitorConfig contains metrics configuration
type MonitorConfig struct {
	// Export runtime metrics through the global meter provider
	Metrics bool `yaml:"metrics" json:"metrics"`

	// Meter name
	MeterName string `yaml:"meter_name" json:"meter_name"`
}

// MaxWeight is the largest worker weight; weight k allows 2^k envelopes per
// batch.
const MaxWeight = 30

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "sngo",
			Environment: EnvDevelopment,
		},
		Log: LogConfig{
			Level:  LogLevelInfo,
			Output: "stdout",
		},
		Engine: EngineConfig{
			Threads:           8,
			StallInterval:     5 * time.Second,
			OverloadThreshold: 1024,
			MailboxCapacity:   64,
			Harbor:            1,
		},
		Gate: GateConfig{
			Address:  "0.0.0.0",
			Port:     8888,
			Watchdog: "watchdog",
		},
		Monitor: MonitorConfig{
			MeterName: "github.com/najoast/skyrt",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return ErrInvalidAppName
	}
	if !c.App.Environment.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidEnvironment, c.App.Environment)
	}

	if !c.Log.Level.IsValid() {
		return fmt.Errorf("%w: %s", ErrInvalidLogLevel, c.Log.Level)
	}

	if c.Engine.Threads < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidThreads, c.Engine.Threads)
	}
	if c.Engine.Harbor < 0 || c.Engine.Harbor > 255 {
		return fmt.Errorf("%w: %d", ErrInvalidHarbor, c.Engine.Harbor)
	}
	for i, w := range c.Engine.Weights {
		if w > MaxWeight {
			return fmt.Errorf("%w: weights[%d] = %d, max %d", ErrInvalidWeight, i, w, MaxWeight)
		}
	}
	if c.Engine.StallInterval <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidStallInterval, c.Engine.StallInterval)
	}
	if c.Engine.OverloadThreshold < 1 || c.Engine.MailboxCapacity < 1 {
		return ErrInvalidMailboxSize
	}

	if c.Gate.Enabled {
		if c.Gate.Port <= 0 || c.Gate.Port > 65535 {
			return fmt.Errorf("%w: %d", ErrInvalidPort, c.Gate.Port)
		}
		if c.Gate.Watchdog == "" {
			return ErrInvalidWatchdog
		}
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}
