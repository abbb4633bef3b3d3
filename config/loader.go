package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigFormat represents the configuration file format
type ConfigFormat string

const (
	FormatYAML ConfigFormat = "yaml"
	FormatJSON ConfigFormat = "json"
)

// Loader handles configuration loading from files and the environment.
// File values are decoded on top of the defaults, then environment
// overrides are applied, then the result is validated.
type Loader struct {
	// Configuration search paths
	searchPaths []string

	// Environment variable prefix
	envPrefix string

	// Default configuration
	defaultConfig *Config

	// lookupEnv is os.LookupEnv outside tests
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		searchPaths: []string{
			".",
			"./config",
			"./configs",
			"/etc/sngo",
		},
		envPrefix:     "SNGO",
		defaultConfig: DefaultConfig(),
		lookupEnv:     os.LookupEnv,
	}
}

// SetSearchPaths sets the configuration file search paths
func (l *Loader) SetSearchPaths(paths []string) *Loader {
	l.searchPaths = paths
	return l
}

// SetEnvPrefix sets the environment variable prefix
func (l *Loader) SetEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// SetDefaultConfig sets the default configuration
func (l *Loader) SetDefaultConfig(config *Config) *Loader {
	l.defaultConfig = config
	return l
}

// Load loads configuration from filename, or from the defaults when
// filename is empty.
func (l *Loader) Load(filename string) (*Config, error) {
	if filename == "" {
		return l.finish(l.defaults())
	}
	return l.LoadFromFile(filename)
}

// LoadFromFile loads configuration from a specific file
func (l *Loader) LoadFromFile(filename string) (*Config, error) {
	format, err := formatOf(filename)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileNotFound, filename)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := l.parseConfig(data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}
	return l.finish(config)
}

// LoadFromReader loads configuration from an io.Reader
func (l *Loader) LoadFromReader(reader io.Reader, format ConfigFormat) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration data: %w", err)
	}

	config, err := l.parseConfig(data, format)
	if err != nil {
		return nil, err
	}
	return l.finish(config)
}

// AutoLoad automatically discovers and loads configuration, falling back to
// the defaults when no file is found.
func (l *Loader) AutoLoad() (*Config, error) {
	configFile, err := l.findConfigFile()
	if errors.Is(err, ErrConfigFileNotFound) {
		return l.finish(l.defaults())
	}
	if err != nil {
		return nil, err
	}
	return l.LoadFromFile(configFile)
}

func (l *Loader) defaults() *Config {
	base := l.defaultConfig
	if base == nil {
		base = DefaultConfig()
	}
	config := *base
	config.Engine.Weights = append([]int(nil), base.Engine.Weights...)
	return &config
}

func (l *Loader) finish(config *Config) (*Config, error) {
	if err := l.loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// findConfigFile searches for configuration files in search paths
func (l *Loader) findConfigFile() (string, error) {
	filenames := []string{
		"sngo.yaml", "sngo.yml",
		"config.yaml", "config.yml",
		"sngo.json", "config.json",
	}

	for _, searchPath := range l.searchPaths {
		for _, filename := range filenames {
			fullPath := filepath.Join(searchPath, filename)
			if _, err := os.Stat(fullPath); err == nil {
				return fullPath, nil
			}
		}
	}

	return "", ErrConfigFileNotFound
}

func formatOf(filename string) (ConfigFormat, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported config file format: %s", ext)
	}
}

// parseConfig decodes data on top of the defaults so that missing fields
// keep their default values.
func (l *Loader) parseConfig(data []byte, format ConfigFormat) (*Config, error) {
	config := l.defaults()

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigParseError, err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigParseError, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", format)
	}

	return config, nil
}

// loadFromEnv loads configuration overrides from environment variables
// named PREFIX_SECTION_FIELD.
func (l *Loader) loadFromEnv(config *Config) error {
	strs := map[string]*string{
		"APP_NAME":      &config.App.Name,
		"LOG_OUTPUT":    &config.Log.Output,
		"LOG_LOGFILE":   &config.Log.Logfile,
		"GATE_ADDRESS":  &config.Gate.Address,
		"GATE_WATCHDOG": &config.Gate.Watchdog,
	}
	for key, dst := range strs {
		if val, ok := l.env(key); ok {
			*dst = val
		}
	}
	if val, ok := l.env("APP_ENVIRONMENT"); ok {
		config.App.Environment = Environment(val)
	}
	if val, ok := l.env("LOG_LEVEL"); ok {
		config.Log.Level = LogLevel(val)
	}

	ints := map[string]*int{
		"ENGINE_THREADS":            &config.Engine.Threads,
		"ENGINE_OVERLOAD_THRESHOLD": &config.Engine.OverloadThreshold,
		"ENGINE_MAILBOX_CAPACITY":   &config.Engine.MailboxCapacity,
		"ENGINE_WAKE_BUSY":          &config.Engine.WakeBusy,
		"ENGINE_HARBOR":             &config.Engine.Harbor,
		"GATE_PORT":                 &config.Gate.Port,
		"GATE_MAX_CONNECTIONS":      &config.Gate.MaxConnections,
	}
	for key, dst := range ints {
		if val, ok := l.env(key); ok {
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("%w: %s_%s=%q", ErrEnvironmentVarError, l.envPrefix, key, val)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"APP_DEBUG":             &config.App.Debug,
		"ENGINE_EXIT_WHEN_IDLE": &config.Engine.ExitWhenIdle,
		"GATE_ENABLED":          &config.Gate.Enabled,
		"MONITOR_METRICS":       &config.Monitor.Metrics,
	}
	for key, dst := range bools {
		if val, ok := l.env(key); ok {
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("%w: %s_%s=%q", ErrEnvironmentVarError, l.envPrefix, key, val)
			}
			*dst = b
		}
	}

	durations := map[string]*time.Duration{
		"ENGINE_STALL_INTERVAL": &config.Engine.StallInterval,
		"GATE_READ_TIMEOUT":     &config.Gate.ReadTimeout,
	}
	for key, dst := range durations {
		if val, ok := l.env(key); ok {
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("%w: %s_%s=%q", ErrEnvironmentVarError, l.envPrefix, key, val)
			}
			*dst = d
		}
	}

	return nil
}

func (l *Loader) env(key string) (string, bool) {
	lookup := l.lookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	val, ok := lookup(l.envPrefix + "_" + key)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}
