package config

import "errors"

// Configuration validation errors
var (
	ErrInvalidAppName       = errors.New("invalid application name")
	ErrInvalidEnvironment   = errors.New("invalid environment")
	ErrInvalidLogLevel      = errors.New("invalid log level")
	ErrInvalidPort          = errors.New("invalid port number")
	ErrInvalidThreads       = errors.New("invalid thread count")
	ErrInvalidHarbor        = errors.New("invalid harbor id")
	ErrInvalidStallInterval = errors.New("invalid stall interval")
	ErrInvalidMailboxSize   = errors.New("invalid mailbox size")
	ErrInvalidWatchdog      = errors.New("invalid watchdog name")
	ErrInvalidWeight        = errors.New("invalid worker weight")
)

// Configuration loading errors
var (
	ErrConfigFileNotFound  = errors.New("configuration file not found")
	ErrConfigParseError    = errors.New("configuration parse error")
	ErrEnvironmentVarError = errors.New("environment variable error")
)
