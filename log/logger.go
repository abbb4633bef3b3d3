// Package log provides the structured logger used by the runtime threads.
//
// Diagnostic reports addressed to actors (overload, stalls, handler
// failures) do not go through this package; they are delivered to the
// logger service as text envelopes. This package covers the process side:
// engine start/stop, timer clock anomalies, gate connections and
// configuration reloads.
package log

import (
	"fmt"
	"io"
	"os"
)

var (
	// DefaultLogger writes info and above to stdout.
	DefaultLogger Logger = NewZap(InfoLevel, os.Stdout)

	// DiscardLogger drops everything.
	DiscardLogger Logger = discardLogger{}
)

// Logger is the logging facade shared by the runtime packages.
type Logger interface {
	Debug(...any)
	Debugf(string, ...any)
	Info(...any)
	Infof(string, ...any)
	Warn(...any)
	Warnf(string, ...any)
	Error(...any)
	Errorf(string, ...any)
	// Fatal logs then calls os.Exit(1).
	Fatal(...any)
	// Fatalf logs then calls os.Exit(1).
	Fatalf(string, ...any)
	// Panic logs then panics.
	Panic(...any)
	// Panicf logs then panics.
	Panicf(string, ...any)

	// With returns a child logger carrying the given key/value pairs.
	With(keyValues ...any) Logger
	// LogLevel returns the current level.
	LogLevel() Level
	// SetLevel changes the level of this logger and every child created by With.
	SetLevel(Level)
	// LogOutput returns the writers the logger was built with.
	LogOutput() []io.Writer
}

type discardLogger struct{}

var _ Logger = discardLogger{}

func (discardLogger) Debug(...any)              {}
func (discardLogger) Debugf(string, ...any)     {}
func (discardLogger) Info(...any)               {}
func (discardLogger) Infof(string, ...any)      {}
func (discardLogger) Warn(...any)               {}
func (discardLogger) Warnf(string, ...any)      {}
func (discardLogger) Error(...any)              {}
func (discardLogger) Errorf(string, ...any)     {}
func (discardLogger) Fatal(...any)              {}
func (discardLogger) Fatalf(string, ...any)     {}
func (discardLogger) Panic(v ...any)            { panic(fmt.Sprint(v...)) }
func (discardLogger) Panicf(f string, v ...any) { panic(fmt.Sprintf(f, v...)) }
func (d discardLogger) With(...any) Logger      { return d }
func (discardLogger) LogLevel() Level           { return InvalidLevel }
func (discardLogger) SetLevel(Level)            {}
func (discardLogger) LogOutput() []io.Writer    { return nil }
