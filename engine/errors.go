package engine

import "errors"

var (
	// ErrInvalidThreads is returned when the worker count is below one.
	ErrInvalidThreads = errors.New("engine: thread count must be positive")
	// ErrAlreadyStarted is returned by Register after Start.
	ErrAlreadyStarted = errors.New("engine: already started")
)
