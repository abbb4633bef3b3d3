// Package bootstrap orders the start and stop of the runtime's long-running
// services.
package bootstrap

import (
	"context"
	"time"
)

// Service is a component with a start/stop lifecycle, such as the worker
// pool, the timer driver or the gate.
type Service interface {
	// Name returns the service name
	Name() string

	// Start starts the service. It must not block past startup.
	Start(ctx context.Context) error

	// Stop stops the service and waits for its goroutines.
	Stop(ctx context.Context) error
}

// LifecycleManager manages the lifecycle of services
type LifecycleManager interface {
	// Register registers a service with optional dependencies
	Register(service Service, deps ...string) error

	// Start starts all services in dependency order
	Start(ctx context.Context) error

	// Stop stops all started services in reverse order
	Stop(ctx context.Context) error

	// Services returns all registered service names
	Services() []string

	// AddListener adds a lifecycle event listener
	AddListener(listener func(LifecycleEvent))
}

// EventType names a lifecycle transition.
type EventType string

const (
	EventStarting    EventType = "service.starting"
	EventStarted     EventType = "service.started"
	EventStartFailed EventType = "service.start_failed"
	EventStopping    EventType = "service.stopping"
	EventStopped     EventType = "service.stopped"
	EventStopFailed  EventType = "service.stop_failed"
)

// LifecycleEvent represents an event in the service lifecycle
type LifecycleEvent struct {
	Type      EventType
	Service   string
	Timestamp time.Time
	Error     error
}

// ServiceFunc adapts a pair of functions to Service.
type ServiceFunc struct {
	ServiceName string
	OnStart     func(ctx context.Context) error
	OnStop      func(ctx context.Context) error
}

// Name returns the service name.
func (s ServiceFunc) Name() string { return s.ServiceName }

// Start calls OnStart if set.
func (s ServiceFunc) Start(ctx context.Context) error {
	if s.OnStart == nil {
		return nil
	}
	return s.OnStart(ctx)
}

// Stop calls OnStop if set.
func (s ServiceFunc) Stop(ctx context.Context) error {
	if s.OnStop == nil {
		return nil
	}
	return s.OnStop(ctx)
}
