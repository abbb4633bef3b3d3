package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// ErrCircularDependency is returned by Start when services depend on each
// other in a cycle.
var ErrCircularDependency = errors.New("circular dependency detected")

// DefaultLifecycleManager implements the LifecycleManager interface
type DefaultLifecycleManager struct {
	// services in registration order
	services []Service
	index    map[string]int

	// dependencies tracks service dependencies
	dependencies map[string][]string

	// startOrder tracks the order services were started
	startOrder []string

	mutex sync.Mutex

	started bool

	listeners []func(LifecycleEvent)

	// timeout for each start and stop call
	timeout time.Duration
}

var _ LifecycleManager = (*DefaultLifecycleManager)(nil)

// NewLifecycleManager creates a new lifecycle manager
func NewLifecycleManager() *DefaultLifecycleManager {
	return &DefaultLifecycleManager{
		index:        make(map[string]int),
		dependencies: make(map[string][]string),
		timeout:      30 * time.Second,
	}
}

// Register registers a service with the lifecycle manager
func (lm *DefaultLifecycleManager) Register(service Service, deps ...string) error {
	if service == nil {
		return fmt.Errorf("service cannot be nil")
	}
	name := service.Name()
	if name == "" {
		return fmt.Errorf("service name cannot be empty")
	}

	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if lm.started {
		return fmt.Errorf("cannot register service %s: lifecycle manager already started", name)
	}
	if _, exists := lm.index[name]; exists {
		return fmt.Errorf("service %s is already registered", name)
	}

	lm.index[name] = len(lm.services)
	lm.services = append(lm.services, service)
	lm.dependencies[name] = deps
	return nil
}

// Start starts all services in dependency order. If one fails, the services
// already started are stopped again in reverse order.
func (lm *DefaultLifecycleManager) Start(ctx context.Context) error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if lm.started {
		return fmt.Errorf("lifecycle manager already started")
	}

	order, err := lm.calculateStartOrder()
	if err != nil {
		return fmt.Errorf("failed to calculate start order: %w", err)
	}

	for _, name := range order {
		service := lm.services[lm.index[name]]
		lm.broadcastEvent(EventStarting, name, nil)

		startCtx, cancel := context.WithTimeout(ctx, lm.timeout)
		err := service.Start(startCtx)
		cancel()

		if err != nil {
			lm.broadcastEvent(EventStartFailed, name, err)
			err = fmt.Errorf("failed to start service %s: %w", name, err)
			return multierr.Append(err, lm.stopStarted(ctx))
		}

		lm.startOrder = append(lm.startOrder, name)
		lm.broadcastEvent(EventStarted, name, nil)
	}

	lm.started = true
	return nil
}

// Stop stops all services in reverse start order and returns every stop
// error combined.
func (lm *DefaultLifecycleManager) Stop(ctx context.Context) error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if !lm.started {
		return nil
	}
	lm.started = false
	return lm.stopStarted(ctx)
}

func (lm *DefaultLifecycleManager) stopStarted(ctx context.Context) error {
	var errs error
	for i := len(lm.startOrder) - 1; i >= 0; i-- {
		name := lm.startOrder[i]
		service := lm.services[lm.index[name]]
		lm.broadcastEvent(EventStopping, name, nil)

		stopCtx, cancel := context.WithTimeout(ctx, lm.timeout)
		err := service.Stop(stopCtx)
		cancel()

		if err != nil {
			lm.broadcastEvent(EventStopFailed, name, err)
			errs = multierr.Append(errs, fmt.Errorf("failed to stop service %s: %w", name, err))
			continue
		}
		lm.broadcastEvent(EventStopped, name, nil)
	}
	lm.startOrder = nil
	return errs
}

// Services returns all registered service names
func (lm *DefaultLifecycleManager) Services() []string {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	names := make([]string, 0, len(lm.services))
	for _, service := range lm.services {
		names = append(names, service.Name())
	}
	sort.Strings(names)
	return names
}

// AddListener adds a lifecycle event listener. Listeners run synchronously
// on the goroutine calling Start or Stop.
func (lm *DefaultLifecycleManager) AddListener(listener func(LifecycleEvent)) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	lm.listeners = append(lm.listeners, listener)
}

// SetTimeout sets the timeout for service operations
func (lm *DefaultLifecycleManager) SetTimeout(timeout time.Duration) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	lm.timeout = timeout
}

// IsStarted returns true if the lifecycle manager has been started
func (lm *DefaultLifecycleManager) IsStarted() bool {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	return lm.started
}

// calculateStartOrder calculates the order to start services based on
// dependencies. Ties are broken by registration order.
func (lm *DefaultLifecycleManager) calculateStartOrder() ([]string, error) {
	// Topological sort using Kahn's algorithm
	inDegree := make(map[string]int, len(lm.services))
	graph := make(map[string][]string, len(lm.services))

	for _, service := range lm.services {
		inDegree[service.Name()] = 0
	}

	for _, service := range lm.services {
		name := service.Name()
		for _, dep := range lm.dependencies[name] {
			if _, exists := lm.index[dep]; !exists {
				return nil, fmt.Errorf("dependency %s of service %s is not registered", dep, name)
			}
			graph[dep] = append(graph[dep], name)
			inDegree[name]++
		}
	}

	queue := []string{}
	for _, service := range lm.services {
		if inDegree[service.Name()] == 0 {
			queue = append(queue, service.Name())
		}
	}

	result := make([]string, 0, len(lm.services))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, dependent := range graph[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(result) != len(lm.services) {
		return nil, ErrCircularDependency
	}
	return result, nil
}

func (lm *DefaultLifecycleManager) broadcastEvent(t EventType, service string, err error) {
	event := LifecycleEvent{Type: t, Service: service, Timestamp: time.Now(), Error: err}
	for _, listener := range lm.listeners {
		listener(event)
	}
}
