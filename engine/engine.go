// Package engine runs actors: a pool of workers drains the global queue,
// a timer driver feeds timeouts into mailboxes, and a monitor watches for
// handlers that never return.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/najoast/skyrt/bootstrap"
	"github.com/najoast/skyrt/core"
	"github.com/najoast/skyrt/log"
	"github.com/najoast/skyrt/metric"
	"github.com/najoast/skyrt/timer"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// Config holds the startup settings of an Engine. It is fixed once the
// engine is created.
type Config struct {
	// Threads is the number of workers.
	Threads int
	// Weights is the per-worker batch weight table.
	Weights []int
	// StallInterval is the stall monitor sampling period.
	StallInterval time.Duration
	// OverloadThreshold is the base mailbox overload threshold.
	OverloadThreshold int
	// MailboxCapacity is the initial ring size of new mailboxes.
	MailboxCapacity int
	// WakeBusy is the headroom passed to Wakeup when a mailbox is linked.
	WakeBusy int
	// Harbor is the node id carried in every handle.
	Harbor uint8
	// ExitWhenIdle stops the engine once every actor has retired.
	ExitWhenIdle bool
	// TimerInterval is the timer driver's sleep between updates.
	TimerInterval time.Duration
}

// DefaultConfig returns the default engine settings.
func DefaultConfig() Config {
	return Config{
		Threads:           runtime.NumCPU(),
		Weights:           DefaultWeights,
		StallInterval:     DefaultStallInterval,
		OverloadThreshold: core.DefaultOverloadThreshold,
		MailboxCapacity:   core.DefaultMailboxCapacity,
		Harbor:            1,
		TimerInterval:     timer.DefaultInterval,
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMeter exports runtime metrics on meter.
func WithMeter(meter otelmetric.Meter) Option {
	return func(e *Engine) {
		e.meter = meter
	}
}

// WithTimerOptions passes options to the timing wheel.
func WithTimerOptions(opts ...timer.Option) Option {
	return func(e *Engine) {
		e.timerOpts = append(e.timerOpts, opts...)
	}
}

// Engine wires the runtime together and owns its goroutines.
type Engine struct {
	cfg       Config
	logger    log.Logger
	meter     otelmetric.Meter
	metrics   *metric.RuntimeMetric
	timerOpts []timer.Option

	gq       *core.GlobalQueue
	registry *core.Registry
	waker    *Waker
	wheel    *timer.Wheel
	driver   *timer.Driver
	monitor  *Monitor
	pool     *WorkerPool

	lifecycle *bootstrap.DefaultLifecycleManager
	started   atomic.Bool

	idleOnce sync.Once
	idle     chan struct{}
}

// New builds an engine from cfg. Nothing runs until Start.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if cfg.Threads < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidThreads, cfg.Threads)
	}
	if cfg.Weights == nil {
		cfg.Weights = DefaultWeights
	}

	e := &Engine{
		cfg:       cfg,
		logger:    log.DefaultLogger,
		lifecycle: bootstrap.NewLifecycleManager(),
		idle:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.meter != nil {
		metrics, err := metric.NewRuntimeMetric(e.meter)
		if err != nil {
			return nil, fmt.Errorf("create runtime metrics: %w", err)
		}
		e.metrics = metrics
	}

	e.gq = core.NewGlobalQueue()
	e.registry = core.NewRegistry(cfg.Harbor, e.gq,
		core.WithCapacity(cfg.MailboxCapacity),
		core.WithOverloadThreshold(cfg.OverloadThreshold))
	e.waker = NewWaker(cfg.Threads, e.gq)
	e.gq.SetNotifier(e.waker.notifier(cfg.WakeBusy))

	e.wheel = timer.NewWheel(e.registry, append([]timer.Option{timer.WithLogger(e.logger)}, e.timerOpts...)...)
	e.driver = timer.NewDriver(e.wheel, e.waker, cfg.TimerInterval)
	if cfg.ExitWhenIdle {
		e.driver.SetAbort(e.drained)
	}

	e.monitor = NewMonitor(cfg.Threads, cfg.StallInterval, e.registry, e.metrics)
	e.pool = NewWorkerPool(e.registry, e.waker, e.monitor, cfg.Weights, e.metrics, e.logger)

	if err := e.registerServices(); err != nil {
		return nil, err
	}
	e.lifecycle.AddListener(e.logEvent)
	return e, nil
}

func (e *Engine) registerServices() error {
	workers := &routine{name: "workers", run: e.pool.Run, onStop: e.waker.Quit}
	monitor := &routine{name: "monitor", run: e.monitor.Run}
	ticker := &routine{name: "timer", run: e.runTimer}

	errs := multierr.Combine(
		e.lifecycle.Register(workers),
		e.lifecycle.Register(monitor, workers.name),
		e.lifecycle.Register(ticker, workers.name),
	)
	if e.metrics != nil {
		var reg otelmetric.Registration
		errs = multierr.Append(errs, e.lifecycle.Register(bootstrap.ServiceFunc{
			ServiceName: "metrics",
			OnStart: func(context.Context) error {
				var err error
				reg, err = e.metrics.Observe(e.meter, e.snapshot)
				return err
			},
			OnStop: func(context.Context) error {
				return reg.Unregister()
			},
		}))
	}
	return errs
}

// Register adds an external service, such as a gate, started after the
// workers and stopped before them.
func (e *Engine) Register(service bootstrap.Service, deps ...string) error {
	if e.started.Load() {
		return ErrAlreadyStarted
	}
	return e.lifecycle.Register(service, append([]string{"workers"}, deps...)...)
}

// Start launches every service in dependency order.
func (e *Engine) Start(ctx context.Context) error {
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if err := e.lifecycle.Start(ctx); err != nil {
		return err
	}
	e.logger.Infof("engine started with %d workers, harbor %d", e.cfg.Threads, e.cfg.Harbor)
	return nil
}

// Stop stops every service in reverse order. Parked workers are woken and
// exit after their current batch.
func (e *Engine) Stop(ctx context.Context) error {
	err := e.lifecycle.Stop(ctx)
	if err != nil {
		e.logger.Errorf("engine stopped with errors: %v", err)
		return err
	}
	e.logger.Info("engine stopped")
	return nil
}

// Run starts the engine and blocks until ctx is done or, with
// ExitWhenIdle, the last actor retired. It then stops the engine.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-e.idle:
		e.logger.Info("no actors left, shutting down")
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return e.Stop(stopCtx)
}

// Idle is closed when the engine exits because no actors are left.
func (e *Engine) Idle() <-chan struct{} {
	return e.idle
}

// Registry returns the actor registry.
func (e *Engine) Registry() *core.Registry {
	return e.registry
}

// Timer returns the timing wheel.
func (e *Engine) Timer() *timer.Wheel {
	return e.wheel
}

// Waker returns the wake coordinator, for event sources outside the pool.
func (e *Engine) Waker() *Waker {
	return e.waker
}

// Monitor returns the stall monitor.
func (e *Engine) Monitor() *Monitor {
	return e.monitor
}

// Timeout schedules a response envelope for target after delta ticks of
// 1/100 second.
func (e *Engine) Timeout(target core.ActorID, delta int, session int32) {
	e.wheel.Timeout(target, delta, session)
}

func (e *Engine) runTimer(ctx context.Context) error {
	err := e.driver.Run(ctx)
	if ctx.Err() == nil {
		e.idleOnce.Do(func() { close(e.idle) })
	}
	return err
}

// drained reports whether actors existed and all of them have retired.
func (e *Engine) drained() bool {
	return e.registry.Count() == 0 && e.registry.Created() > 0
}

func (e *Engine) snapshot() metric.Snapshot {
	return metric.Snapshot{
		PendingMailboxes: int64(e.gq.Len()),
		SleepingWorkers:  int64(e.waker.Sleeping()),
		PendingTimers:    int64(e.wheel.Pending()),
		Actors:           int64(e.registry.Count()),
	}
}

func (e *Engine) logEvent(event bootstrap.LifecycleEvent) {
	if event.Error != nil {
		e.logger.Errorf("%s %s: %v", event.Service, event.Type, event.Error)
		return
	}
	e.logger.Debugf("%s %s", event.Service, event.Type)
}
