// Package metric holds the OpenTelemetry instruments exported by the runtime.
package metric

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// RuntimeMetric groups the instruments describing scheduler health.
//
// Counters are recorded inline by the worker pool and the stall monitor:
//   - runtime.dispatched.count        envelopes handed to handlers
//   - runtime.overload.count          mailbox overload reports
//   - runtime.stalls.count            endless-loop reports
//   - runtime.handler.failures.count  handler errors and panics
//
// Gauges are observed through a callback, see Observe:
//   - runtime.mailboxes.pending
//   - runtime.workers.sleeping
//   - runtime.timers.pending
//   - runtime.actors.count
type RuntimeMetric struct {
	dispatched      metric.Int64Counter
	overload        metric.Int64Counter
	stalls          metric.Int64Counter
	handlerFailures metric.Int64Counter

	pendingMailboxes metric.Int64ObservableGauge
	sleepingWorkers  metric.Int64ObservableGauge
	pendingTimers    metric.Int64ObservableGauge
	actors           metric.Int64ObservableGauge
}

// NewRuntimeMetric creates the instruments on meter. It returns an error if
// any instrument cannot be created.
func NewRuntimeMetric(meter metric.Meter) (*RuntimeMetric, error) {
	var instruments RuntimeMetric
	var err error

	if instruments.dispatched, err = meter.Int64Counter(
		"runtime.dispatched.count",
		metric.WithDescription("Total number of envelopes handed to actor handlers"),
	); err != nil {
		return nil, err
	}

	if instruments.overload, err = meter.Int64Counter(
		"runtime.overload.count",
		metric.WithDescription("Total number of mailbox overload reports"),
	); err != nil {
		return nil, err
	}

	if instruments.stalls, err = meter.Int64Counter(
		"runtime.stalls.count",
		metric.WithDescription("Total number of handler invocations reported as endless"),
	); err != nil {
		return nil, err
	}

	if instruments.handlerFailures, err = meter.Int64Counter(
		"runtime.handler.failures.count",
		metric.WithDescription("Total number of handler errors and recovered panics"),
	); err != nil {
		return nil, err
	}

	if instruments.pendingMailboxes, err = meter.Int64ObservableGauge(
		"runtime.mailboxes.pending",
		metric.WithDescription("Mailboxes linked in the global queue"),
	); err != nil {
		return nil, err
	}

	if instruments.sleepingWorkers, err = meter.Int64ObservableGauge(
		"runtime.workers.sleeping",
		metric.WithDescription("Workers parked waiting for work"),
	); err != nil {
		return nil, err
	}

	if instruments.pendingTimers, err = meter.Int64ObservableGauge(
		"runtime.timers.pending",
		metric.WithDescription("Timeouts scheduled and not yet fired"),
	); err != nil {
		return nil, err
	}

	if instruments.actors, err = meter.Int64ObservableGauge(
		"runtime.actors.count",
		metric.WithDescription("Live actors"),
	); err != nil {
		return nil, err
	}

	return &instruments, nil
}

// Dispatched adds n handled envelopes.
func (x *RuntimeMetric) Dispatched(ctx context.Context, n int64) {
	x.dispatched.Add(ctx, n)
}

// Overload counts one overload report.
func (x *RuntimeMetric) Overload(ctx context.Context) {
	x.overload.Add(ctx, 1)
}

// Stall counts one endless-loop report.
func (x *RuntimeMetric) Stall(ctx context.Context) {
	x.stalls.Add(ctx, 1)
}

// HandlerFailure counts one handler error or panic.
func (x *RuntimeMetric) HandlerFailure(ctx context.Context) {
	x.handlerFailures.Add(ctx, 1)
}

// Snapshot is the gauge state sampled on each collection.
type Snapshot struct {
	PendingMailboxes int64
	SleepingWorkers  int64
	PendingTimers    int64
	Actors           int64
}

// Observe registers a callback on meter that reports the gauges from
// sample. The returned registration must be unregistered on shutdown.
func (x *RuntimeMetric) Observe(meter metric.Meter, sample func() Snapshot) (metric.Registration, error) {
	return meter.RegisterCallback(func(_ context.Context, observer metric.Observer) error {
		s := sample()
		observer.ObserveInt64(x.pendingMailboxes, s.PendingMailboxes)
		observer.ObserveInt64(x.sleepingWorkers, s.SleepingWorkers)
		observer.ObserveInt64(x.pendingTimers, s.PendingTimers)
		observer.ObserveInt64(x.actors, s.Actors)
		return nil
	}, x.pendingMailboxes, x.sleepingWorkers, x.pendingTimers, x.actors)
}
