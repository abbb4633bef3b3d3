package timer

import (
	"context"
	"time"
)

// DefaultInterval is how long the driver sleeps between updates.
const DefaultInterval = 2500 * time.Microsecond

// Waker wakes sleeping workers.
type Waker interface {
	Wakeup(busy int)
	Total() int
}

// Driver advances a Wheel from the monotonic clock and nudges the worker
// pool after every update.
type Driver struct {
	wheel    *Wheel
	waker    Waker
	interval time.Duration
	abort    func() bool
}

// NewDriver creates a driver for wheel. waker may be nil.
func NewDriver(wheel *Wheel, waker Waker, interval time.Duration) *Driver {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Driver{wheel: wheel, waker: waker, interval: interval}
}

// SetAbort installs a condition checked before every update; Run returns
// as soon as it holds. Must be called before Run.
func (d *Driver) SetAbort(abort func() bool) {
	d.abort = abort
}

// Run updates the wheel until ctx is done or the abort condition holds.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if d.abort != nil && d.abort() {
			return nil
		}
		d.wheel.Update()
		if d.waker != nil {
			// wake one worker only if every worker sleeps
			d.waker.Wakeup(d.waker.Total() - 1)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
