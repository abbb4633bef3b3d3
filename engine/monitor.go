package engine

import (
	"context"
	"sync"
	"time"

	"github.com/najoast/skyrt/core"
	"github.com/najoast/skyrt/metric"
	"go.uber.org/atomic"
)

// DefaultStallInterval is the stall monitor sampling period.
const DefaultStallInterval = 5 * time.Second

// staleChecks is how many consecutive samples must see the same in-flight
// invocation before it is reported.
const staleChecks = 2

// Slot is one worker's in-flight dispatch record. The worker writes it
// before and after each handler call; the monitor only reads it.
type Slot struct {
	source  atomic.Uint32
	dest    atomic.Uint32
	version atomic.Uint32
}

// Trigger records a dispatch from source to dest. Trigger(0, 0) marks the
// worker as between invocations.
func (s *Slot) Trigger(source, dest core.ActorID) {
	s.source.Store(uint32(source))
	s.dest.Store(uint32(dest))
	s.version.Inc()
}

type slotState struct {
	baseline    uint32
	stale       int
	reported    uint32
	hasReported bool
}

// Monitor samples worker slots and reports handlers that did not return
// for two full periods. Reports are advisory.
type Monitor struct {
	mu       sync.Mutex
	slots    []*Slot
	state    []slotState
	interval time.Duration

	registry *core.Registry
	metrics  *metric.RuntimeMetric
}

// NewMonitor creates a monitor with one slot per worker.
func NewMonitor(workers int, interval time.Duration, registry *core.Registry, metrics *metric.RuntimeMetric) *Monitor {
	if interval <= 0 {
		interval = DefaultStallInterval
	}
	m := &Monitor{
		slots:    make([]*Slot, workers),
		state:    make([]slotState, workers),
		interval: interval,
		registry: registry,
		metrics:  metrics,
	}
	for i := range m.slots {
		m.slots[i] = &Slot{}
	}
	return m
}

// Slot returns worker i's slot.
func (m *Monitor) Slot(i int) *Slot {
	return m.slots[i]
}

// Check takes one sample of every slot and returns how many stalls it
// reported.
func (m *Monitor) Check() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	reported := 0
	for i, slot := range m.slots {
		st := &m.state[i]
		version := slot.version.Load()
		if version != st.baseline {
			st.baseline = version
			st.stale = 0
			continue
		}

		dest := core.ActorID(slot.dest.Load())
		if dest == 0 {
			continue
		}
		st.stale++
		if st.stale < staleChecks || (st.hasReported && st.reported == version) {
			continue
		}

		source := core.ActorID(slot.source.Load())
		m.registry.MarkEndless(dest)
		m.registry.Report(0, "A message from [ %s ] to [ %s ] maybe in an endless loop (version = %d)",
			source, dest, version)
		if m.metrics != nil {
			m.metrics.Stall(context.Background())
		}
		st.reported = version
		st.hasReported = true
		st.stale = 0
		reported++
	}
	return reported
}

// Run samples every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Check()
		}
	}
}
