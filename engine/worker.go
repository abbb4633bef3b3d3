package engine

import (
	"context"

	"github.com/najoast/skyrt/core"
	"github.com/najoast/skyrt/log"
	"github.com/najoast/skyrt/metric"
	"golang.org/x/sync/errgroup"
)

// DefaultWeights is the per-worker batch weight table. Workers beyond the
// table get weight 0.
var DefaultWeights = []int{
	-1, -1, -1, -1, 0, 0, 0, 0,
	1, 1, 1, 1, 1, 1, 1, 1,
	2, 2, 2, 2, 2, 2, 2, 2,
	3, 3, 3, 3, 3, 3, 3, 3,
}

// WeightFor returns the weight of worker i under table.
func WeightFor(table []int, i int) int {
	if i < len(table) {
		return table[i]
	}
	return 0
}

// MaxWeight is the largest effective weight. Larger weights are clamped.
const MaxWeight = 30

// BatchSize returns how many envelopes a worker of the given weight takes
// from one mailbox per turn.
func BatchSize(weight int) int {
	if weight <= 0 {
		return 1
	}
	if weight > MaxWeight {
		weight = MaxWeight
	}
	return 1 << weight
}

// WorkerPool runs a fixed set of workers draining the global queue.
type WorkerPool struct {
	registry *core.Registry
	gq       *core.GlobalQueue
	waker    *Waker
	monitor  *Monitor
	weights  []int
	metrics  *metric.RuntimeMetric
	logger   log.Logger
}

// NewWorkerPool creates a pool with one worker per monitor slot.
func NewWorkerPool(registry *core.Registry, waker *Waker, monitor *Monitor, weights []int, metrics *metric.RuntimeMetric, logger log.Logger) *WorkerPool {
	if logger == nil {
		logger = log.DiscardLogger
	}
	return &WorkerPool{
		registry: registry,
		gq:       registry.GlobalQueue(),
		waker:    waker,
		monitor:  monitor,
		weights:  weights,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run starts the workers and blocks until all of them exit. Workers exit
// once the waker quits.
func (p *WorkerPool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.waker.Total(); i++ {
		i := i
		slot := p.monitor.Slot(i)
		weight := WeightFor(p.weights, i)
		g.Go(func() error {
			p.logger.Debugf("worker %d started with weight %d", i, weight)
			p.work(gctx, slot, weight)
			return nil
		})
	}
	return g.Wait()
}

func (p *WorkerPool) work(ctx context.Context, slot *Slot, weight int) {
	for !p.waker.Quitting() {
		mb := p.gq.Pop()
		if mb == nil {
			p.waker.Park()
			continue
		}
		p.dispatch(ctx, slot, weight, mb)
	}
}

// dispatch runs one batch from mb. The caller owns mb exclusively until it
// is relinked or left idle.
func (p *WorkerPool) dispatch(ctx context.Context, slot *Slot, weight int, mb *core.Mailbox) {
	owner := mb.Owner()
	c, exists := p.registry.Lookup(owner)
	if !exists {
		mb.Release(p.dropper(owner))
		return
	}

	batch := BatchSize(weight)
	handled := 0
	defer func() {
		if p.metrics != nil && handled > 0 {
			p.metrics.Dispatched(ctx, int64(handled))
		}
	}()

	for i := 0; i < batch; i++ {
		env, ok := mb.Pop()
		if !ok {
			// mailbox went idle in Pop
			p.releaseRetired(mb)
			return
		}
		if overload := mb.Overload(); overload > 0 {
			p.registry.Report(owner, "May overload, message queue length = %d", overload)
			if p.metrics != nil {
				p.metrics.Overload(ctx)
			}
		}

		slot.Trigger(env.Source, owner)
		err := c.Invoke(ctx, &env)
		slot.Trigger(0, 0)
		handled++

		if err != nil {
			p.handlerFailed(ctx, c, &env, err)
		}
	}

	if mb.Settle() {
		p.gq.Push(mb)
		return
	}
	p.releaseRetired(mb)
}

// releaseRetired closes an idle mailbox whose owner retired while this
// worker held it.
func (p *WorkerPool) releaseRetired(mb *core.Mailbox) {
	if mb.Released() && !mb.Closed() {
		mb.Release(p.dropper(mb.Owner()))
	}
}

func (p *WorkerPool) handlerFailed(ctx context.Context, c *core.Context, env *core.Envelope, err error) {
	if p.metrics != nil {
		p.metrics.HandlerFailure(ctx)
	}
	if c.Name() == core.LoggerName {
		p.logger.Errorf("logger service %s failed: %v", c.ID(), err)
		return
	}
	p.registry.Report(c.ID(), "%s message from %s failed: %v", env.Type(), env.Source, err)
}

// dropper returns the callback that answers every envelope left in a dead
// actor's mailbox with an error envelope to its sender.
func (p *WorkerPool) dropper(owner core.ActorID) func(core.Envelope) {
	return func(env core.Envelope) {
		if env.Source == 0 {
			return
		}
		_ = p.registry.Send(env.Source, core.NewEnvelope(owner, env.Session, core.MessageTypeError, nil))
	}
}
