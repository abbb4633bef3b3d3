package engine

import (
	"sync"

	"github.com/najoast/skyrt/core"
	"go.uber.org/atomic"
)

// Waker parks idle workers and wakes them when work arrives.
type Waker struct {
	mu   sync.Mutex
	cond *sync.Cond

	total    int
	sleeping atomic.Int32
	quit     atomic.Bool

	gq *core.GlobalQueue
}

// NewWaker creates a waker for total workers draining gq.
func NewWaker(total int, gq *core.GlobalQueue) *Waker {
	w := &Waker{total: total, gq: gq}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Total returns the number of workers.
func (w *Waker) Total() int {
	return w.total
}

// Sleeping returns the number of parked workers.
func (w *Waker) Sleeping() int {
	return int(w.sleeping.Load())
}

// Wakeup signals one parked worker if at least total-busy workers sleep.
// busy is the caller's estimate of workers that are already running.
func (w *Waker) Wakeup(busy int) {
	if int(w.sleeping.Load()) >= w.total-busy {
		w.mu.Lock()
		w.cond.Signal()
		w.mu.Unlock()
	}
}

// Park blocks the calling worker until woken, unless work is pending or the
// waker quit. The sleep count is raised before the queue is checked so a
// concurrent push either sees the sleeper or is seen by it.
func (w *Waker) Park() {
	w.mu.Lock()
	w.sleeping.Inc()
	if !w.quit.Load() && w.gq.Empty() {
		w.cond.Wait()
	}
	w.sleeping.Dec()
	w.mu.Unlock()
}

// Quit wakes every parked worker and makes further Park calls return.
func (w *Waker) Quit() {
	w.mu.Lock()
	w.quit.Store(true)
	w.cond.Broadcast()
	w.mu.Unlock()
}

// Quitting reports whether Quit was called.
func (w *Waker) Quitting() bool {
	return w.quit.Load()
}

// notifier adapts Wakeup to core.Notifier for mailbox links.
func (w *Waker) notifier(busy int) core.Notifier {
	return core.NotifierFunc(func() { w.Wakeup(busy) })
}
