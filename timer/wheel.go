// Package timer provides the hierarchical timing wheel that turns timeouts
// into response envelopes for actors.
package timer

import (
	"math"
	"sync"
	"time"

	"github.com/najoast/skyrt/core"
	"github.com/najoast/skyrt/log"
	"go.uber.org/atomic"
)

const (
	nearShift  = 8
	near       = 1 << nearShift
	levelShift = 6
	level      = 1 << levelShift
	nearMask   = near - 1
	levelMask  = level - 1
	levels     = 4

	nilNode = -1
)

// ref addresses a slab node. gen must match the node's generation, so a
// reference kept past release is caught when resolved.
type ref struct {
	idx int32
	gen uint32
}

var nilRef = ref{idx: nilNode}

// node is one slab entry. Live nodes sit in exactly one bucket; free nodes
// are chained through next on the free list.
type node struct {
	expire  uint32
	target  core.ActorID
	session int32
	next    ref
	gen     uint32
	live    bool
}

type bucket struct {
	head ref
	tail ref
}

type event struct {
	target  core.ActorID
	session int32
}

// Clock returns a monotonic time in centiseconds.
type Clock func() uint64

// Option configures a Wheel.
type Option func(*Wheel)

// WithClock replaces the monotonic centisecond source.
func WithClock(clock Clock) Option {
	return func(w *Wheel) {
		if clock != nil {
			w.clock = clock
		}
	}
}

// WithLogger sets the logger used for clock anomalies.
func WithLogger(logger log.Logger) Option {
	return func(w *Wheel) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Wheel is a hierarchical timing wheel with 1/100s ticks: 256 near buckets
// addressed by the low 8 bits of the tick counter, then 4 levels of 64
// buckets addressed by successive 6 bit groups.
type Wheel struct {
	mu     sync.Mutex
	nodes  []node
	free   int32
	near   [near]bucket
	far    [levels][level]bucket
	tick   uint32
	sender core.Sender

	pending atomic.Int64

	clock        Clock
	logger       log.Logger
	startTime    uint64
	current      atomic.Uint64
	currentPoint uint64
}

// NewWheel creates a wheel that delivers expired timeouts through sender.
func NewWheel(sender core.Sender, opts ...Option) *Wheel {
	w := &Wheel{
		free:   nilNode,
		sender: sender,
		logger: log.DefaultLogger,
	}
	for i := range w.near {
		w.near[i] = bucket{head: nilRef, tail: nilRef}
	}
	for i := range w.far {
		for j := range w.far[i] {
			w.far[i][j] = bucket{head: nilRef, tail: nilRef}
		}
	}

	base := time.Now()
	w.clock = func() uint64 {
		return uint64(time.Since(base) / (10 * time.Millisecond))
	}
	for _, opt := range opts {
		opt(w)
	}

	now := time.Now()
	w.startTime = uint64(now.Unix())
	w.current.Store(uint64(now.Nanosecond()) / uint64(10*time.Millisecond))
	w.currentPoint = w.clock()
	return w
}

// Timeout schedules a response envelope with session for target after delta
// ticks. A delta of zero or less is delivered immediately; deltas above
// math.MaxUint32 are clamped to it.
func (w *Wheel) Timeout(target core.ActorID, delta int, session int32) {
	if delta <= 0 {
		w.deliver(event{target: target, session: session})
		return
	}
	ticks := uint64(delta)
	if ticks > math.MaxUint32 {
		ticks = math.MaxUint32
	}

	w.mu.Lock()
	r := w.alloc()
	n := w.resolve(r)
	n.expire = w.tick + uint32(ticks)
	n.target = target
	n.session = session
	w.addNode(r)
	w.mu.Unlock()
}

// AdvanceOneTick moves the wheel forward by one tick and delivers everything
// that became due. Deliveries happen in bucket order with the lock released.
func (w *Wheel) AdvanceOneTick() {
	w.mu.Lock()
	// near bucket at the current tick is normally empty; it is only filled
	// when a level-3 cascade lands on tick 0
	due := w.collect(nil)
	w.shift()
	due = w.collect(due)
	w.mu.Unlock()

	for _, ev := range due {
		w.deliver(ev)
	}
}

// Update converts elapsed monotonic time into ticks and advances once per
// tick. A clock that went backwards is logged and resynchronised.
func (w *Wheel) Update() {
	cp := w.clock()
	if cp < w.currentPoint {
		w.logger.Errorf("timer: time diff error, change from %d to %d", w.currentPoint, cp)
		w.currentPoint = cp
		return
	}
	if cp == w.currentPoint {
		return
	}

	diff := cp - w.currentPoint
	w.currentPoint = cp
	w.current.Add(diff)
	for i := uint64(0); i < diff; i++ {
		w.AdvanceOneTick()
	}
}

// Now returns centiseconds elapsed since the wheel started, offset by the
// sub-second part of the start time.
func (w *Wheel) Now() uint64 {
	return w.current.Load()
}

// StartTime returns the wall clock start time in seconds.
func (w *Wheel) StartTime() uint64 {
	return w.startTime
}

// Tick returns the current tick counter.
func (w *Wheel) Tick() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tick
}

// Pending returns the number of scheduled timeouts not yet fired.
func (w *Wheel) Pending() int {
	return int(w.pending.Load())
}

func (w *Wheel) deliver(ev event) {
	// unknown targets are dropped
	_ = w.sender.Send(ev.target, core.NewEnvelope(0, ev.session, core.MessageTypeResponse, nil))
}

func (w *Wheel) alloc() ref {
	var idx int32
	if w.free != nilNode {
		idx = w.free
		w.free = w.nodes[idx].next.idx
	} else {
		w.nodes = append(w.nodes, node{})
		idx = int32(len(w.nodes) - 1)
	}
	n := &w.nodes[idx]
	n.next = nilRef
	n.live = true
	w.pending.Inc()
	return ref{idx: idx, gen: n.gen}
}

// resolve returns the node r points at. A freed or reused node means a
// bucket still links a released timer, which is a broken invariant.
func (w *Wheel) resolve(r ref) *node {
	n := &w.nodes[r.idx]
	if !n.live || n.gen != r.gen {
		panic("timer: stale node reference")
	}
	return n
}

func (w *Wheel) release(r ref) {
	n := w.resolve(r)
	n.live = false
	n.gen++
	n.next = ref{idx: w.free}
	w.free = r.idx
	w.pending.Dec()
}

func (w *Wheel) link(b *bucket, r ref) {
	w.resolve(r).next = nilRef
	if b.tail.idx == nilNode {
		b.head = r
	} else {
		w.resolve(b.tail).next = r
	}
	b.tail = r
}

// detach detaches the whole chain of b and returns its head.
func detach(b *bucket) ref {
	head := b.head
	b.head, b.tail = nilRef, nilRef
	return head
}

func (w *Wheel) addNode(r ref) {
	expire := w.resolve(r).expire
	current := w.tick

	if expire|nearMask == current|nearMask {
		w.link(&w.near[expire&nearMask], r)
		return
	}

	mask := uint32(near << levelShift)
	i := 0
	for ; i < levels-1; i++ {
		if expire|(mask-1) == current|(mask-1) {
			break
		}
		mask <<= levelShift
	}
	w.link(&w.far[i][(expire>>(nearShift+i*levelShift))&levelMask], r)
}

// moveList re-adds every node of a far bucket relative to the current tick.
func (w *Wheel) moveList(lvl, idx int) {
	for cur := detach(&w.far[lvl][idx]); cur.idx != nilNode; {
		next := w.resolve(cur).next
		w.addNode(cur)
		cur = next
	}
}

func (w *Wheel) shift() {
	mask := uint32(near)
	w.tick++
	ct := w.tick
	if ct == 0 {
		w.moveList(levels-1, 0)
		return
	}

	t := ct >> nearShift
	for i := 0; ct&(mask-1) == 0 && i < levels; i++ {
		idx := int(t & levelMask)
		if idx != 0 {
			w.moveList(i, idx)
			break
		}
		mask <<= levelShift
		t >>= levelShift
	}
}

// collect drains the near bucket of the current tick into due, freeing each
// node.
func (w *Wheel) collect(due []event) []event {
	for cur := detach(&w.near[w.tick&nearMask]); cur.idx != nilNode; {
		n := w.resolve(cur)
		next := n.next
		due = append(due, event{target: n.target, session: n.session})
		w.release(cur)
		cur = next
	}
	return due
}
