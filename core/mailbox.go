package core

import (
	"sync"
)

const (
	// DefaultMailboxCapacity is the initial ring size of a mailbox.
	DefaultMailboxCapacity = 64

	// DefaultOverloadThreshold is the backlog above which a mailbox first
	// reports overload.
	DefaultOverloadThreshold = 1024
)

// MailboxOption configures a Mailbox.
type MailboxOption func(*Mailbox)

// WithCapacity sets the initial ring size.
func WithCapacity(n int) MailboxOption {
	return func(m *Mailbox) {
		if n > 0 {
			m.queue = make([]Envelope, n)
		}
	}
}

// WithOverloadThreshold sets the base overload threshold.
func WithOverloadThreshold(n int) MailboxOption {
	return func(m *Mailbox) {
		if n > 0 {
			m.baseThreshold = n
			m.overloadThreshold = n
		}
	}
}

// Mailbox is the per-actor ring buffer of envelopes.
//
// A mailbox is idle, linked in the global queue, or being drained by one
// worker. inGlobal covers the last two states: it is set by the push that
// finds the mailbox idle and cleared only by the pop that finds it empty.
type Mailbox struct {
	mu sync.Mutex

	owner ActorID
	gq    *GlobalQueue

	queue []Envelope
	head  int
	tail  int

	inGlobal bool
	release  bool
	closed   bool

	overload          int
	overloadThreshold int
	baseThreshold     int

	// guarded by gq.mu
	next   *Mailbox
	linked bool
}

// NewMailbox creates an idle mailbox for owner that links itself into gq
// whenever work arrives.
func NewMailbox(owner ActorID, gq *GlobalQueue, opts ...MailboxOption) *Mailbox {
	m := &Mailbox{
		owner:             owner,
		gq:                gq,
		queue:             make([]Envelope, DefaultMailboxCapacity),
		baseThreshold:     DefaultOverloadThreshold,
		overloadThreshold: DefaultOverloadThreshold,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Owner returns the actor handle owning the mailbox.
func (m *Mailbox) Owner() ActorID {
	return m.owner
}

// Push appends env at the tail, doubling the ring when it fills up. An idle
// mailbox is linked into the global queue and the notifier is told.
func (m *Mailbox) Push(env Envelope) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMailboxClosed
	}

	m.queue[m.tail] = env
	m.tail++
	if m.tail >= len(m.queue) {
		m.tail = 0
	}
	if m.head == m.tail {
		m.expand()
	}

	for backlog := m.lengthLocked(); backlog > m.overloadThreshold; {
		m.overload = backlog
		m.overloadThreshold *= 2
	}

	link := !m.inGlobal
	if link {
		m.inGlobal = true
	}
	m.mu.Unlock()

	if link {
		m.gq.Push(m)
		m.gq.notify()
	}
	return nil
}

// Pop removes the head envelope. When the mailbox is empty it returns false
// and the mailbox becomes idle.
func (m *Mailbox) Pop() (Envelope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.head != m.tail {
		env := m.queue[m.head]
		m.queue[m.head] = Envelope{}
		m.head++
		if m.head >= len(m.queue) {
			m.head = 0
		}
		return env, true
	}

	m.overloadThreshold = m.baseThreshold
	m.inGlobal = false
	return Envelope{}, false
}

// Overload returns the backlog recorded at the last threshold crossing and
// clears it. Zero means no crossing since the previous call.
func (m *Mailbox) Overload() int {
	m.mu.Lock()
	overload := m.overload
	m.overload = 0
	m.mu.Unlock()
	return overload
}

// Len returns the current backlog.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lengthLocked()
}

// Cap returns the current ring size.
func (m *Mailbox) Cap() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// OverloadThreshold returns the current threshold.
func (m *Mailbox) OverloadThreshold() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overloadThreshold
}

// Released reports whether MarkRelease was called.
func (m *Mailbox) Released() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.release
}

// Closed reports whether the mailbox has been drained after release.
func (m *Mailbox) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MarkRelease flags the mailbox for destruction. An idle mailbox is linked so
// that a worker reaches it and calls Release. Marking twice panics.
func (m *Mailbox) MarkRelease() {
	m.mu.Lock()
	if m.release {
		m.mu.Unlock()
		panic("core: mailbox " + m.owner.String() + " released twice")
	}
	m.release = true
	link := !m.inGlobal
	if link {
		m.inGlobal = true
	}
	m.mu.Unlock()

	if link {
		m.gq.Push(m)
		m.gq.notify()
	}
}

// Release is called by the worker holding a mailbox whose owner is gone. A
// mailbox marked for release is drained into drop and closed; otherwise the
// owner is still being torn down and the mailbox goes back to the queue.
func (m *Mailbox) Release(drop func(Envelope)) {
	m.mu.Lock()
	if !m.release {
		m.mu.Unlock()
		m.gq.Push(m)
		m.gq.notify()
		return
	}

	remaining := make([]Envelope, 0, m.lengthLocked())
	for m.head != m.tail {
		remaining = append(remaining, m.queue[m.head])
		m.head++
		if m.head >= len(m.queue) {
			m.head = 0
		}
	}
	m.closed = true
	m.inGlobal = false
	m.queue = nil
	m.head, m.tail = 0, 0
	m.mu.Unlock()

	if drop == nil {
		return
	}
	for _, env := range remaining {
		drop(env)
	}
}

// Settle is called by the draining worker after a batch. It reports whether
// work is still pending; if not, the mailbox becomes idle atomically with
// the check so that the next push relinks it.
func (m *Mailbox) Settle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.head != m.tail {
		return true
	}
	m.overloadThreshold = m.baseThreshold
	m.inGlobal = false
	return false
}

func (m *Mailbox) lengthLocked() int {
	if m.head <= m.tail {
		return m.tail - m.head
	}
	return m.tail + len(m.queue) - m.head
}

// expand doubles the ring. Called with the lock held when the ring is full.
func (m *Mailbox) expand() {
	size := len(m.queue)
	grown := make([]Envelope, size*2)
	for i := 0; i < size; i++ {
		grown[i] = m.queue[(m.head+i)%size]
	}
	m.head = 0
	m.tail = size
	m.queue = grown
}
