package core

import (
	"fmt"
	"sync"

	"go.uber.org/atomic"
)

// GlobalQueue is the FIFO of mailboxes that have pending work. Workers pop
// whole mailboxes from it; a mailbox is linked at most once at any time.
type GlobalQueue struct {
	mu       sync.Mutex
	head     *Mailbox
	tail     *Mailbox
	notifier Notifier

	pending atomic.Int64
}

// NewGlobalQueue creates an empty global queue.
func NewGlobalQueue() *GlobalQueue {
	return &GlobalQueue{}
}

// SetNotifier installs the callback told about newly runnable mailboxes.
func (q *GlobalQueue) SetNotifier(n Notifier) {
	q.mu.Lock()
	q.notifier = n
	q.mu.Unlock()
}

// Push appends mb at the tail. Pushing a mailbox that is already linked is
// a broken invariant and panics.
func (q *GlobalQueue) Push(mb *Mailbox) {
	q.mu.Lock()
	if mb.linked {
		q.mu.Unlock()
		panic(fmt.Sprintf("core: mailbox %s linked into the global queue twice", mb.owner))
	}
	mb.linked = true
	mb.next = nil
	if q.tail != nil {
		q.tail.next = mb
		q.tail = mb
	} else {
		q.head = mb
		q.tail = mb
	}
	q.pending.Inc()
	q.mu.Unlock()
}

// Pop detaches the head mailbox, or returns nil when nothing is pending.
func (q *GlobalQueue) Pop() *Mailbox {
	q.mu.Lock()
	mb := q.head
	if mb != nil {
		q.head = mb.next
		if q.head == nil {
			q.tail = nil
		}
		mb.next = nil
		mb.linked = false
		q.pending.Dec()
	}
	q.mu.Unlock()
	return mb
}

// Len returns the number of linked mailboxes without taking the lock.
func (q *GlobalQueue) Len() int {
	return int(q.pending.Load())
}

// Empty reports whether no mailbox is pending.
func (q *GlobalQueue) Empty() bool {
	return q.pending.Load() == 0
}

func (q *GlobalQueue) notify() {
	q.mu.Lock()
	n := q.notifier
	q.mu.Unlock()
	if n != nil {
		n.Notify()
	}
}
