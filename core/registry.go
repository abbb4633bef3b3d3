package core

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/atomic"
)

// LoggerName is the well-known name of the diagnostic sink actor.
const LoggerName = "logger"

// Registry maps actor handles to their runtime context. It allocates
// handles, keeps names, and is the local Sender.
type Registry struct {
	mu     sync.RWMutex
	actors map[ActorID]*Context
	names  map[string]ActorID

	harbor    uint32
	nextIndex uint32

	gq          *GlobalQueue
	mailboxOpts []MailboxOption

	total   atomic.Int32
	created atomic.Uint64
}

var _ Sender = (*Registry)(nil)

// NewRegistry creates a registry whose handles carry the given harbor id and
// whose mailboxes link into gq.
func NewRegistry(harbor uint8, gq *GlobalQueue, opts ...MailboxOption) *Registry {
	return &Registry{
		actors:      make(map[ActorID]*Context),
		names:       make(map[string]ActorID),
		harbor:      uint32(harbor) << HarborShift,
		nextIndex:   1,
		gq:          gq,
		mailboxOpts: opts,
	}
}

// GlobalQueue returns the queue this registry's mailboxes link into.
func (r *Registry) GlobalQueue() *GlobalQueue {
	return r.gq
}

// Register creates an actor for handler and optionally names it.
func (r *Registry) Register(handler MessageHandler, name string) (*Context, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if name != "" {
		if _, exists := r.names[name]; exists {
			return nil, fmt.Errorf("register %q: %w", name, ErrNameTaken)
		}
	}

	id, err := r.allocateLocked()
	if err != nil {
		return nil, err
	}

	c := newContext(id, handler, NewMailbox(id, r.gq, r.mailboxOpts...))
	r.actors[id] = c
	if name != "" {
		r.names[name] = id
		c.name.Store(name)
	}
	r.total.Inc()
	r.created.Inc()
	return c, nil
}

func (r *Registry) allocateLocked() (ActorID, error) {
	for i := 0; i < HandleMask; i++ {
		index := r.nextIndex & HandleMask
		r.nextIndex++
		if index == 0 {
			continue
		}
		id := ActorID(r.harbor | index)
		if _, used := r.actors[id]; !used {
			return id, nil
		}
	}
	return 0, ErrHandleExhausted
}

// Retire removes the actor and marks its mailbox for release. The mailbox is
// drained and closed by the next worker that picks it up. Both happen under
// the registry lock, so a failed Lookup always sees a marked mailbox.
func (r *Registry) Retire(id ActorID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.actors[id]
	if !exists {
		return fmt.Errorf("retire %s: %w", id, ErrActorNotFound)
	}
	c.mailbox.MarkRelease()
	delete(r.actors, id)
	for name, named := range r.names {
		if named == id {
			delete(r.names, name)
		}
	}
	r.total.Dec()
	return nil
}

// Lookup finds an actor by handle.
func (r *Registry) Lookup(id ActorID) (*Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, exists := r.actors[id]
	return c, exists
}

// Name binds name to an existing actor.
func (r *Registry) Name(id ActorID, name string) error {
	if name == "" {
		return ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.actors[id]
	if !exists {
		return fmt.Errorf("name %s: %w", id, ErrActorNotFound)
	}
	if _, taken := r.names[name]; taken {
		return fmt.Errorf("name %q: %w", name, ErrNameTaken)
	}
	r.names[name] = id
	if c.name.Load() == "" {
		c.name.Store(name)
	}
	return nil
}

// FindName resolves a name to a handle.
func (r *Registry) FindName(name string) (ActorID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, exists := r.names[name]
	return id, exists
}

// Send pushes env into the target's mailbox.
func (r *Registry) Send(target ActorID, env Envelope) error {
	c, exists := r.Lookup(target)
	if !exists {
		return fmt.Errorf("send to %s: %w", target, ErrActorNotFound)
	}
	if err := c.mailbox.Push(env); err != nil {
		return fmt.Errorf("send to %s: %w", target, err)
	}
	return nil
}

// SendName resolves name and sends env to it.
func (r *Registry) SendName(name string, env Envelope) error {
	id, exists := r.FindName(name)
	if !exists {
		return fmt.Errorf("send to %q: %w", name, ErrActorNotFound)
	}
	return r.Send(id, env)
}

// MarkEndless flags an actor whose handler did not return.
func (r *Registry) MarkEndless(id ActorID) {
	if c, exists := r.Lookup(id); exists {
		c.endless.Store(true)
	}
}

// Count returns the number of live actors.
func (r *Registry) Count() int {
	return int(r.total.Load())
}

// Created returns how many actors were ever registered.
func (r *Registry) Created() uint64 {
	return r.created.Load()
}

// List returns all live handles in ascending order.
func (r *Registry) List() []ActorID {
	r.mu.RLock()
	ids := make([]ActorID, 0, len(r.actors))
	for id := range r.actors {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Stats returns statistics for all live actors.
func (r *Registry) Stats() []ActorStats {
	var stats []ActorStats
	for _, id := range r.List() {
		if c, exists := r.Lookup(id); exists {
			stats = append(stats, c.Stats())
		}
	}
	return stats
}
