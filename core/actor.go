package core

import (
	"context"
	"fmt"

	"go.uber.org/atomic"
)

// Context is the runtime side of one actor: its handle, handler and mailbox.
type Context struct {
	id      ActorID
	handler MessageHandler
	mailbox *Mailbox

	name      atomic.String
	session   atomic.Int32
	processed atomic.Uint64
	endless   atomic.Bool
}

func newContext(id ActorID, handler MessageHandler, mailbox *Mailbox) *Context {
	return &Context{
		id:      id,
		handler: handler,
		mailbox: mailbox,
	}
}

// ID returns the actor handle.
func (c *Context) ID() ActorID {
	return c.id
}

// Name returns the name registered for the actor, or "".
func (c *Context) Name() string {
	return c.name.Load()
}

// Mailbox returns the actor's mailbox.
func (c *Context) Mailbox() *Mailbox {
	return c.mailbox
}

// NewSession allocates a positive session id, wrapping back to 1.
func (c *Context) NewSession() int32 {
	for {
		current := c.session.Load()
		next := current + 1
		if next <= 0 {
			next = 1
		}
		if c.session.CompareAndSwap(current, next) {
			return next
		}
	}
}

// Endless reports whether the stall monitor flagged this actor.
func (c *Context) Endless() bool {
	return c.endless.Load()
}

// Invoke runs the handler for one envelope. A panic inside the handler is
// recovered and returned as an error.
func (c *Context) Invoke(ctx context.Context, env *Envelope) (err error) {
	c.processed.Inc()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("actor %s panicked: %v", c.id, r)
		}
	}()
	return c.handler.HandleMessage(ctx, env)
}

// Stats returns current runtime statistics for this actor.
func (c *Context) Stats() ActorStats {
	return ActorStats{
		ID:                c.id,
		Name:              c.name.Load(),
		MessagesProcessed: c.processed.Load(),
		MailboxSize:       c.mailbox.Len(),
		MailboxCap:        c.mailbox.Cap(),
		Endless:           c.endless.Load(),
	}
}
