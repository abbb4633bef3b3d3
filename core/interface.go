package core

import (
	"context"
)

// MessageHandler processes envelopes for an actor. A worker calls it once
// per envelope, never concurrently for the same actor. Returned errors and
// panics are reported to the diagnostic sink and do not stop the worker.
type MessageHandler interface {
	HandleMessage(ctx context.Context, env *Envelope) error
}

// HandlerFunc adapts a plain function to MessageHandler.
type HandlerFunc func(ctx context.Context, env *Envelope) error

// HandleMessage calls f(ctx, env).
func (f HandlerFunc) HandleMessage(ctx context.Context, env *Envelope) error {
	return f(ctx, env)
}

// Sender delivers an envelope to an actor by handle, wherever it lives.
type Sender interface {
	Send(target ActorID, env Envelope) error
}

// Notifier is told when an idle mailbox becomes runnable.
type Notifier interface {
	Notify()
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func()

// Notify calls f().
func (f NotifierFunc) Notify() { f() }
