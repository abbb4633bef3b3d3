// Package core implements the message plumbing of the actor runtime.
//
// Every actor owns a Mailbox, a growable ring buffer of Envelopes. A mailbox
// with pending work is linked into the GlobalQueue, from which worker
// goroutines take whole mailboxes rather than single messages. The Registry
// maps actor handles to their handler and mailbox and is the Sender used by
// the timing wheel and the network gate.
package core
