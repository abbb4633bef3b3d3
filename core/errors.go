package core

import "errors"

// Delivery errors
var (
	ErrActorNotFound   = errors.New("actor not found")
	ErrMailboxClosed   = errors.New("mailbox is closed")
	ErrNameTaken       = errors.New("name already registered")
	ErrInvalidName     = errors.New("invalid name")
	ErrNilHandler      = errors.New("handler is nil")
	ErrHandleExhausted = errors.New("handle space exhausted")
)
