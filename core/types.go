package core

import "fmt"

// ActorID is the numeric handle of an actor. The high 8 bits carry the
// harbor (node) id, the low 24 bits the local index.
type ActorID uint32

const (
	// HandleMask selects the local part of a handle.
	HandleMask = 0xffffff
	// HarborShift is the bit offset of the harbor id inside a handle.
	HarborShift = 24
)

// String formats the handle the way diagnostic output prints it.
func (id ActorID) String() string {
	return fmt.Sprintf(":%08x", uint32(id))
}

// Harbor returns the node id encoded in the handle.
func (id ActorID) Harbor() uint8 {
	return uint8(uint32(id) >> HarborShift)
}

// MessageType is the protocol tag carried by an envelope.
type MessageType uint8

// Message types. The numbering is part of the wire contract with services
// and must not be reordered.
const (
	// MessageTypeText is a plain text message, used by diagnostics.
	MessageTypeText MessageType = iota
	// MessageTypeResponse answers a request; timers expire as responses.
	MessageTypeResponse
	// MessageTypeMulticast is a multicast delivery.
	MessageTypeMulticast
	// MessageTypeClient is a message from an external client.
	MessageTypeClient
	// MessageTypeSystem is a runtime control message.
	MessageTypeSystem
	// MessageTypeHarbor is a cross-node message.
	MessageTypeHarbor
	// MessageTypeSocket carries network events from the gate.
	MessageTypeSocket
	// MessageTypeError reports a failed request.
	MessageTypeError
)

// String returns the string representation of MessageType.
func (t MessageType) String() string {
	switch t {
	case MessageTypeText:
		return "text"
	case MessageTypeResponse:
		return "response"
	case MessageTypeMulticast:
		return "multicast"
	case MessageTypeClient:
		return "client"
	case MessageTypeSystem:
		return "system"
	case MessageTypeHarbor:
		return "harbor"
	case MessageTypeSocket:
		return "socket"
	case MessageTypeError:
		return "error"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

const (
	// TypeShift is the bit offset of the message type in Envelope.Size.
	TypeShift = 56
	// SizeMask selects the payload length in Envelope.Size.
	SizeMask = (uint64(1) << TypeShift) - 1
)

// PackSize encodes a message type and a payload length into one size word.
func PackSize(t MessageType, length int) uint64 {
	return uint64(length)&SizeMask | uint64(t)<<TypeShift
}

// Envelope is one unit of delivery. Push transfers ownership of Data to the
// mailbox; whoever pops the envelope owns it from then on.
type Envelope struct {
	// Source is the sending actor, 0 for the runtime itself.
	Source ActorID

	// Session correlates requests and responses. 0 means no response expected.
	Session int32

	// Data is the payload. The runtime never inspects it.
	Data []byte

	// Size holds the payload length with the message type in the high bits.
	Size uint64
}

// NewEnvelope builds an envelope whose size word matches the payload.
func NewEnvelope(source ActorID, session int32, t MessageType, data []byte) Envelope {
	return Envelope{
		Source:  source,
		Session: session,
		Data:    data,
		Size:    PackSize(t, len(data)),
	}
}

// Type returns the message type packed in the size word.
func (e *Envelope) Type() MessageType {
	return MessageType(e.Size >> TypeShift)
}

// Len returns the payload length packed in the size word.
func (e *Envelope) Len() int {
	return int(e.Size & SizeMask)
}

// ActorStats contains runtime statistics for an actor.
type ActorStats struct {
	// ID of the actor
	ID ActorID

	// Name registered for the actor, if any
	Name string

	// Total envelopes handed to the handler
	MessagesProcessed uint64

	// Envelopes currently in the mailbox
	MailboxSize int

	// Current mailbox capacity
	MailboxCap int

	// Set by the stall monitor when a handler did not return
	Endless bool
}
