package gate

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// EventType identifies a socket event delivered to the watchdog.
type EventType uint8

const (
	// EventData carries one decoded packet.
	EventData EventType = 1
	// EventClose reports that the peer or the gate closed the connection.
	EventClose EventType = 3
	// EventAccept reports a new connection; Data holds the remote address.
	EventAccept EventType = 4
	// EventError reports a read failure; Data holds the error text.
	EventError EventType = 5
)

// String returns the string representation of EventType
func (t EventType) String() string {
	switch t {
	case EventData:
		return "data"
	case EventClose:
		return "close"
	case EventAccept:
		return "accept"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("event(%d)", uint8(t))
	}
}

const eventHeaderSize = 5

// ErrShortEvent is returned when a socket payload is truncated.
var ErrShortEvent = errors.New("gate: short socket event")

// Event is the payload of a Socket envelope.
type Event struct {
	Type   EventType
	ConnID uint32
	Data   []byte
}

// Marshal encodes the event as type, big-endian connection id, data.
func (e Event) Marshal() []byte {
	buf := make([]byte, eventHeaderSize+len(e.Data))
	buf[0] = byte(e.Type)
	binary.BigEndian.PutUint32(buf[1:], e.ConnID)
	copy(buf[eventHeaderSize:], e.Data)
	return buf
}

// ParseEvent decodes a Socket envelope payload. Data aliases payload.
func ParseEvent(payload []byte) (Event, error) {
	if len(payload) < eventHeaderSize {
		return Event{}, ErrShortEvent
	}
	return Event{
		Type:   EventType(payload[0]),
		ConnID: binary.BigEndian.Uint32(payload[1:]),
		Data:   payload[eventHeaderSize:],
	}, nil
}
