package gate

import (
	"encoding/binary"
	"errors"
	"io"
)

// MaxPacketSize is the largest body a 2-byte length header can describe.
const MaxPacketSize = 0xffff

// ErrPacketTooLarge is returned when writing a body over MaxPacketSize.
var ErrPacketTooLarge = errors.New("gate: packet too large")

// ReadPacket reads one packet framed by a 2-byte big-endian length.
func ReadPacket(r io.Reader) ([]byte, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	body := make([]byte, binary.BigEndian.Uint16(header[:]))
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}

// Pack frames body with its 2-byte big-endian length.
func Pack(body []byte) ([]byte, error) {
	if len(body) > MaxPacketSize {
		return nil, ErrPacketTooLarge
	}
	buf := make([]byte, 2+len(body))
	binary.BigEndian.PutUint16(buf, uint16(len(body)))
	copy(buf[2:], body)
	return buf, nil
}
