// Package wire implements the H-UDP fixed 8-byte header codec.
//
// Header layout (big-endian, network byte order):
//
//	0                   1                   2                   3
//	0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|    Channel    |     Flags     |        Sequence Number        |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                     Timestamp (milliseconds)                  |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
//	|                         Payload (variable)                    |
//	+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
package wire

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed on-wire header length in bytes.
const HeaderSize = 8

// Channel identifies which logical sub-stream a packet belongs to.
type Channel byte

const (
	Unreliable Channel = 0
	Reliable   Channel = 1
)

func (c Channel) String() string {
	switch c {
	case Unreliable:
		return "UNRELIABLE"
	case Reliable:
		return "RELIABLE"
	default:
		return fmt.Sprintf("Channel(%d)", byte(c))
	}
}

// Valid reports whether c is a recognized channel value.
func (c Channel) Valid() bool {
	return c == Unreliable || c == Reliable
}

// Flags is the header's bitfield byte.
type Flags byte

const (
	FlagACK  Flags = 1 << 0
	FlagNACK Flags = 1 << 1 // reserved, never set by this implementation
	FlagRETX Flags = 1 << 2
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Packet is a decoded H-UDP datagram.
type Packet struct {
	Channel Channel
	Flags   Flags
	Seq     uint16
	TsMs    uint32
	Payload []byte
}

// Encode packs a header plus payload into a newly allocated byte slice.
// payload is not copied into a defensive buffer by the caller; Encode does
// that itself, so the returned slice is safe to mutate independently.
func Encode(channel Channel, flags Flags, seq uint16, tsMs uint32, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = byte(channel)
	buf[1] = byte(flags)
	binary.BigEndian.PutUint16(buf[2:4], seq)
	binary.BigEndian.PutUint32(buf[4:8], tsMs)
	copy(buf[HeaderSize:], payload)
	return buf
}

// Decode parses a raw datagram into a Packet. It returns ok=false for any
// malformed input (too short, or an unrecognized channel byte) rather than
// an error — decode failures are dropped silently by the receive path per
// the error taxonomy, not surfaced as a typed error.
func Decode(b []byte) (Packet, bool) {
	if len(b) < HeaderSize {
		return Packet{}, false
	}
	ch := Channel(b[0])
	if !ch.Valid() {
		return Packet{}, false
	}
	p := Packet{
		Channel: ch,
		Flags:   Flags(b[1]),
		Seq:     binary.BigEndian.Uint16(b[2:4]),
		TsMs:    binary.BigEndian.Uint32(b[4:8]),
	}
	if len(b) > HeaderSize {
		payload := make([]byte, len(b)-HeaderSize)
		copy(payload, b[HeaderSize:])
		p.Payload = payload
	}
	return p, true
}

// MakeACK encodes an acknowledgement for the reliable-channel seq.
func MakeACK(seq uint16, tsMs uint32) []byte {
	return Encode(Reliable, FlagACK, seq, tsMs, nil)
}

// DebugString renders a raw datagram as a short human-readable summary,
// for hudp-lossysocket's -verbose output. It never panics on malformed
// input.
func DebugString(b []byte) string {
	p, ok := Decode(b)
	if !ok {
		return fmt.Sprintf("<malformed %d bytes>", len(b))
	}
	return fmt.Sprintf("%s seq=%d flags=%03b ts=%d len=%d", p.Channel, p.Seq, p.Flags, p.TsMs, len(p.Payload))
}
