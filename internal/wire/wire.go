// Package wire implements the netdump UDP datagram codec: header
// parsing, ack encoding, and Kernel Dump Header extraction. Every
// field is pulled out with explicit encoding/binary calls; nothing
// here overlays a struct on the raw buffer.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Type is the datagram type carried in the header.
type Type uint32

const (
	Herald   Type = 1
	KDH      Type = 2
	VMCore   Type = 3
	Finished Type = 4
)

func (t Type) String() string {
	switch t {
	case Herald:
		return "HERALD"
	case KDH:
		return "KDH"
	case VMCore:
		return "VMCORE"
	case Finished:
		return "FINISHED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint32(t))
	}
}

// HeaderSize is the on-wire size of the fixed datagram header:
// type, sequence, length (u32 each) followed by offset (u64).
const HeaderSize = 4 + 4 + 4 + 8

// DefaultMaxPayload is the largest payload the daemon accepts absent
// an operator override, matching the source's NETDUMP_DATASIZE sized
// to fit inside a standard MTU.
const DefaultMaxPayload = 1456

var (
	ErrRunt           = errors.New("wire: datagram shorter than header")
	ErrLengthMismatch = errors.New("wire: declared length does not match payload size")
	ErrUnknownType    = errors.New("wire: unrecognized datagram type")
)

// Datagram is a parsed, validated netdump datagram.
type Datagram struct {
	Type     Type
	Sequence uint32
	Offset   uint64
	Length   uint32
	Payload  []byte
}

// Parse decodes and validates a raw UDP datagram. The returned
// Datagram's Payload aliases the input slice; callers that retain it
// past the lifetime of the receive buffer must copy it.
func Parse(b []byte) (Datagram, error) {
	if len(b) < HeaderSize {
		return Datagram{}, ErrRunt
	}

	typ := binary.BigEndian.Uint32(b[0:4])
	seq := binary.BigEndian.Uint32(b[4:8])
	length := binary.BigEndian.Uint32(b[8:12])
	offset := binary.BigEndian.Uint64(b[12:20])
	payload := b[HeaderSize:]

	if uint32(len(payload)) != length {
		return Datagram{}, ErrLengthMismatch
	}

	switch Type(typ) {
	case Herald, KDH, VMCore, Finished:
	default:
		return Datagram{}, ErrUnknownType
	}

	return Datagram{
		Type:     Type(typ),
		Sequence: seq,
		Offset:   offset,
		Length:   length,
		Payload:  payload,
	}, nil
}

// EncodeAck produces the 4-byte big-endian ack frame for a sequence
// number.
func EncodeAck(sequence uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, sequence)
	return b
}
