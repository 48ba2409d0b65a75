package wire

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func buildDatagram(typ Type, seq uint32, offset uint64, payload []byte) []byte {
	b := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(b[0:4], uint32(typ))
	binary.BigEndian.PutUint32(b[4:8], seq)
	binary.BigEndian.PutUint32(b[8:12], uint32(len(payload)))
	binary.BigEndian.PutUint64(b[12:20], offset)
	copy(b[HeaderSize:], payload)
	return b
}

func TestParseVMCore(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAA}, 100)
	raw := buildDatagram(VMCore, 7, 1456, payload)

	dg, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	// Check type
	if dg.Type != VMCore {
		t.Errorf("Expected type VMCORE, got %v", dg.Type)
	}

	// Check sequence
	if dg.Sequence != 7 {
		t.Errorf("Expected sequence 7, got %d", dg.Sequence)
	}

	// Check offset
	if dg.Offset != 1456 {
		t.Errorf("Expected offset 1456, got %d", dg.Offset)
	}

	// Check payload
	if !bytes.Equal(dg.Payload, payload) {
		t.Errorf("payload mismatch")
	}
}

func TestParseRunt(t *testing.T) {
	_, err := Parse([]byte{1, 2, 3})
	if err != ErrRunt {
		t.Fatalf("expected ErrRunt, got %v", err)
	}
}

func TestParseLengthMismatch(t *testing.T) {
	raw := buildDatagram(KDH, 1, 0, make([]byte, 10))
	// declare a length that disagrees with the actual payload
	binary.BigEndian.PutUint32(raw[8:12], 999)

	_, err := Parse(raw)
	if err != ErrLengthMismatch {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestParseUnknownType(t *testing.T) {
	raw := buildDatagram(Type(99), 1, 0, nil)

	_, err := Parse(raw)
	if err != ErrUnknownType {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestEncodeAck(t *testing.T) {
	ack := EncodeAck(0x01020304)

	want := []byte{0x01, 0x02, 0x03, 0x04}
	if !bytes.Equal(ack, want) {
		t.Errorf("EncodeAck = %x, want %x", ack, want)
	}
}

func TestParseKDHNullTerminatesStrings(t *testing.T) {
	buf := make([]byte, KDHSize)
	copy(buf[20:32], []byte("amd64\x00garbage"))
	copy(buf[60:124], []byte("nodeA\x00garbage-hostname-tail"))

	kdh, err := ParseKDH(buf)
	if err != nil {
		t.Fatalf("ParseKDH failed: %v", err)
	}

	// Check architecture is truncated at the NUL
	if kdh.Architecture != "amd64" {
		t.Errorf("Architecture = %q, want %q", kdh.Architecture, "amd64")
	}

	// Check hostname is truncated at the NUL
	if kdh.Hostname != "nodeA" {
		t.Errorf("Hostname = %q, want %q", kdh.Hostname, "nodeA")
	}
}

func TestParseKDHTooShort(t *testing.T) {
	_, err := ParseKDH(make([]byte, 10))
	if err == nil {
		t.Fatal("expected error for short KDH payload")
	}
}

func TestComputeParityRoundTrip(t *testing.T) {
	buf := make([]byte, KDHSize)
	for i := range buf {
		buf[i] = byte(i)
	}
	parity := ComputeParity(buf[:KDHSize-4])
	binary.BigEndian.PutUint32(buf[KDHSize-4:], parity)

	kdh, err := ParseKDH(buf)
	if err != nil {
		t.Fatalf("ParseKDH failed: %v", err)
	}

	// Check parity self-consistency
	if !kdh.ParityOK {
		t.Error("expected ParityOK for a self-computed parity word")
	}
}

func TestComputeParityMismatchIsAdvisoryOnly(t *testing.T) {
	buf := make([]byte, KDHSize)
	binary.BigEndian.PutUint32(buf[KDHSize-4:], 0xDEADBEEF)

	kdh, err := ParseKDH(buf)
	if err != nil {
		t.Fatalf("ParseKDH failed: %v", err)
	}

	// A parity mismatch is reported, not an error
	if kdh.ParityOK {
		t.Error("expected ParityOK=false for a mismatched parity word")
	}
}
