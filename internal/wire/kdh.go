package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Field widths taken from the kerneldumpheader_v1 layout: fixed
// byte arrays, forcibly null-terminated on ingress before any string
// use.
const (
	kdhMagicLen     = 20
	kdhArchLen      = 12
	kdhHostnameLen  = 64
	kdhVersionLen   = 192
	kdhPanicLen     = 192
	KDHSize         = kdhMagicLen + kdhArchLen + 4 + 4 + 8 + 8 + 4 + kdhHostnameLen + kdhVersionLen + kdhPanicLen + 4
)

// KDH is the Kernel Dump Header carried in the first non-herald
// datagram of a session.
type KDH struct {
	Architecture        string
	ArchitectureVersion uint32
	DumpLength          uint64
	DumpTime            uint64
	BlockSize           uint32
	Hostname            string
	VersionString       string
	PanicString         string
	Parity              uint32
	ParityOK            bool
}

// ParseKDH decodes a KDH payload. It requires at least KDHSize bytes;
// callers must have already validated the datagram length against
// the wire header before calling this.
func ParseKDH(b []byte) (KDH, error) {
	if len(b) < KDHSize {
		return KDH{}, fmt.Errorf("wire: KDH payload too short: %d < %d", len(b), KDHSize)
	}

	off := kdhMagicLen // magic is validated by the sender's protocol version, not by us
	arch := nullTerminate(b[off : off+kdhArchLen])
	off += kdhArchLen
	version := binary.BigEndian.Uint32(b[off : off+4])
	_ = version
	off += 4
	archVersion := binary.BigEndian.Uint32(b[off : off+4])
	off += 4
	dumpLength := binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	dumpTime := binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	blockSize := binary.BigEndian.Uint32(b[off : off+4])
	off += 4
	hostname := nullTerminate(b[off : off+kdhHostnameLen])
	off += kdhHostnameLen
	versionString := nullTerminate(b[off : off+kdhVersionLen])
	off += kdhVersionLen
	panicString := nullTerminate(b[off : off+kdhPanicLen])
	off += kdhPanicLen
	parity := binary.BigEndian.Uint32(b[off : off+4])

	computed := ComputeParity(b[:KDHSize-4])

	return KDH{
		Architecture:        arch,
		ArchitectureVersion: archVersion,
		DumpLength:          dumpLength,
		DumpTime:            dumpTime,
		BlockSize:           blockSize,
		Hostname:            hostname,
		VersionString:       versionString,
		PanicString:         panicString,
		Parity:              parity,
		ParityOK:            computed == parity,
	}, nil
}

// nullTerminate forces a fixed-width byte field to be treated as a
// NUL-terminated C string: it truncates at the first zero byte, or
// forces one at the last byte if none is found, matching the
// source's `h->field[sizeof(h->field)-1] = '\0'` discipline.
func nullTerminate(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b[:len(b)-1])
}

// ComputeParity folds a header buffer into a single 32-bit word by
// XORing successive big-endian words, the same simple parity scheme
// FreeBSD's kerneldump_parity applies to kerneldumpheader_v1 before
// the trailing parity field.
func ComputeParity(b []byte) uint32 {
	var p uint32
	full := len(b) / 4 * 4
	for i := 0; i < full; i += 4 {
		p ^= binary.BigEndian.Uint32(b[i : i+4])
	}
	if rem := b[full:]; len(rem) > 0 {
		var tail [4]byte
		copy(tail[:], rem)
		p ^= binary.BigEndian.Uint32(tail[:])
	}
	return p
}
