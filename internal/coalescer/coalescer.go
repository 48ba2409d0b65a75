// Package coalescer implements the per-client in-memory write
// buffer that accumulates contiguous core payload and flushes it to
// disk at capacity or on discontinuity, amortizing positional-write
// syscalls against the kernel's mostly-sequential VMCORE stream.
package coalescer

import (
	"fmt"
	"os"

	"github.com/cygnusops/netdumpd/internal/metrics"
)

// BufferSize is the fixed coalescing window: large enough to absorb
// many MaxPayload-sized chunks between flushes, small enough to keep
// a bounded memory cost per session.
const BufferSize = 128 * 1024

// Coalescer buffers contiguous writes destined for one core file.
type Coalescer struct {
	file      *os.File
	buf       [BufferSize]byte
	bufLen    int
	runOffset int64
}

// New wraps file, which must already be open for writing.
func New(file *os.File) *Coalescer {
	return &Coalescer{file: file}
}

// RunOffset reports the absolute file offset of the first byte
// currently held in the buffer.
func (c *Coalescer) RunOffset() int64 { return c.runOffset }

// BufferLen reports how many bytes are currently buffered.
func (c *Coalescer) BufferLen() int { return c.bufLen }

// Accept buffers payload for the given absolute offset, flushing
// first if the payload would overflow the buffer or if offset is
// not contiguous with the currently buffered run.
func (c *Coalescer) Accept(offset int64, payload []byte) error {
	discontinuous := c.bufLen > 0 && c.runOffset+int64(c.bufLen) != offset
	overflow := c.bufLen+len(payload) > BufferSize

	if discontinuous || overflow {
		if err := c.Flush(); err != nil {
			return err
		}
	}

	if c.bufLen == 0 {
		c.runOffset = offset
	}

	copy(c.buf[c.bufLen:], payload)
	c.bufLen += len(payload)
	return nil
}

// Flush writes any buffered bytes to the core file at runOffset via
// a positional write and resets the buffer.
func (c *Coalescer) Flush() error {
	if c.bufLen == 0 {
		return nil
	}

	n, err := c.file.WriteAt(c.buf[:c.bufLen], c.runOffset)
	if err != nil {
		return fmt.Errorf("coalescer: write at offset %d: %w", c.runOffset, err)
	}
	if n != c.bufLen {
		return fmt.Errorf("coalescer: short write at offset %d: wrote %d of %d bytes", c.runOffset, n, c.bufLen)
	}

	c.bufLen = 0
	metrics.CoalescerFlushes.Inc()
	return nil
}

// Sync flushes any buffered bytes and then fsyncs the core file,
// providing the durability guarantee FINISHED requires before the
// session's ack is sent and the last-pointer symlinks are committed.
func (c *Coalescer) Sync() error {
	if err := c.Flush(); err != nil {
		return err
	}
	return c.file.Sync()
}
