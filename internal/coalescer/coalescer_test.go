package coalescer

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func openTestFile(t *testing.T) *os.File {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "vmcore.test.0"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestAcceptSequentialThenSync(t *testing.T) {
	f := openTestFile(t)
	c := New(f)

	a := bytes.Repeat([]byte{0xAA}, 1456)
	b := bytes.Repeat([]byte{0xBB}, 1456)
	cc := bytes.Repeat([]byte{0xCC}, 1184)

	if err := c.Accept(0, a); err != nil {
		t.Fatalf("Accept(0) failed: %v", err)
	}
	if err := c.Accept(1456, b); err != nil {
		t.Fatalf("Accept(1456) failed: %v", err)
	}
	if err := c.Accept(2912, cc); err != nil {
		t.Fatalf("Accept(2912) failed: %v", err)
	}
	if err := c.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	got, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	want := append(append(append([]byte{}, a...), b...), cc...)
	if !bytes.Equal(got, want) {
		t.Errorf("core file contents mismatch: got %d bytes, want %d bytes", len(got), len(want))
	}
}

func TestAcceptDiscontinuityForcesFlush(t *testing.T) {
	f := openTestFile(t)
	c := New(f)

	a := bytes.Repeat([]byte{'A'}, 1456)
	cChunk := bytes.Repeat([]byte{'C'}, 1456)
	b := bytes.Repeat([]byte{'B'}, 1456)

	if err := c.Accept(0, a); err != nil {
		t.Fatalf("Accept(0) failed: %v", err)
	}
	// 2912 is not contiguous with [0, 1456) — must flush before buffering
	if err := c.Accept(2912, cChunk); err != nil {
		t.Fatalf("Accept(2912) failed: %v", err)
	}
	// Check the discontinuity forced a flush: run offset moved to 2912
	if c.RunOffset() != 2912 {
		t.Errorf("RunOffset = %d, want 2912 after discontinuity flush", c.RunOffset())
	}
	if err := c.Accept(1456, b); err != nil {
		t.Fatalf("Accept(1456) failed: %v", err)
	}
	if err := c.Sync(); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	got, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(got) != 4368 {
		t.Fatalf("file length = %d, want 4368", len(got))
	}
	if !bytes.Equal(got[0:1456], a) {
		t.Error("bytes [0,1456) mismatch")
	}
	if !bytes.Equal(got[1456:2912], b) {
		t.Error("bytes [1456,2912) mismatch")
	}
	if !bytes.Equal(got[2912:4368], cChunk) {
		t.Error("bytes [2912,4368) mismatch")
	}
}

func TestAcceptCapacityOverflowForcesFlush(t *testing.T) {
	f := openTestFile(t)
	c := New(f)

	first := bytes.Repeat([]byte{1}, BufferSize-100)
	if err := c.Accept(0, first); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}

	second := bytes.Repeat([]byte{2}, 200)
	if err := c.Accept(int64(len(first)), second); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}

	// The overflowing Accept must have flushed the first buffer and
	// started a fresh run at the new offset.
	if c.RunOffset() != int64(len(first)) {
		t.Errorf("RunOffset = %d, want %d", c.RunOffset(), len(first))
	}
	if c.BufferLen() != len(second) {
		t.Errorf("BufferLen = %d, want %d", c.BufferLen(), len(second))
	}
}

func TestFlushEmptyIsNoop(t *testing.T) {
	f := openTestFile(t)
	c := New(f)

	if err := c.Flush(); err != nil {
		t.Fatalf("Flush on empty buffer should be a no-op, got: %v", err)
	}
}
