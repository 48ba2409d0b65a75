package notify

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return slog.Default()
	}
	return slog.New(slog.NewTextHandler(devnull, nil))
}

func TestNotifyInvokesScriptWithPositionalArgs(t *testing.T) {
	dir := t.TempDir()
	outFile := filepath.Join(dir, "out.json")

	script := filepath.Join(dir, "hook.sh")
	contents := "#!/bin/sh\n" +
		"printf '%s' \"$1,$2,$3,$4,$5\" > " + outFile + "\n"
	if err := os.WriteFile(script, []byte(contents), 0o700); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	h := New(script, time.Second, discardLogger())
	h.Notify("success", "10.0.0.7", "nodeA", "info.nodeA.0", "vmcore.nodeA.0")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b, err := os.ReadFile(outFile); err == nil {
			want := "success,10.0.0.7,nodeA,info.nodeA.0,vmcore.nodeA.0"
			if string(b) != want {
				t.Fatalf("hook output = %q, want %q", b, want)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("hook did not write output file in time")
}

func TestNotifyEmptyScriptIsNoop(t *testing.T) {
	h := New("", time.Second, discardLogger())
	// Must not panic or block.
	h.Notify("timeout", "10.0.0.7", "nodeA", "info.nodeA.0", "vmcore.nodeA.0")
}

func TestNotifyMissingScriptLogsAndReturns(t *testing.T) {
	h := New("/nonexistent/does-not-exist.sh", time.Second, discardLogger())
	h.Notify("error", "10.0.0.7", "nodeA", "info.nodeA.0", "vmcore.nodeA.0")
}
