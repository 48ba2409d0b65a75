package bootstrap

import (
	"log/slog"
	"os"

	"github.com/cygnusops/netdumpd/internal/dumpd"
)

// ReceiveHerald is the daemon's inline implementation of the
// optional privileged herald helper described in spec.md §4.5/§6:
// "the daemon may implement this inline in unsandboxed deployments."
// It opens the listening socket (the only capability the helper
// needs) before privileges are dropped, so every later herald
// dispatch inside dumpd.Daemon.Run operates on an already-open file
// descriptor and requires no further privilege.
func ReceiveHerald(bindAddr string, cfg dumpd.Config, root *os.Root, notifier dumpd.Notifier, log *slog.Logger) (*dumpd.Daemon, error) {
	return dumpd.New(bindAddr, cfg, root, notifier, log)
}
