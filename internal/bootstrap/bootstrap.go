// Package bootstrap wires the daemon together: it opens the
// listening socket and the dump-directory handle, drops privileges,
// writes the PID file, and hands control to the multiplexer. It is
// the Go equivalent of the source's main()/cap_handler.c split.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cygnusops/netdumpd/internal/admin"
	"github.com/cygnusops/netdumpd/internal/dumpd"
	"github.com/cygnusops/netdumpd/internal/notify"
	"github.com/cygnusops/netdumpd/internal/sandbox"
)

// Options collects everything the CLI layer parses before handing
// off to Run.
type Options struct {
	BindAddr      string
	DumpDir       string
	NotifyScript  string
	NotifyTimeout time.Duration
	PIDFile       string
	AdminSocket   string
	Sandbox       sandbox.Config
	DumpdConfig   dumpd.Config
	Log           *slog.Logger
	Version       string
}

// Run opens every long-lived handle, drops privileges, and blocks in
// the multiplexer until a shutdown signal arrives. It returns nil on
// a clean signal-driven shutdown and a non-nil error on any bootstrap
// failure, matching the exit-code contract in spec.md §6.
func Run(ctx context.Context, opts Options) error {
	log := opts.Log

	root, err := os.OpenRoot(opts.DumpDir)
	if err != nil {
		return fmt.Errorf("bootstrap: open dump directory %s: %w", opts.DumpDir, err)
	}
	defer root.Close()

	hook := notify.New(opts.NotifyScript, opts.NotifyTimeout, log)

	daemon, err := ReceiveHerald(opts.BindAddr, opts.DumpdConfig, root, hook, log)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	adminSrv := admin.NewServer(opts.AdminSocket, opts.Version, daemon, log)
	if err := adminSrv.Start(); err != nil {
		return fmt.Errorf("bootstrap: start admin socket: %w", err)
	}
	defer adminSrv.Stop()

	if err := writePIDFile(opts.PIDFile); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer removePIDFile(opts.PIDFile, log)

	// Every long-lived handle (listening socket, dump directory) is
	// open by this point; only now is it safe to drop privileges.
	if err := sandbox.Drop(opts.Sandbox); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if err := sandbox.Verify(opts.Sandbox); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	log.Info("netdumpd started", "bind", daemon.Addr(), "dumpdir", opts.DumpDir)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-runCtx.Done():
		}
	}()

	return daemon.Run(runCtx)
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid) + "\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write PID file %s: %w", path, err)
	}
	return nil
}

func removePIDFile(path string, log *slog.Logger) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Error("failed to remove PID file", "path", path, "error", err)
	}
}
