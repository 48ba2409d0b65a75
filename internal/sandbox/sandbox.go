// Package sandbox drops the daemon's privileges after its long-lived
// handles — the listening socket and the dump-directory root — are
// already open. Once dropped, the process retains no capability it
// did not already exercise to reach this point.
package sandbox

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Config names the unprivileged identity to drop into. A zero-value
// Config (uid/gid both 0) means "do not drop privileges", useful for
// development and for platforms where the daemon already runs
// unprivileged.
type Config struct {
	UID int
	GID int
}

// Enabled reports whether Drop would do anything.
func (c Config) Enabled() bool {
	return c.UID != 0 || c.GID != 0
}

// Drop clears supplementary groups and switches the real, effective,
// and saved uid/gid to the configured unprivileged identity. It must
// be called after every socket bind and directory open the daemon
// will ever need, since it is irreversible within the process.
func Drop(cfg Config) error {
	if !cfg.Enabled() {
		return nil
	}

	// Group switch must happen before the uid switch, or the process
	// loses the privilege needed to change its group.
	if err := unix.Setgroups(nil); err != nil {
		return fmt.Errorf("sandbox: clear supplementary groups: %w", err)
	}

	if err := unix.Setresgid(cfg.GID, cfg.GID, cfg.GID); err != nil {
		return fmt.Errorf("sandbox: setresgid(%d): %w", cfg.GID, err)
	}

	if err := unix.Setresuid(cfg.UID, cfg.UID, cfg.UID); err != nil {
		return fmt.Errorf("sandbox: setresuid(%d): %w", cfg.UID, err)
	}

	return nil
}

// Verify confirms the drop actually took effect: a process that
// silently failed to drop privileges (e.g. a partial capability set)
// is worse than one that never tried, since operators trust the flag.
func Verify(cfg Config) error {
	if !cfg.Enabled() {
		return nil
	}
	if uid := unix.Getuid(); uid != cfg.UID {
		return fmt.Errorf("sandbox: uid is %d after drop, want %d", uid, cfg.UID)
	}
	if gid := unix.Getgid(); gid != cfg.GID {
		return fmt.Errorf("sandbox: gid is %d after drop, want %d", gid, cfg.GID)
	}
	return nil
}
