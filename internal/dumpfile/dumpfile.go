// Package dumpfile allocates the per-host (info, core) file pairs
// inside the dump directory and commits the "last" symlinks on
// success. Every path is resolved through an *os.Root so that a
// compromised process, even before sandboxing drops privileges,
// cannot follow a crafted hostname outside the dump directory.
package dumpfile

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
)

// DefaultMaxDumps bounds the numeric suffix n scanned by Reserve
// absent an operator override, matching the source's fixed 0..255
// numbering space.
const DefaultMaxDumps = 256

// ErrNoSlot is returned when all maxDumps (info, core) pairs for a
// host are already present on disk.
var ErrNoSlot = errors.New("dumpfile: no free slot for host")

// Pair is a freshly reserved, exclusively-created file pair for one
// dump run.
type Pair struct {
	N         int
	InfoName  string
	CoreName  string
	InfoFile  *os.File
	CoreFile  *os.File
}

// Reserve scans n in [0, maxDumps) for the smallest value at which
// both info.<host>.<n> and vmcore.<host>.<n> can be exclusively
// created inside root. On a core-file collision it rolls back the
// info file it just created and continues the scan, keeping the two
// numbers in lockstep. Any error other than "already exists" is
// logged to log and does not terminate the scan.
func Reserve(root *os.Root, host string, maxDumps int, log *slog.Logger) (Pair, error) {
	for n := 0; n < maxDumps; n++ {
		infoName := fmt.Sprintf("info.%s.%d", host, n)
		coreName := fmt.Sprintf("vmcore.%s.%d", host, n)

		infoFile, err := root.OpenFile(infoName, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err != nil {
			if !errors.Is(err, fs.ErrExist) {
				log.Warn("dumpfile: reserve failed, continuing scan", "path", infoName, "error", err)
			}
			continue
		}

		coreFile, err := root.OpenFile(coreName, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err != nil {
			infoFile.Close()
			root.Remove(infoName)
			if !errors.Is(err, fs.ErrExist) {
				log.Warn("dumpfile: reserve failed, continuing scan", "path", coreName, "error", err)
			}
			continue
		}

		return Pair{
			N:        n,
			InfoName: infoName,
			CoreName: coreName,
			InfoFile: infoFile,
			CoreFile: coreFile,
		}, nil
	}

	return Pair{}, ErrNoSlot
}

// CommitSymlinks atomically points {info,vmcore}.<host>.last at the
// files in pair. Go has no atomic symlink-replace primitive, so each
// symlink is created under a temporary name inside root and then
// renamed over the final name, replacing any existing link. Errors
// from removing a stale temp name are ignored.
func CommitSymlinks(root *os.Root, host string, pair Pair) error {
	if err := commitOneSymlink(root, pair.InfoName, fmt.Sprintf("info.%s.last", host)); err != nil {
		return err
	}
	if err := commitOneSymlink(root, pair.CoreName, fmt.Sprintf("vmcore.%s.last", host)); err != nil {
		return err
	}
	return nil
}

func commitOneSymlink(root *os.Root, target, linkName string) error {
	tmpName := linkName + ".tmp"
	root.Remove(tmpName) // best effort; a stale temp from a prior crash is harmless to remove

	if err := root.Symlink(target, tmpName); err != nil {
		return fmt.Errorf("dumpfile: create temp symlink %s: %w", tmpName, err)
	}
	if err := root.Rename(tmpName, linkName); err != nil {
		root.Remove(tmpName)
		return fmt.Errorf("dumpfile: rename %s to %s: %w", tmpName, linkName, err)
	}
	return nil
}
