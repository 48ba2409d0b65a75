package dumpd

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseAddrPortControl sets SO_REUSEADDR and SO_REUSEPORT on every
// socket the daemon binds. It is required both for the listening
// socket, which must survive a restart against a TIME_WAIT-less UDP
// socket, and for every per-session socket, which is deliberately
// bound to the same local address the listener occupies so replies
// leave from the address the client expects — the Go equivalent of
// the source's demultiplexing trick where a connected UDP socket
// shares the listener's local port.
func reuseAddrPortControl(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); e != nil {
			sockErr = e
			return
		}
		if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); e != nil {
			sockErr = e
			return
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}
