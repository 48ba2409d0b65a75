// Package session implements the per-client dump protocol state
// machine: herald acknowledgement, KDH ingestion, VMCORE
// coalescing, and the FINISHED durability-then-commit sequence.
package session

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/cygnusops/netdumpd/internal/coalescer"
	"github.com/cygnusops/netdumpd/internal/dumpfile"
	"github.com/cygnusops/netdumpd/internal/wire"
)

// State is a session's position in the protocol state machine.
type State int

const (
	AwaitingKDH State = iota
	Streaming
	Finalizing
	TerminalSuccess
	TerminalTimeout
	TerminalError
)

func (s State) String() string {
	switch s {
	case AwaitingKDH:
		return "AwaitingKDH"
	case Streaming:
		return "Streaming"
	case Finalizing:
		return "Finalizing"
	case TerminalSuccess:
		return "Terminal(Success)"
	case TerminalTimeout:
		return "Terminal(Timeout)"
	case TerminalError:
		return "Terminal(Error)"
	default:
		return "Unknown"
	}
}

func (s State) Terminal() bool {
	return s == TerminalSuccess || s == TerminalTimeout || s == TerminalError
}

// progressEvery matches the source's cadence of logging roughly
// every 16 MiB of streamed core data.
const progressEvery = 16 << 20

// Notifier is the boundary to the C7 notification hook. Session
// never blocks on it; implementations must return promptly.
type Notifier interface {
	Notify(reason, ip, hostname, infoPath, corePath string)
}

// Session is the sole owner of one client's connected socket, file
// handles, and coalescing buffer for the lifetime of one dump.
type Session struct {
	IP       net.IP
	Hostname string

	Conn *net.UDPConn
	root *os.Root

	pair       dumpfile.Pair
	coalescer  *coalescer.Coalescer
	kdh        wire.KDH
	haveKDH    bool

	State           State
	AnyDataReceived bool
	LastActivity    time.Time

	bytesReceived  int64
	lastProgressAt int64

	notifier Notifier
	log      *slog.Logger
}

// New wraps an already-reserved file pair and connected socket into
// a session ready to receive its first non-herald datagram.
func New(ip net.IP, hostname string, conn *net.UDPConn, root *os.Root, pair dumpfile.Pair, notifier Notifier, log *slog.Logger) *Session {
	s := &Session{
		IP:           ip,
		Hostname:     hostname,
		Conn:         conn,
		root:         root,
		pair:         pair,
		coalescer:    coalescer.New(pair.CoreFile),
		State:        AwaitingKDH,
		LastActivity: time.Now(),
		notifier:     notifier,
		log:          log.With("session", ip.String(), "hostname", hostname),
	}
	s.appendInfo(fmt.Sprintf("Dump from %s [%s]\n", hostname, ip.String()))
	return s
}

// InfoPath and CorePath name the files this session owns, relative
// to the dump directory root.
func (s *Session) InfoPath() string { return s.pair.InfoName }
func (s *Session) CorePath() string { return s.pair.CoreName }

// BytesReceived reports the number of VMCORE payload bytes accepted
// so far, for admin-socket reporting.
func (s *Session) BytesReceived() int64 { return s.bytesReceived }

// touch refreshes LastActivity; called on every successfully
// received datagram regardless of outcome.
func (s *Session) touch() {
	s.LastActivity = time.Now()
}

// HandleDatagram dispatches a parsed datagram already routed to this
// session by the multiplexer. When ack is true, the caller writes the
// ack for dg.Sequence back to the session's connected socket after
// this returns (kept out of this method so tests can inspect state
// without a live socket). FINISHED is the exception: its terminal
// transition closes the socket, so handleFinished writes that ack
// itself just before closing, and the caller's later write fails on
// the closed socket.
func (s *Session) HandleDatagram(dg wire.Datagram) (ack bool, err error) {
	if s.State.Terminal() {
		return false, nil
	}
	s.touch()

	switch dg.Type {
	case wire.Herald:
		// The session socket shares the listener's local address and
		// is connected to this client, so the client's later heralds
		// arrive here rather than on the listening socket. Before any
		// data has arrived a herald is a retransmit and is re-acked;
		// after that it is logged and ignored.
		if !s.AnyDataReceived {
			return true, nil
		}
		s.log.Warn("herald received on session socket, ignoring")
		return false, nil

	case wire.KDH:
		return s.handleKDH(dg)

	case wire.VMCore:
		return s.handleVMCore(dg)

	case wire.Finished:
		return s.handleFinished(dg)

	default:
		s.log.Warn("unknown datagram type", "type", dg.Type)
		return false, nil
	}
}

func (s *Session) handleKDH(dg wire.Datagram) (bool, error) {
	kdh, err := wire.ParseKDH(dg.Payload)
	if err != nil {
		s.appendInfo("Bad KDH: packet too small\n")
		s.log.Warn("bad KDH", "error", err)
		return false, nil
	}

	s.kdh = kdh
	s.haveKDH = true
	s.AnyDataReceived = true
	s.touch()

	s.appendInfo(fmt.Sprintf("  Architecture: %s\n", kdh.Architecture))
	s.appendInfo(fmt.Sprintf("  Architecture version: %d\n", kdh.ArchitectureVersion))
	s.appendInfo(fmt.Sprintf("  Dump length: %dB (%d MB)\n", kdh.DumpLength, kdh.DumpLength>>20))
	s.appendInfo(fmt.Sprintf("  blocksize: %d\n", kdh.BlockSize))
	s.appendInfo(fmt.Sprintf("  Dumptime: %s\n", time.Unix(int64(kdh.DumpTime), 0).UTC().Format(time.ANSIC)))
	s.appendInfo(fmt.Sprintf("  Hostname: %s\n", kdh.Hostname))
	s.appendInfo(fmt.Sprintf("  Versionstring: %s\n", kdh.VersionString))
	s.appendInfo(fmt.Sprintf("  Panicstring: %s\n", kdh.PanicString))
	s.appendInfo(fmt.Sprintf("  Header parity check: %s\n", parityLabel(kdh.ParityOK)))

	if s.State == AwaitingKDH {
		s.State = Streaming
	}

	return true, nil
}

func parityLabel(ok bool) string {
	if ok {
		return "Pass"
	}
	return "Fail"
}

func (s *Session) handleVMCore(dg wire.Datagram) (bool, error) {
	if err := s.coalescer.Accept(int64(dg.Offset), dg.Payload); err != nil {
		s.log.Error("write failed", "offset", dg.Offset, "error", err)
		s.appendInfo(fmt.Sprintf("Dump unsuccessful: write error @ offset %08x: %v\n", dg.Offset, err))
		s.terminal(TerminalError, "error")
		return false, err
	}

	s.AnyDataReceived = true
	s.touch()
	s.bytesReceived += int64(len(dg.Payload))

	if s.bytesReceived-s.lastProgressAt >= progressEvery {
		s.lastProgressAt = s.bytesReceived
		if s.haveKDH && s.kdh.DumpLength > 0 {
			pct := float64(s.bytesReceived) * 100 / float64(s.kdh.DumpLength)
			s.log.Info("dump progress", "bytes", s.bytesReceived, "percent", pct)
		} else {
			s.log.Info("dump progress", "bytes", s.bytesReceived)
		}
	}

	return true, nil
}

func (s *Session) handleFinished(dg wire.Datagram) (bool, error) {
	s.touch()
	s.State = Finalizing

	if err := s.coalescer.Sync(); err != nil {
		s.log.Error("sync failed on finish", "error", err)
		s.appendInfo(fmt.Sprintf("Dump unsuccessful: sync error: %v\n", err))
		s.terminal(TerminalError, "error")
		return false, err
	}

	if err := dumpfile.CommitSymlinks(s.root, s.Hostname, s.pair); err != nil {
		// Symlink commit failure does not roll back the successful
		// dump: the ack was already earned by durability, not by the
		// symlink. Just log it.
		s.log.Warn("symlink commit failed", "error", err)
	}

	s.appendInfo("Dump complete\n")
	// terminal closes the socket, so the ack is written here, after
	// the sync and the symlink commit.
	if s.Conn != nil {
		s.Conn.Write(wire.EncodeAck(dg.Sequence))
	}
	s.terminal(TerminalSuccess, "success")
	return true, nil
}

// Evict is called by the sweeper (C6) or by shutdown/herald-collision
// handling in the multiplexer (C5) to force a non-graceful terminal
// transition.
func (s *Session) Evict(reason string) {
	if s.State.Terminal() {
		return
	}
	s.appendInfo("Dump incomplete: client timed out\n")
	st := TerminalTimeout
	if reason != "timeout" {
		st = TerminalError
	}
	s.terminal(st, reason)
}

func (s *Session) terminal(state State, reason string) {
	s.State = state
	s.closeFiles()
	if s.Conn != nil {
		s.Conn.Close()
	}
	if s.notifier != nil {
		s.notifier.Notify(reason, s.IP.String(), s.Hostname, s.pair.InfoName, s.pair.CoreName)
	}
}

func (s *Session) closeFiles() {
	if s.pair.InfoFile != nil {
		s.pair.InfoFile.Close()
	}
	if s.pair.CoreFile != nil {
		s.pair.CoreFile.Close()
	}
}

// appendInfo writes one line to the info file and flushes it
// immediately; duplicate lines across a retransmitted KDH are
// tolerated, matching the source's lack of dedupe.
func (s *Session) appendInfo(line string) {
	if s.pair.InfoFile == nil {
		return
	}
	if _, err := s.pair.InfoFile.WriteString(line); err != nil {
		s.log.Warn("info file write failed", "error", err)
		return
	}
	s.pair.InfoFile.Sync()
}
