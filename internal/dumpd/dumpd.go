// Package dumpd implements the netdump multiplexer: the
// single-threaded readiness loop that owns the listening socket,
// every active session's connected socket, and the timeout sweeper.
// Reads happen on their own goroutines, but exactly one goroutine —
// the one running Daemon.Run — ever touches the session table or a
// session's coalescing buffer, preserving the single-threaded
// semantics of the source even though Go's netpoller multiplexes the
// actual I/O.
package dumpd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/cygnusops/netdumpd/internal/admin"
	"github.com/cygnusops/netdumpd/internal/dumpfile"
	"github.com/cygnusops/netdumpd/internal/metrics"
	"github.com/cygnusops/netdumpd/internal/session"
	"github.com/cygnusops/netdumpd/internal/wire"
)

// Config carries every tunable the event loop needs; all fields have
// spec-mandated defaults applied by the caller (internal/config or
// the CLI flags directly).
type Config struct {
	// ClientTimeout is how long a session may sit idle before the
	// sweeper evicts it.
	ClientTimeout time.Duration
	// ClientTPass is the sweeper tick interval.
	ClientTPass time.Duration
	// RecvBufferBytes is the requested socket receive-buffer size
	// hint, applied best-effort to every session socket.
	RecvBufferBytes int
	// MaxDumps bounds the numeric suffix dumpfile.Reserve scans per
	// host.
	MaxDumps int
	// MaxPayload is the largest datagram payload accepted; it sizes
	// every read buffer on the listening and session sockets.
	MaxPayload int
}

// DefaultConfig matches the source's CLIENT_TIMEOUT/CLIENT_TPASS/
// buffer-size constants.
func DefaultConfig() Config {
	return Config{
		ClientTimeout:   600 * time.Second,
		ClientTPass:     10 * time.Second,
		RecvBufferBytes: 128 * 1024,
		MaxDumps:        dumpfile.DefaultMaxDumps,
		MaxPayload:      wire.DefaultMaxPayload,
	}
}

// Notifier is re-exported so callers only need to import this
// package to wire up dumpd.New.
type Notifier = session.Notifier

// Daemon is the multiplexer: the listening socket, the session
// table, and the sweeper, all driven from Run's single goroutine.
type Daemon struct {
	cfg      Config
	root     *os.Root
	listener *ipv4.PacketConn
	rawConn  *net.UDPConn
	notifier Notifier
	log      *slog.Logger

	sessions map[string]*session.Session
	events   chan event

	// resolveHostname is a field rather than a direct call to the
	// package function so tests can substitute a deterministic
	// resolver instead of depending on the test environment's actual
	// reverse-DNS behavior for loopback addresses.
	resolveHostname func(net.IP) string
}

// event is the single channel type every I/O goroutine and the
// sweeper feed into; the Run loop is the only reader.
type event struct {
	kind      eventKind
	herald    heraldEvent
	sessionIP string
	datagram  wire.Datagram
	readErr   error
	replyTo   chan []admin.SessionInfo
}

type eventKind int

const (
	eventHerald eventKind = iota
	eventSession
	eventSweep
	eventListSessions
)

type heraldEvent struct {
	src *net.UDPAddr
	dst net.IP
	dg  wire.Datagram
}

// New binds the listening socket at addr (host:port form) and
// returns a Daemon ready to Run. root is the dump directory handle
// every session's file operations are confined to.
func New(addr string, cfg Config, root *os.Root, notifier Notifier, log *slog.Logger) (*Daemon, error) {
	lc := net.ListenConfig{Control: reuseAddrPortControl}

	packetConn, err := lc.ListenPacket(context.Background(), "udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("dumpd: listen on %s: %w", addr, err)
	}
	conn := packetConn.(*net.UDPConn)

	pconn := ipv4.NewPacketConn(conn)
	if err := pconn.SetControlMessage(ipv4.FlagDst, true); err != nil {
		conn.Close()
		return nil, fmt.Errorf("dumpd: enable destination-address control messages: %w", err)
	}

	return &Daemon{
		cfg:             cfg,
		root:            root,
		listener:        pconn,
		rawConn:         conn,
		notifier:        notifier,
		log:             log,
		sessions:        make(map[string]*session.Session),
		events:          make(chan event, 64),
		resolveHostname: resolveHostname,
	}, nil
}

// Addr reports the address the listening socket is bound to.
func (d *Daemon) Addr() net.Addr { return d.rawConn.LocalAddr() }

// Run is the multiplexer: it starts the listener and sweeper
// goroutines, then drains d.events on the calling goroutine until ctx
// is cancelled. On cancellation every remaining session is driven
// through the Timeout terminal transition before Run returns, per
// the cancellation guarantee in the concurrency model.
func (d *Daemon) Run(ctx context.Context) error {
	go d.listenLoop(ctx)

	ticker := time.NewTicker(d.cfg.ClientTPass)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case d.events <- event{kind: eventSweep}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return nil
		case ev := <-d.events:
			d.dispatch(ev)
		}
	}
}

func (d *Daemon) dispatch(ev event) {
	switch ev.kind {
	case eventHerald:
		d.handleHerald(ev.herald)
	case eventSession:
		d.handleSessionDatagram(ev.sessionIP, ev.datagram, ev.readErr)
	case eventSweep:
		d.sweep()
	case eventListSessions:
		ev.replyTo <- d.listSessionsLocked()
	}
}

// ListSessions is safe to call from any goroutine: it hands off to
// Run's goroutine via the event channel so the session table is only
// ever read by its single owner, mirroring how every other mutation
// reaches it.
func (d *Daemon) ListSessions() []admin.SessionInfo {
	reply := make(chan []admin.SessionInfo, 1)
	d.events <- event{kind: eventListSessions, replyTo: reply}
	return <-reply
}

func (d *Daemon) listSessionsLocked() []admin.SessionInfo {
	now := time.Now()
	out := make([]admin.SessionInfo, 0, len(d.sessions))
	for _, s := range d.sessions {
		out = append(out, admin.SessionInfo{
			IP:            s.IP.String(),
			Hostname:      s.Hostname,
			State:         s.State.String(),
			BytesReceived: s.BytesReceived(),
			IdleSeconds:   int64(now.Sub(s.LastActivity).Seconds()),
		})
	}
	return out
}

func (d *Daemon) shutdown() {
	d.log.Info("shutting down, evicting active sessions", "count", len(d.sessions))
	for ip, s := range d.sessions {
		s.Evict("timeout")
		delete(d.sessions, ip)
		metrics.SessionsTimedOut.Inc()
	}
	metrics.ActiveSessions.Set(0)
	d.listener.Close()
}

// listenLoop is the herald-path reader: it owns the listening
// socket's ReadFrom calls and never touches the session table
// directly, only ever posting events for Run to dispatch.
func (d *Daemon) listenLoop(ctx context.Context) {
	buf := make([]byte, wire.HeaderSize+d.cfg.MaxPayload)
	for {
		n, cm, src, err := d.listener.ReadFrom(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				d.log.Error("listen socket read failed", "error", err)
				return
			}
		}

		raw := make([]byte, n)
		copy(raw, buf[:n])

		udpSrc, _ := src.(*net.UDPAddr)
		var dst net.IP
		if cm != nil {
			dst = cm.Dst
		}

		dg, parseErr := wire.Parse(raw)
		if parseErr != nil {
			d.log.Warn("malformed datagram on listen socket", "error", parseErr, "src", udpSrc)
			continue
		}
		he := heraldEvent{src: udpSrc, dst: dst, dg: dg}

		select {
		case d.events <- event{kind: eventHerald, herald: he}:
		case <-ctx.Done():
			return
		}
	}
}

// sessionReadLoop is started once per session and posts every
// successfully parsed datagram (and any terminal read error) back to
// Run. It exits on its own once the session's socket is closed by
// Run (terminal transition), so no explicit stop signal is needed.
func (d *Daemon) sessionReadLoop(ip string, conn *net.UDPConn) {
	buf := make([]byte, wire.HeaderSize+d.cfg.MaxPayload)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			d.events <- event{kind: eventSession, sessionIP: ip, readErr: err}
			return
		}

		raw := make([]byte, n)
		copy(raw, buf[:n])

		dg, parseErr := wire.Parse(raw)
		if parseErr != nil {
			d.log.Warn("malformed datagram on session socket", "session", ip, "error", parseErr)
			continue
		}

		d.events <- event{kind: eventSession, sessionIP: ip, datagram: dg}
	}
}

func (d *Daemon) handleSessionDatagram(ip string, dg wire.Datagram, readErr error) {
	s, ok := d.sessions[ip]
	if !ok {
		return // session already torn down; a straggler datagram from its closed socket
	}

	if readErr != nil {
		if errors.Is(readErr, net.ErrClosed) {
			// Only a terminal transition closes a session socket, and
			// it removes that session from the table; a session now
			// found under this IP is a newer one.
			return
		}
		s.Evict("error")
		delete(d.sessions, ip)
		metrics.SessionsErrored.Inc()
		metrics.ActiveSessions.Set(float64(len(d.sessions)))
		return
	}

	ack, err := s.HandleDatagram(dg)
	if err != nil {
		metrics.SessionsErrored.Inc()
		delete(d.sessions, ip)
		metrics.ActiveSessions.Set(float64(len(d.sessions)))
		return
	}
	if ack {
		s.Conn.Write(wire.EncodeAck(dg.Sequence))
	}
	if dg.Type == wire.VMCore {
		metrics.CoreBytesBuffered.Add(float64(len(dg.Payload)))
	}
	if s.State.Terminal() {
		if s.State == session.TerminalSuccess {
			metrics.SessionsFinished.Inc()
		}
		delete(d.sessions, ip)
		metrics.ActiveSessions.Set(float64(len(d.sessions)))
	}
}

func (d *Daemon) sweep() {
	now := time.Now()
	for ip, s := range d.sessions {
		if now.Sub(s.LastActivity) > d.cfg.ClientTimeout {
			s.Evict("timeout")
			delete(d.sessions, ip)
			metrics.SessionsTimedOut.Inc()
		}
	}
	metrics.ActiveSessions.Set(float64(len(d.sessions)))
}

// resolveHostname reverse-resolves ip to a short hostname, stripping
// any domain suffix, and falls back to the dotted-quad form on any
// DNS failure — never fatal, matching the source's DNS-failure
// policy.
func resolveHostname(ip net.IP) string {
	names, err := net.LookupAddr(ip.String())
	if err != nil || len(names) == 0 {
		return ip.String()
	}
	short := strings.TrimSuffix(names[0], ".")
	if i := strings.Index(short, "."); i > 0 {
		short = short[:i]
	}
	if short == "" {
		return ip.String()
	}
	return short
}
