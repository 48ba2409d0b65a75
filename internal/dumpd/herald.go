package dumpd

import (
	"context"
	"fmt"
	"net"

	"github.com/cygnusops/netdumpd/internal/dumpfile"
	"github.com/cygnusops/netdumpd/internal/metrics"
	"github.com/cygnusops/netdumpd/internal/session"
	"github.com/cygnusops/netdumpd/internal/wire"
)

// handleHerald implements the C4/§4.7 herald path: it runs entirely
// on Run's goroutine, so it may freely read and mutate d.sessions.
func (d *Daemon) handleHerald(he heraldEvent) {
	if he.dg.Type != wire.Herald {
		d.log.Warn("non-herald datagram on listening socket, ignoring", "type", he.dg.Type)
		return
	}
	if he.src == nil {
		d.log.Warn("herald with no usable source address, ignoring")
		return
	}

	key := he.src.IP.String()
	if existing, ok := d.sessions[key]; ok {
		if !existing.AnyDataReceived {
			// Retransmitted herald before any data: re-ack, do not
			// recreate.
			existing.Conn.Write(wire.EncodeAck(he.dg.Sequence))
			return
		}
		// Concurrent new dump from the same source mid-stream: the
		// active session is timed out and a fresh one takes its
		// place.
		existing.Evict("timeout")
		delete(d.sessions, key)
		metrics.SessionsTimedOut.Inc()
	}

	s, err := d.createSession(he.src, he.dst)
	if err != nil {
		d.log.Error("session creation failed", "src", he.src.IP, "error", err)
		return
	}

	d.sessions[key] = s
	metrics.SessionsCreated.Inc()
	metrics.ActiveSessions.Set(float64(len(d.sessions)))
	go d.sessionReadLoop(key, s.Conn)

	s.Conn.Write(wire.EncodeAck(he.dg.Sequence))
}

// createSession runs the ordered, rollback-at-each-step construction
// sequence from §4.7: resolve hostname, dial a connected socket bound
// to the client-expected destination address, reserve the (info,
// core) file pair, and only then return a live session. Any failure
// after opening the socket closes it before returning the error.
func (d *Daemon) createSession(src *net.UDPAddr, dst net.IP) (*session.Session, error) {
	hostname := d.resolveHostname(src.IP)

	localPort := d.rawConn.LocalAddr().(*net.UDPAddr).Port
	localAddr := &net.UDPAddr{IP: dst, Port: localPort}

	dialer := net.Dialer{LocalAddr: localAddr, Control: reuseAddrPortControl}
	netConn, err := dialer.DialContext(context.Background(), "udp4", src.String())
	if err != nil {
		return nil, err
	}
	conn, ok := netConn.(*net.UDPConn)
	if !ok {
		netConn.Close()
		return nil, fmt.Errorf("dumpd: dialed connection is not a UDP socket")
	}

	if err := conn.SetReadBuffer(d.cfg.RecvBufferBytes); err != nil {
		d.log.Warn("failed to set session socket receive buffer", "error", err)
	}

	pair, err := dumpfile.Reserve(d.root, hostname, d.cfg.MaxDumps, d.log)
	if err != nil {
		conn.Close()
		return nil, err
	}

	return session.New(src.IP, hostname, conn, d.root, pair, d.notifier, d.log), nil
}
