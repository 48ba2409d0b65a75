// Package metrics implements the daemon's Prometheus registry. It is
// pure instrumentation: nothing in the protocol path branches on
// these values.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsCreated counts every session created off a herald,
	// including ones created to replace a timed-out concurrent
	// session for the same host.
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netdumpd_sessions_created_total",
		Help: "Total number of dump sessions created",
	})

	// SessionsFinished counts sessions that reached the Success
	// terminal state.
	SessionsFinished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netdumpd_sessions_finished_total",
		Help: "Total number of dump sessions completed successfully",
	})

	// SessionsTimedOut counts sessions evicted by the sweeper, by a
	// concurrent herald from the same source, or at shutdown.
	SessionsTimedOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netdumpd_sessions_timed_out_total",
		Help: "Total number of dump sessions evicted for inactivity",
	})

	// SessionsErrored counts sessions that transitioned to
	// Terminal-Error, almost always a disk write failure.
	SessionsErrored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netdumpd_sessions_errored_total",
		Help: "Total number of dump sessions that ended in error",
	})

	// ActiveSessions is the current size of the session table.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "netdumpd_active_sessions",
		Help: "Current number of active dump sessions",
	})

	// CoreBytesBuffered counts VMCORE payload bytes accepted into a
	// coalescing buffer, whether or not they have been flushed yet.
	CoreBytesBuffered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netdumpd_core_bytes_buffered_total",
		Help: "Total VMCORE payload bytes accepted across all sessions",
	})

	// CoalescerFlushes counts flush operations across all sessions'
	// write coalescers.
	CoalescerFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netdumpd_coalescer_flushes_total",
		Help: "Total number of coalescer buffer flushes to disk",
	})
)
