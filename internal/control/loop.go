package control

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/streamkeep/pgcdc/pkg/util"
	"go.uber.org/zap"
)

// DefaultSocketPath is the metrics socket path spec.md §4.7 uses
// unless FLUVIO_METRIC_CONNECTOR overrides it.
const DefaultSocketPath = "/tmp/fluvio-connector.sock"

// SocketPath resolves the metrics listener path from the
// FLUVIO_METRIC_CONNECTOR environment knob, falling back to
// DefaultSocketPath.
func SocketPath() string {
	return util.GetEnvOrDefault("FLUVIO_METRIC_CONNECTOR", DefaultSocketPath)
}

// Loop is the shared cooperative-cancellation and backoff owner every
// process in this repository carries: a shutdown flag polled between
// iterations (spec.md §5 "Cancellation & timeouts"), plus the
// exponential backoff policy (1s..60s, doubled on failure, reset on
// success) spec.md §4.3/§4.5 both specify for reconnect/retry.
type Loop struct {
	shutdown atomic.Bool
	log      *zap.Logger
}

func NewLoop(log *zap.Logger) *Loop {
	return &Loop{log: log}
}

// RequestShutdown flips the cooperative cancellation flag; in-flight
// work is allowed to finish its current iteration.
func (l *Loop) RequestShutdown() { l.shutdown.Store(true) }

// ShuttingDown reports whether RequestShutdown has been called.
func (l *Loop) ShuttingDown() bool { return l.shutdown.Load() }

// NewBackoff returns the adaptive reconnect/retry policy spec.md §5
// specifies: exponential, starting at 1s, capped at 60s, retried
// forever (the caller decides when to give up, e.g. on shutdown).
func NewBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.MaxInterval = 60 * time.Second
	b.MaxElapsedTime = 0 // no cap: infinite retry is the default policy
	b.Reset()            // the constructor already reset to its own default interval
	return b
}

// ServeMetrics opens a best-effort Unix socket listener at path,
// writing one JSON Snapshot per accepted connection, per spec.md §4.7.
// Bind/accept failures are logged and do not affect the pipeline;
// ctx cancellation closes the listener and returns.
func (l *Loop) ServeMetrics(ctx context.Context, path string, counters *ByteCounters) {
	if err := os.RemoveAll(path); err != nil && l.log != nil {
		l.log.Warn("control: remove stale metrics socket", zap.String("path", path), zap.Error(err))
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		if l.log != nil {
			l.log.Warn("control: metrics socket bind failed, continuing without it", zap.String("path", path), zap.Error(err))
		}
		return
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if l.log != nil {
				l.log.Warn("control: metrics socket accept error", zap.Error(err))
			}
			continue
		}
		go writeSnapshot(conn, counters, l.log)
	}
}

func writeSnapshot(conn net.Conn, counters *ByteCounters, log *zap.Logger) {
	defer conn.Close()
	if err := json.NewEncoder(conn).Encode(counters.Snapshot()); err != nil && log != nil {
		log.Warn("control: write metrics snapshot failed", zap.Error(err))
	}
}
