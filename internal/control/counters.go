// Package control implements the byte-counter metrics socket and the
// Prometheus endpoint every process in this repository carries
// alongside it, grounded on the original fluvio-connectors monitoring
// primitives and pkg/metrics/prom.go's Prometheus server pattern.
package control

import "sync/atomic"

// ByteCounters tracks inbound/outbound byte totals for one process.
// Safe for concurrent use; the replication/consume loop writes, the
// metrics listener reads.
type ByteCounters struct {
	inbound  atomic.Uint64
	outbound atomic.Uint64
}

func (c *ByteCounters) AddInbound(n int) {
	if n > 0 {
		c.inbound.Add(uint64(n))
	}
}

func (c *ByteCounters) AddOutbound(n int) {
	if n > 0 {
		c.outbound.Add(uint64(n))
	}
}

// Snapshot is the JSON-serializable form written once per socket
// connection.
type Snapshot struct {
	InboundBytes  uint64 `json:"inbound_bytes"`
	OutboundBytes uint64 `json:"outbound_bytes"`
}

func (c *ByteCounters) Snapshot() Snapshot {
	return Snapshot{InboundBytes: c.inbound.Load(), OutboundBytes: c.outbound.Load()}
}
