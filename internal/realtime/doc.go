// Package realtime implements the connection-scoped notification bus:
// the connection registry, the liveness sweep, and the event fanout.
//
// Connections are runtime-only. Each is tagged with a role and, where
// relevant, a host id or device channel; the registry indexes all three
// so fanout touches only matching connections. A periodic sweep probes
// every connection and purges the ones that fail to answer within a full
// cycle, bounding memory growth from silently-dropped sockets.
//
// Delivery guarantees are deliberately weak: per-connection bounded
// queues, drop-oldest on overflow, no persistence across restarts.
// The store commit is the source of truth; the bus is a best-effort
// mirror of it.
package realtime
