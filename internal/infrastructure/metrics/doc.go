// Package metrics provides InfluxDB connectivity for Foyer Core telemetry.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched metric writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data for:
//   - Visitor lifecycle transitions (throughput, approval latency)
//   - Real-time fanout delivery and drop counts
//   - Device heartbeats and connection gauges
//
// # Usage
//
//	client, err := metrics.Connect(cfg.Metrics)
//	if errors.Is(err, metrics.ErrDisabled) {
//	    // telemetry off, run without it
//	}
//	defer client.Close()
//
//	client.WriteVisitTransition("pending", "approved", "host")
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via a
// callback set with SetOnError. Connection and health check errors are
// returned directly.
package metrics
