package metrics

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteVisitTransition records a visitor lifecycle transition.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - fromStatus: Status before the transition (e.g., "pending")
//   - toStatus: Status after the transition (e.g., "approved")
//   - actorRole: Role of the user who performed the transition
//
// Example:
//
//	client.WriteVisitTransition("pending", "approved", "host")
func (c *Client) WriteVisitTransition(fromStatus, toStatus, actorRole string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"visit_transitions",
		map[string]string{
			"from": fromStatus,
			"to":   toStatus,
			"role": actorRole,
		},
		map[string]interface{}{
			"count": int64(1),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteFanoutDelivery records real-time delivery outcomes for one event.
//
// Parameters:
//   - eventType: The event that was fanned out (e.g., "visitor_approved")
//   - delivered: Number of connections the event was queued to
//   - dropped: Number of connections whose queue was full
func (c *Client) WriteFanoutDelivery(eventType string, delivered, dropped int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"fanout",
		map[string]string{
			"event": eventType,
		},
		map[string]interface{}{
			"delivered": int64(delivered),
			"dropped":   int64(dropped),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteDeviceHeartbeat records a heartbeat beacon from a device.
//
// Parameters:
//   - deviceID: Channel name of the device (e.g., "door-main")
//   - rssi: Reported signal strength, 0 if the device does not report one
func (c *Client) WriteDeviceHeartbeat(deviceID string, rssi float64) {
	if !c.IsConnected() {
		return
	}

	fields := map[string]interface{}{
		"count": int64(1),
	}
	if rssi != 0 {
		fields["rssi"] = rssi
	}

	point := write.NewPoint(
		"device_heartbeats",
		map[string]string{
			"device_id": deviceID,
		},
		fields,
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteConnectionGauge records the current realtime connection counts.
//
// Called by the registry after each liveness sweep.
func (c *Client) WriteConnectionGauge(users, devices int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"connections",
		nil,
		map[string]interface{}{
			"users":   int64(users),
			"devices": int64(devices),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
