package device

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/foyerlink/foyer-core/internal/auth"
	"github.com/foyerlink/foyer-core/internal/infrastructure/logging"
	"github.com/foyerlink/foyer-core/internal/infrastructure/mqtt"
	"github.com/foyerlink/foyer-core/internal/visitor"
)

// commandQoS guarantees at-least-once delivery of device commands.
const commandQoS byte = 1

// Publisher is the outbound transport for device commands.
// Satisfied by mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// HeartbeatRecorder receives heartbeat telemetry. Optional.
// Satisfied by metrics.Client.
type HeartbeatRecorder interface {
	WriteDeviceHeartbeat(deviceID string, rssi float64)
}

// StatusSink is notified when a device announces itself on the bus.
// Optional. Satisfied by the API server, which relays the status to
// staff sessions.
type StatusSink interface {
	NotifyDeviceStatus(deviceID, status string)
}

// commandPayload is the wire format published on foyer/command/{device_id}.
type commandPayload struct {
	Command   string         `json:"command"`
	Params    map[string]any `json:"params,omitempty"`
	IssuedBy  int64          `json:"issued_by,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// heartbeatPayload is the wire format devices publish on foyer/heartbeat/{device_id}.
type heartbeatPayload struct {
	RSSI float64 `json:"rssi,omitempty"`
}

// Dispatcher routes commands to devices over their dedicated bus channel.
//
// Dispatch is the synchronous path (REST command endpoint); Publish is
// the event-sink path fed by the visit lifecycle. Both converge on the
// same validation and transport.
type Dispatcher struct {
	repo      Repository
	publisher Publisher
	logger    *logging.Logger

	heartbeats HeartbeatRecorder
	status     StatusSink
}

// NewDispatcher creates a dispatcher over the given repository and transport.
func NewDispatcher(repo Repository, publisher Publisher, logger *logging.Logger) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// SetHeartbeatRecorder wires optional heartbeat telemetry.
func (d *Dispatcher) SetHeartbeatRecorder(rec HeartbeatRecorder) {
	d.heartbeats = rec
}

// SetStatusSink wires optional device status relay. Called after both
// the dispatcher and the API server exist, since they have a startup
// order dependency.
func (d *Dispatcher) SetStatusSink(sink StatusSink) {
	d.status = sink
}

// Dispatch sends a command to a device channel.
//
// Fails with ErrNotFound for an unknown channel and ErrInactive when the
// device's active flag is off. On success the command is published to
// the device's topic and the device's last_seen is stamped.
func (d *Dispatcher) Dispatch(ctx context.Context, deviceID, command string, params map[string]any, source auth.Principal) error {
	dev, err := d.repo.GetByDeviceID(ctx, deviceID)
	if err != nil {
		return err
	}
	if !dev.IsActive {
		return fmt.Errorf("%w: %s", ErrInactive, deviceID)
	}

	payload, err := json.Marshal(commandPayload{
		Command:   command,
		Params:    params,
		IssuedBy:  source.UserID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encoding command: %w", err)
	}

	topic := mqtt.Topics{}.Command(deviceID)
	if err := d.publisher.Publish(topic, payload, commandQoS, false); err != nil {
		return fmt.Errorf("publishing command to %s: %w", deviceID, err)
	}

	if err := d.repo.UpdateLastSeen(ctx, deviceID, time.Now()); err != nil {
		// The command is already on the wire; a bookkeeping miss is not
		// a dispatch failure.
		d.logger.Warn("stamping last_seen after dispatch", "device_id", deviceID, "error", err)
	}

	return nil
}

// Publish consumes lifecycle events, dispatching DeviceCommandIssued to
// hardware. Implements visitor.Sink: failures are logged, never returned.
func (d *Dispatcher) Publish(event visitor.Event) {
	cmd, ok := event.(visitor.DeviceCommandIssued)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.Dispatch(ctx, cmd.DeviceID, cmd.Command, cmd.Params, auth.Principal{}); err != nil {
		d.logger.Error("device command delivery failed",
			"device_id", cmd.DeviceID,
			"command", cmd.Command,
			"error", err,
		)
	}
}

// HandleHeartbeat is the bus handler for foyer/heartbeat/+ messages.
// It stamps the device's last_seen and records telemetry.
func (d *Dispatcher) HandleHeartbeat(topic string, payload []byte) error {
	deviceID := channelFromTopic(topic)
	if deviceID == "" {
		return fmt.Errorf("heartbeat on malformed topic %q", topic)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.repo.UpdateLastSeen(ctx, deviceID, time.Now()); err != nil {
		return fmt.Errorf("recording heartbeat for %s: %w", deviceID, err)
	}

	if d.heartbeats != nil {
		var hb heartbeatPayload
		// Heartbeats from minimal firmware may carry an empty body.
		_ = json.Unmarshal(payload, &hb) //nolint:errcheck // optional telemetry
		d.heartbeats.WriteDeviceHeartbeat(deviceID, hb.RSSI)
	}

	if d.status != nil {
		d.status.NotifyDeviceStatus(deviceID, "online")
	}

	return nil
}

// channelFromTopic extracts the device channel from a foyer/{category}/{device_id} topic.
func channelFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 {
		return ""
	}
	return parts[2]
}
