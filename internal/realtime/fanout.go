package realtime

import (
	"github.com/foyerlink/foyer-core/internal/auth"
	"github.com/foyerlink/foyer-core/internal/infrastructure/logging"
	"github.com/foyerlink/foyer-core/internal/visitor"
)

// FanoutRecorder receives delivery telemetry per published event. Optional.
// Satisfied by metrics.Client.
type FanoutRecorder interface {
	WriteFanoutDelivery(eventType string, delivered, dropped int)
}

// Fanout pushes domain events to exactly the connections that should see
// them. Implements visitor.Sink.
//
// Recipient selection:
//   - visitor events: the visit's host sessions, plus every admin and
//     guard session
//   - device command events: only the connection bound to that device
//     channel, if one exists
//
// Delivery is best-effort and never blocks or errors: each recipient has
// its own bounded queue, a failed enqueue is logged and flags the
// connection for liveness re-check, and other recipients are unaffected.
type Fanout struct {
	registry *Registry
	logger   *logging.Logger

	recorder FanoutRecorder
}

// NewFanout creates a fanout over the given registry.
func NewFanout(registry *Registry, logger *logging.Logger) *Fanout {
	return &Fanout{
		registry: registry,
		logger:   logger,
	}
}

// SetRecorder wires optional delivery telemetry.
func (f *Fanout) SetRecorder(rec FanoutRecorder) {
	f.recorder = rec
}

// Publish delivers an event to its recipient set.
func (f *Fanout) Publish(event visitor.Event) {
	recipients := f.recipients(event)
	if len(recipients) == 0 {
		return
	}

	payload, err := encodeEvent(event)
	if err != nil {
		f.logger.Error("encoding event for fanout", "event", event.Name(), "error", err)
		return
	}

	delivered, dropped := 0, 0
	for _, c := range recipients {
		if c.Enqueue(payload) {
			delivered++
			continue
		}

		dropped++
		c.FlagUnhealthy()
		f.logger.Warn("event delivery failed",
			"event", event.Name(),
			"connection_id", c.ID,
			"role", c.Role,
		)
	}

	if f.recorder != nil {
		f.recorder.WriteFanoutDelivery(event.Name(), delivered, dropped)
	}
}

// recipients computes the exact recipient set for an event.
func (f *Fanout) recipients(event visitor.Event) []*Conn {
	switch e := event.(type) {
	case visitor.Registered:
		return f.visitRecipients(e.Visitor.HostID)
	case visitor.StatusChanged:
		return f.visitRecipients(e.Visitor.HostID)
	case visitor.CheckedIn:
		return f.visitRecipients(e.Visitor.HostID)
	case visitor.CheckedOut:
		return f.visitRecipients(e.Visitor.HostID)
	case visitor.DeviceCommandIssued:
		if c := f.registry.ForDevice(e.DeviceID); c != nil {
			return []*Conn{c}
		}
		return nil
	}
	return nil
}

// visitRecipients is the union of the owning host's sessions and every
// admin and guard session, deduplicated by connection id.
func (f *Fanout) visitRecipients(hostID int64) []*Conn {
	seen := make(map[string]bool)
	var out []*Conn

	add := func(conns []*Conn) {
		for _, c := range conns {
			if !seen[c.ID] {
				seen[c.ID] = true
				out = append(out, c)
			}
		}
	}

	add(f.registry.ForHost(hostID))
	add(f.registry.ForRole(auth.RoleAdmin))
	add(f.registry.ForRole(auth.RoleGuard))

	return out
}
