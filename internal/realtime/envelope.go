package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/foyerlink/foyer-core/internal/visitor"
)

// visitorEnvelope is the wire format for visitor lifecycle events pushed
// to user connections: {"type":"visitor_approved","visitor":{...}}.
type visitorEnvelope struct {
	Type    string           `json:"type"`
	Visitor *visitor.Visitor `json:"visitor"`
}

// deviceEnvelope is the wire format for events pushed to a device-bound
// connection.
type deviceEnvelope struct {
	Type      string         `json:"type"`
	DeviceID  string         `json:"device_id"`
	Command   string         `json:"command,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// encodeEvent renders a domain event into its outbound envelope.
func encodeEvent(event visitor.Event) ([]byte, error) {
	switch e := event.(type) {
	case visitor.Registered:
		return json.Marshal(visitorEnvelope{Type: e.Name(), Visitor: e.Visitor})
	case visitor.StatusChanged:
		return json.Marshal(visitorEnvelope{Type: e.Name(), Visitor: e.Visitor})
	case visitor.CheckedIn:
		return json.Marshal(visitorEnvelope{Type: e.Name(), Visitor: e.Visitor})
	case visitor.CheckedOut:
		return json.Marshal(visitorEnvelope{Type: e.Name(), Visitor: e.Visitor})
	case visitor.DeviceCommandIssued:
		return json.Marshal(deviceEnvelope{
			Type:      "iot_event",
			DeviceID:  e.DeviceID,
			Command:   e.Command,
			Params:    e.Params,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	default:
		return nil, fmt.Errorf("unknown event type %T", event)
	}
}
