package visitor

// Event is the closed set of domain events produced by the lifecycle
// engine. Events are transient: emitted after the store commit succeeds,
// consumed by sinks (realtime fanout, device dispatcher), never stored.
//
// The unexported marker method keeps the set closed so consumers can
// switch exhaustively.
type Event interface {
	isEvent()
	// Name returns the wire name of the event, used as the envelope type.
	Name() string
}

// Registered is emitted when a new visit request is created.
type Registered struct {
	Visitor *Visitor
}

// StatusChanged is emitted for approval-phase transitions
// (pending→approved, pending→rejected).
type StatusChanged struct {
	Visitor *Visitor
	From    Status
	To      Status
}

// CheckedIn is emitted when a guard checks the visitor in.
type CheckedIn struct {
	Visitor *Visitor
}

// CheckedOut is emitted when a guard checks the visitor out.
type CheckedOut struct {
	Visitor *Visitor
}

// DeviceCommandIssued is emitted once per active door device when a visit
// is approved. It is a broadcast to entrance hardware, not addressed to
// one visitor.
type DeviceCommandIssued struct {
	DeviceID string
	Command  string
	Params   map[string]any
	Visitor  *Visitor
}

func (Registered) isEvent()          {}
func (StatusChanged) isEvent()       {}
func (CheckedIn) isEvent()           {}
func (CheckedOut) isEvent()          {}
func (DeviceCommandIssued) isEvent() {}

func (Registered) Name() string { return "visitor_registered" }

func (e StatusChanged) Name() string {
	if e.To == StatusApproved {
		return "visitor_approved"
	}
	return "visitor_rejected"
}

func (CheckedIn) Name() string  { return "visitor_checked_in" }
func (CheckedOut) Name() string { return "visitor_checked_out" }

func (DeviceCommandIssued) Name() string { return "device_command" }

// Sink consumes domain events. Publish must not block the caller for
// long and must never return delivery failures; those are the sink's
// problem to log and absorb.
type Sink interface {
	Publish(event Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Publish calls f(event).
func (f SinkFunc) Publish(event Event) { f(event) }
