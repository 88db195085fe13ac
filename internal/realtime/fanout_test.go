package realtime

import (
	"encoding/json"
	"testing"

	"github.com/foyerlink/foyer-core/internal/auth"
	"github.com/foyerlink/foyer-core/internal/visitor"
)

func testVisitor(hostID int64) *visitor.Visitor {
	return &visitor.Visitor{
		ID:     1,
		Name:   "Ada Visitor",
		HostID: hostID,
		Status: visitor.StatusApproved,
	}
}

func TestFanout_VisitEventScoping(t *testing.T) {
	r := NewRegistry(testLogger())
	f := NewFanout(r, testLogger())

	host7 := NewConn(auth.RoleHost, 7, "", 4)
	host9 := NewConn(auth.RoleHost, 9, "", 4)
	admin := NewConn(auth.RoleAdmin, 0, "", 4)
	guard := NewConn(auth.RoleGuard, 0, "", 4)
	r.Register(host7)
	r.Register(host9)
	r.Register(admin)
	r.Register(guard)

	f.Publish(visitor.StatusChanged{
		Visitor: testVisitor(7),
		From:    visitor.StatusPending,
		To:      visitor.StatusApproved,
	})

	for _, tt := range []struct {
		name string
		conn *Conn
		want int
	}{
		{"owning host", host7, 1},
		{"other host", host9, 0},
		{"admin", admin, 1},
		{"guard", guard, 1},
	} {
		if got := len(drain(tt.conn)); got != tt.want {
			t.Errorf("%s received %d messages, want %d", tt.name, got, tt.want)
		}
	}
}

func TestFanout_EnvelopeShape(t *testing.T) {
	r := NewRegistry(testLogger())
	f := NewFanout(r, testLogger())

	guard := NewConn(auth.RoleGuard, 0, "", 4)
	r.Register(guard)

	f.Publish(visitor.CheckedIn{Visitor: testVisitor(7)})

	msgs := drain(guard)
	if len(msgs) != 1 {
		t.Fatalf("received %d messages, want 1", len(msgs))
	}

	var envelope struct {
		Type    string           `json:"type"`
		Visitor *visitor.Visitor `json:"visitor"`
	}
	if err := json.Unmarshal(msgs[0], &envelope); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	if envelope.Type != "visitor_checked_in" {
		t.Errorf("type = %q, want %q", envelope.Type, "visitor_checked_in")
	}
	if envelope.Visitor == nil || envelope.Visitor.HostID != 7 {
		t.Errorf("visitor payload = %+v, want host_id 7", envelope.Visitor)
	}
}

func TestFanout_DeviceCommandTargetsBoundConnectionOnly(t *testing.T) {
	r := NewRegistry(testLogger())
	f := NewFanout(r, testLogger())

	door := NewConn("", 0, "door-main", 4)
	guard := NewConn(auth.RoleGuard, 0, "", 4)
	r.Register(door)
	r.Register(guard)

	f.Publish(visitor.DeviceCommandIssued{DeviceID: "door-main", Command: "unlock"})

	doorMsgs := drain(door)
	if len(doorMsgs) != 1 {
		t.Fatalf("door received %d messages, want 1", len(doorMsgs))
	}
	if len(drain(guard)) != 0 {
		t.Error("guard should not receive device commands")
	}

	var envelope struct {
		Type     string `json:"type"`
		DeviceID string `json:"device_id"`
		Command  string `json:"command"`
	}
	if err := json.Unmarshal(doorMsgs[0], &envelope); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	if envelope.Type != "iot_event" || envelope.Command != "unlock" {
		t.Errorf("envelope = %+v, want iot_event/unlock", envelope)
	}
}

func TestFanout_DeviceCommandNoBoundConnection(t *testing.T) {
	r := NewRegistry(testLogger())
	f := NewFanout(r, testLogger())

	guard := NewConn(auth.RoleGuard, 0, "", 4)
	r.Register(guard)

	// Must not panic or deliver anywhere.
	f.Publish(visitor.DeviceCommandIssued{DeviceID: "ghost", Command: "unlock"})

	if len(drain(guard)) != 0 {
		t.Error("no one should receive a command for an unbound device")
	}
}

func TestFanout_SlowRecipientDoesNotBlockOthers(t *testing.T) {
	r := NewRegistry(testLogger())
	f := NewFanout(r, testLogger())

	// The slow guard's queue holds one message and is never drained.
	slow := NewConn(auth.RoleGuard, 0, "", 1)
	fast := NewConn(auth.RoleAdmin, 0, "", 8)
	r.Register(slow)
	r.Register(fast)

	for i := 0; i < 5; i++ {
		f.Publish(visitor.Registered{Visitor: testVisitor(7)})
	}

	if got := len(drain(fast)); got != 5 {
		t.Errorf("fast recipient received %d messages, want 5", got)
	}
	if !slow.Unhealthy() {
		t.Error("overflowing recipient should be flagged unhealthy")
	}
	// The slow queue kept the newest message, not an error state.
	if got := len(drain(slow)); got != 1 {
		t.Errorf("slow recipient drained %d messages, want 1", got)
	}
}

func TestFanout_RecorderCounts(t *testing.T) {
	r := NewRegistry(testLogger())
	f := NewFanout(r, testLogger())

	var gotEvent string
	var gotDelivered, gotDropped int
	f.SetRecorder(recorderFunc(func(eventType string, delivered, dropped int) {
		gotEvent, gotDelivered, gotDropped = eventType, delivered, dropped
	}))

	full := NewConn(auth.RoleGuard, 0, "", 1)
	full.Enqueue([]byte("occupied"))
	ok := NewConn(auth.RoleAdmin, 0, "", 8)
	r.Register(full)
	r.Register(ok)

	f.Publish(visitor.Registered{Visitor: testVisitor(7)})

	if gotEvent != "visitor_registered" {
		t.Errorf("recorded event = %q, want visitor_registered", gotEvent)
	}
	if gotDelivered != 1 || gotDropped != 1 {
		t.Errorf("recorded (delivered=%d, dropped=%d), want (1, 1)", gotDelivered, gotDropped)
	}
}

// recorderFunc adapts a function to the FanoutRecorder interface.
type recorderFunc func(eventType string, delivered, dropped int)

func (f recorderFunc) WriteFanoutDelivery(eventType string, delivered, dropped int) {
	f(eventType, delivered, dropped)
}
