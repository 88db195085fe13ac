package device

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/foyerlink/foyer-core/internal/auth"
	"github.com/foyerlink/foyer-core/internal/infrastructure/logging"
	"github.com/foyerlink/foyer-core/internal/visitor"
)

// fakePublisher records published messages and can simulate failures.
type fakePublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
	failWith error
}

type publishedMessage struct {
	topic   string
	payload []byte
	qos     byte
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.messages = append(f.messages, publishedMessage{topic: topic, payload: payload, qos: qos})
	return nil
}

func (f *fakePublisher) all() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishedMessage, len(f.messages))
	copy(out, f.messages)
	return out
}

func testLogger() *logging.Logger {
	return &logging.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func testDispatcher(t *testing.T) (*Dispatcher, *SQLiteRepository, *fakePublisher) {
	t.Helper()

	db := testDB(t)
	repo := NewRepository(db)
	pub := &fakePublisher{}
	return NewDispatcher(repo, pub, testLogger()), repo, pub
}

func TestDispatch(t *testing.T) {
	disp, repo, pub := testDispatcher(t)
	ctx := context.Background()

	seedDevice(t, repo, "door-main", TypeDoor, true)

	actor := auth.Principal{UserID: 9, Role: auth.RoleAdmin}
	err := disp.Dispatch(ctx, "door-main", "unlock", map[string]any{"duration_s": 5}, actor)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	msgs := pub.all()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].topic != "foyer/command/door-main" {
		t.Errorf("topic = %q, want %q", msgs[0].topic, "foyer/command/door-main")
	}
	if msgs[0].qos != 1 {
		t.Errorf("qos = %d, want 1", msgs[0].qos)
	}

	var payload commandPayload
	if err := json.Unmarshal(msgs[0].payload, &payload); err != nil {
		t.Fatalf("decoding payload: %v", err)
	}
	if payload.Command != "unlock" {
		t.Errorf("Command = %q, want %q", payload.Command, "unlock")
	}
	if payload.IssuedBy != 9 {
		t.Errorf("IssuedBy = %d, want 9", payload.IssuedBy)
	}

	// last_seen stamped on dispatch
	got, err := repo.GetByDeviceID(ctx, "door-main")
	if err != nil {
		t.Fatalf("GetByDeviceID() error = %v", err)
	}
	if got.LastSeen == nil {
		t.Error("LastSeen should be stamped after dispatch")
	}
}

func TestDispatch_UnknownDevice(t *testing.T) {
	disp, _, pub := testDispatcher(t)

	err := disp.Dispatch(context.Background(), "ghost", "unlock", nil, auth.Principal{})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if len(pub.all()) != 0 {
		t.Error("nothing should be published for an unknown device")
	}
}

func TestDispatch_InactiveDevice(t *testing.T) {
	disp, repo, pub := testDispatcher(t)

	seedDevice(t, repo, "door-dead", TypeDoor, false)

	err := disp.Dispatch(context.Background(), "door-dead", "unlock", nil, auth.Principal{})
	if !errors.Is(err, ErrInactive) {
		t.Errorf("error = %v, want ErrInactive", err)
	}
	if len(pub.all()) != 0 {
		t.Error("nothing should be published to an inactive device")
	}
}

func TestDispatch_TransportFailure(t *testing.T) {
	disp, repo, pub := testDispatcher(t)

	seedDevice(t, repo, "door-main", TypeDoor, true)
	pub.failWith = errors.New("broker unreachable")

	err := disp.Dispatch(context.Background(), "door-main", "unlock", nil, auth.Principal{})
	if err == nil {
		t.Fatal("Dispatch() should surface the transport error")
	}
}

func TestPublish_DispatchesCommandEvents(t *testing.T) {
	disp, repo, pub := testDispatcher(t)

	seedDevice(t, repo, "door-main", TypeDoor, true)

	disp.Publish(visitor.DeviceCommandIssued{DeviceID: "door-main", Command: "unlock"})

	msgs := pub.all()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].topic != "foyer/command/door-main" {
		t.Errorf("topic = %q, want %q", msgs[0].topic, "foyer/command/door-main")
	}
}

func TestPublish_IgnoresOtherEvents(t *testing.T) {
	disp, _, pub := testDispatcher(t)

	disp.Publish(visitor.Registered{Visitor: &visitor.Visitor{ID: 1}})
	disp.Publish(visitor.CheckedIn{Visitor: &visitor.Visitor{ID: 1}})

	if len(pub.all()) != 0 {
		t.Error("non-command events must not reach the transport")
	}
}

func TestPublish_AbsorbsFailures(t *testing.T) {
	disp, _, pub := testDispatcher(t)

	// Unknown device: Dispatch errors, Publish must absorb it.
	disp.Publish(visitor.DeviceCommandIssued{DeviceID: "ghost", Command: "unlock"})

	if len(pub.all()) != 0 {
		t.Error("failed dispatch should not publish")
	}
}

func TestHandleHeartbeat(t *testing.T) {
	disp, repo, _ := testDispatcher(t)

	seedDevice(t, repo, "scanner-lobby", TypeScanner, true)

	err := disp.HandleHeartbeat("foyer/heartbeat/scanner-lobby", []byte(`{"rssi":-61}`))
	if err != nil {
		t.Fatalf("HandleHeartbeat() error = %v", err)
	}

	got, err := repo.GetByDeviceID(context.Background(), "scanner-lobby")
	if err != nil {
		t.Fatalf("GetByDeviceID() error = %v", err)
	}
	if got.LastSeen == nil {
		t.Error("LastSeen should be stamped by heartbeat")
	}
}

func TestHandleHeartbeat_UnknownDevice(t *testing.T) {
	disp, _, _ := testDispatcher(t)

	if err := disp.HandleHeartbeat("foyer/heartbeat/ghost", nil); err == nil {
		t.Error("heartbeat from unknown device should error")
	}
}

func TestHandleHeartbeat_MalformedTopic(t *testing.T) {
	disp, _, _ := testDispatcher(t)

	if err := disp.HandleHeartbeat("foyer/heartbeat", nil); err == nil {
		t.Error("malformed topic should error")
	}
}
