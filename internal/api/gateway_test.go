package api

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/foyerlink/foyer-core/internal/auth"
	"github.com/foyerlink/foyer-core/internal/device"
)

// readWait bounds every gateway read in tests.
const readWait = 3 * time.Second

// dialGateway opens a raw WebSocket to the test server's /ws endpoint.
func dialGateway(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/api/v1/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing gateway: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

// readEnvelope reads one JSON message with a deadline.
func readEnvelope(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()

	if err := ws.SetReadDeadline(time.Now().Add(readWait)); err != nil {
		t.Fatalf("setting read deadline: %v", err)
	}
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("reading gateway message: %v", err)
	}

	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decoding gateway message %q: %v", data, err)
	}
	return msg
}

// registerStaff completes the handshake for a staff session.
func registerStaff(t *testing.T, env *testEnv, ws *websocket.Conn, role auth.Role, token string) {
	t.Helper()

	if err := ws.WriteJSON(registerMessage{Type: gwTypeRegister, Role: role, Token: token}); err != nil {
		t.Fatalf("sending registration: %v", err)
	}
	ack := readEnvelope(t, ws)
	if ack["type"] != gwTypeRegisterAck {
		t.Fatalf("expected register_ack, got %v", ack)
	}
	if ack["connectionType"] != "user" {
		t.Errorf("expected user connection, got %v", ack["connectionType"])
	}
}

func TestGateway_StaffHandshake(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin1", auth.RoleAdmin)

	ws := dialGateway(t, env)
	registerStaff(t, env, ws, auth.RoleAdmin, env.tokenFor(t, admin))

	if env.registry.Count() != 1 {
		t.Errorf("expected 1 registered connection, got %d", env.registry.Count())
	}
}

func TestGateway_DeviceHandshake(t *testing.T) {
	env := newTestEnv(t)
	env.seedDevice(t, "door-lobby", device.TypeDoor)

	ws := dialGateway(t, env)
	if err := ws.WriteJSON(registerMessage{Type: gwTypeRegister, Role: roleDevice, DeviceID: "door-lobby"}); err != nil {
		t.Fatalf("sending registration: %v", err)
	}

	ack := readEnvelope(t, ws)
	if ack["type"] != gwTypeRegisterAck {
		t.Fatalf("expected register_ack, got %v", ack)
	}
	if ack["connectionType"] != "device" {
		t.Errorf("expected device connection, got %v", ack["connectionType"])
	}
}

func TestGateway_UnknownDeviceRejected(t *testing.T) {
	env := newTestEnv(t)

	ws := dialGateway(t, env)
	if err := ws.WriteJSON(registerMessage{Type: gwTypeRegister, Role: roleDevice, DeviceID: "ghost"}); err != nil {
		t.Fatalf("sending registration: %v", err)
	}

	msg := readEnvelope(t, ws)
	if msg["type"] != gwTypeError {
		t.Fatalf("expected error envelope, got %v", msg)
	}
}

func TestGateway_UnknownFirstMessageTypeRejected(t *testing.T) {
	env := newTestEnv(t)

	ws := dialGateway(t, env)
	if err := ws.WriteJSON(map[string]any{"type": "subscribe"}); err != nil {
		t.Fatalf("sending message: %v", err)
	}

	msg := readEnvelope(t, ws)
	if msg["type"] != gwTypeError {
		t.Fatalf("expected error envelope, got %v", msg)
	}
	if !strings.Contains(msg["error"].(string), "unknown message type") {
		t.Errorf("error should name the unknown type, got %v", msg["error"])
	}
}

func TestGateway_StaffHandshakeRequiresToken(t *testing.T) {
	env := newTestEnv(t)

	ws := dialGateway(t, env)
	if err := ws.WriteJSON(registerMessage{Type: gwTypeRegister, Role: auth.RoleGuard}); err != nil {
		t.Fatalf("sending registration: %v", err)
	}

	msg := readEnvelope(t, ws)
	if msg["type"] != gwTypeError {
		t.Fatalf("expected error envelope, got %v", msg)
	}
}

func TestGateway_RoleMustMatchToken(t *testing.T) {
	env := newTestEnv(t)
	host := env.seedUser(t, "host1", auth.RoleHost)

	ws := dialGateway(t, env)
	if err := ws.WriteJSON(registerMessage{
		Type:  gwTypeRegister,
		Role:  auth.RoleAdmin,
		Token: env.tokenFor(t, host),
	}); err != nil {
		t.Fatalf("sending registration: %v", err)
	}

	msg := readEnvelope(t, ws)
	if msg["type"] != gwTypeError {
		t.Fatalf("expected error envelope, got %v", msg)
	}
}

func TestGateway_PingPong(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin1", auth.RoleAdmin)

	ws := dialGateway(t, env)
	registerStaff(t, env, ws, auth.RoleAdmin, env.tokenFor(t, admin))

	if err := ws.WriteJSON(map[string]any{"type": gwTypePing}); err != nil {
		t.Fatalf("sending ping: %v", err)
	}
	msg := readEnvelope(t, ws)
	if msg["type"] != gwTypePong {
		t.Fatalf("expected pong, got %v", msg)
	}
}

func TestGateway_UnknownTypeAfterRegistration(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin1", auth.RoleAdmin)

	ws := dialGateway(t, env)
	registerStaff(t, env, ws, auth.RoleAdmin, env.tokenFor(t, admin))

	if err := ws.WriteJSON(map[string]any{"type": "mystery"}); err != nil {
		t.Fatalf("sending message: %v", err)
	}
	msg := readEnvelope(t, ws)
	if msg["type"] != gwTypeError {
		t.Fatalf("expected error envelope, got %v", msg)
	}
}

func TestGateway_VisitorEventDelivery(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedUser(t, "admin1", auth.RoleAdmin)
	host := env.seedUser(t, "host1", auth.RoleHost)
	guard := env.seedUser(t, "guard1", auth.RoleGuard)

	ws := dialGateway(t, env)
	registerStaff(t, env, ws, auth.RoleAdmin, env.tokenFor(t, admin))

	registerVisitor(t, env, env.tokenFor(t, guard), host.ID)

	msg := readEnvelope(t, ws)
	if msg["type"] != "visitor_registered" {
		t.Fatalf("expected visitor_registered, got %v", msg["type"])
	}
	v, ok := msg["visitor"].(map[string]any)
	if !ok {
		t.Fatalf("expected visitor record in envelope, got %v", msg)
	}
	if v["name"] != "Ada Visitor" {
		t.Errorf("unexpected visitor payload %v", v)
	}
}

func TestGateway_DeviceStatusRelay(t *testing.T) {
	env := newTestEnv(t)
	guard := env.seedUser(t, "guard1", auth.RoleGuard)
	env.seedDevice(t, "door-lobby", device.TypeDoor)

	ws := dialGateway(t, env)
	registerStaff(t, env, ws, auth.RoleGuard, env.tokenFor(t, guard))

	if err := env.dispatcher.HandleHeartbeat("foyer/heartbeat/door-lobby", []byte(`{"rssi":-61}`)); err != nil {
		t.Fatalf("handling heartbeat: %v", err)
	}

	msg := readEnvelope(t, ws)
	if msg["type"] != "iot_device_status" {
		t.Fatalf("expected iot_device_status, got %v", msg["type"])
	}
	if msg["device_id"] != "door-lobby" {
		t.Errorf("unexpected device_id %v", msg["device_id"])
	}
	if msg["status"] != "online" {
		t.Errorf("unexpected status %v", msg["status"])
	}
}

func TestGateway_HostDoesNotSeeOtherHostsVisits(t *testing.T) {
	env := newTestEnv(t)
	host := env.seedUser(t, "host1", auth.RoleHost)
	other := env.seedUser(t, "host2", auth.RoleHost)
	guard := env.seedUser(t, "guard1", auth.RoleGuard)

	ws := dialGateway(t, env)
	registerStaff(t, env, ws, auth.RoleHost, env.tokenFor(t, other))

	// A visit for host1 must never reach host2's session.
	registerVisitor(t, env, env.tokenFor(t, guard), host.ID)

	if err := ws.SetReadDeadline(time.Now().Add(500 * time.Millisecond)); err != nil {
		t.Fatalf("setting read deadline: %v", err)
	}
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatal("host2 received an event for host1's visit")
	}
}
