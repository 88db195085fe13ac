package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/foyerlink/foyer-core/internal/auth"
	"github.com/foyerlink/foyer-core/internal/realtime"
)

// Gateway message types. The inbound vocabulary is a closed set: any
// message whose type is not listed here is answered with an error
// envelope rather than silently dropped.
const (
	gwTypeRegister    = "register"
	gwTypeRegisterAck = "register_ack"
	gwTypePing        = "ping"
	gwTypePong        = "pong"
	gwTypeError       = "error"
)

// roleDevice is the handshake role for hardware connections. It is not
// a user account role; device sessions are bound by channel name.
const roleDevice auth.Role = "device"

// registerTimeout is how long the gateway waits for the registration
// handshake before dropping the socket.
const registerTimeout = 10 * time.Second

// writeTimeout is the per-message write deadline on gateway sockets.
const writeTimeout = 10 * time.Second

// registerMessage is the first message a client must send after the
// WebSocket upgrade.
type registerMessage struct {
	Type     string    `json:"type"`
	Role     auth.Role `json:"role"`
	Token    string    `json:"token,omitempty"`
	HostID   int64     `json:"hostId,omitempty"`
	DeviceID string    `json:"deviceId,omitempty"`
}

// registerAck confirms a successful registration.
type registerAck struct {
	Type           string `json:"type"`
	ConnectionID   string `json:"connectionId"`
	ConnectionType string `json:"connectionType"`
}

// gatewayError is the error envelope sent before closing a misbehaving
// socket or answering an unknown message type.
type gatewayError struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// inboundMessage is any post-registration client message.
type inboundMessage struct {
	Type string `json:"type"`
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// session pairs a registry connection with the socket that carries it.
// The write mutex serialises data frames, control frames, and probe
// pings; gorilla/websocket permits one concurrent writer only.
type session struct {
	conn *realtime.Conn
	ws   *websocket.Conn
	mu   sync.Mutex
}

// writeJSON sends a JSON control envelope on the socket.
func (sess *session) writeJSON(v any) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	//nolint:errcheck // deadline on a live conn cannot fail
	sess.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return sess.ws.WriteJSON(v)
}

// writeMessage sends a raw payload on the socket.
func (sess *session) writeMessage(messageType int, data []byte) error {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	//nolint:errcheck // deadline on a live conn cannot fail
	sess.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return sess.ws.WriteMessage(messageType, data)
}

// sessionTable maps registry connection ids to their sockets so the
// liveness prober can reach the transport.
type sessionTable struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newSessionTable() *sessionTable {
	return &sessionTable{sessions: make(map[string]*session)}
}

func (t *sessionTable) add(sess *session) {
	t.mu.Lock()
	t.sessions[sess.conn.ID] = sess
	t.mu.Unlock()
}

func (t *sessionTable) remove(id string) {
	t.mu.Lock()
	delete(t.sessions, id)
	t.mu.Unlock()
}

func (t *sessionTable) get(id string) *session {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessions[id]
}

// closeAll tears down every socket, releasing read pumps blocked in
// ReadMessage during shutdown.
func (t *sessionTable) closeAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, sess := range t.sessions {
		sess.ws.Close()
		delete(t.sessions, id)
	}
}

// probeSession is the registry's liveness prober: it sends a WebSocket
// ping control frame; the pong handler calls Conn.Confirm.
func (s *Server) probeSession(c *realtime.Conn) error {
	sess := s.sessions.get(c.ID)
	if sess == nil {
		return fmt.Errorf("no socket for connection %s", c.ID)
	}
	return sess.writeMessage(websocket.PingMessage, nil)
}

// handleWebSocket upgrades the connection and runs the session gateway.
//
// The first client message must be a registration handshake:
//
//	{"type":"register","role":"host","token":"...","hostId":7}
//	{"type":"register","role":"device","deviceId":"door-lobby"}
//
// Staff roles authenticate with the same JWT as the REST API, carried in
// the handshake because browsers cannot set WebSocket headers. Device
// sessions are validated against the provisioned device table.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	conn, err := s.registerSession(r, ws)
	if err != nil {
		//nolint:errcheck // best-effort error report before close
		ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		//nolint:errcheck
		ws.WriteJSON(gatewayError{Type: gwTypeError, Error: err.Error()})
		ws.Close()
		return
	}

	sess := &session{conn: conn, ws: ws}
	s.sessions.add(sess)
	s.registry.Register(conn)

	connectionType := "user"
	if conn.DeviceID != "" {
		connectionType = "device"
	}

	if err := sess.writeJSON(registerAck{
		Type:           gwTypeRegisterAck,
		ConnectionID:   conn.ID,
		ConnectionType: connectionType,
	}); err != nil {
		s.teardownSession(sess)
		return
	}

	s.logger.Info("session registered",
		"connection_id", conn.ID,
		"role", conn.Role,
		"type", connectionType,
	)

	go s.writePump(sess)
	s.readPump(sess)
}

// registerSession reads and validates the registration handshake.
func (s *Server) registerSession(r *http.Request, ws *websocket.Conn) (*realtime.Conn, error) {
	ws.SetReadLimit(int64(s.cfg.WebSocket.MaxMessageSize))
	//nolint:errcheck // deadline on a fresh conn cannot fail
	ws.SetReadDeadline(time.Now().Add(registerTimeout))

	_, data, err := ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("registration not received")
	}

	var reg registerMessage
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("registration must be valid JSON")
	}
	if reg.Type != gwTypeRegister {
		return nil, fmt.Errorf("unknown message type %q, expected %q", reg.Type, gwTypeRegister)
	}

	queueSize := s.cfg.Realtime.SendBufferSize

	switch reg.Role {
	case auth.RoleHost, auth.RoleGuard, auth.RoleAdmin:
		principal, err := s.authenticateHandshake(r, reg)
		if err != nil {
			return nil, err
		}
		if principal.Role != reg.Role {
			return nil, fmt.Errorf("token role %q does not match declared role %q", principal.Role, reg.Role)
		}

		hostID := int64(0)
		if reg.Role == auth.RoleHost {
			// Host sessions are always bound to the account in the
			// token, never to a client-declared id.
			hostID = principal.UserID
		}
		return realtime.NewConn(reg.Role, hostID, "", queueSize), nil

	case roleDevice:
		if reg.DeviceID == "" {
			return nil, fmt.Errorf("deviceId is required for device registration")
		}
		dev, err := s.deviceRepo.GetByDeviceID(r.Context(), reg.DeviceID)
		if err != nil {
			return nil, fmt.Errorf("unknown device %q", reg.DeviceID)
		}
		if !dev.IsActive {
			return nil, fmt.Errorf("device %q is inactive", reg.DeviceID)
		}
		return realtime.NewConn(roleDevice, 0, reg.DeviceID, queueSize), nil

	default:
		return nil, fmt.Errorf("unknown role %q", reg.Role)
	}
}

// authenticateHandshake resolves the staff principal for a handshake,
// accepting the token from the register message or a bearer header.
func (s *Server) authenticateHandshake(r *http.Request, reg registerMessage) (auth.Principal, error) {
	token := reg.Token
	if token == "" {
		token = bearerToken(r)
	}
	if token == "" {
		return auth.Principal{}, fmt.Errorf("token is required for staff registration")
	}

	claims, err := auth.ParseToken(token, s.cfg.Security.JWT.Secret)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("invalid token")
	}
	principal, err := claims.Principal()
	if err != nil {
		return auth.Principal{}, fmt.Errorf("invalid token subject")
	}
	return principal, nil
}

// readPump consumes inbound messages until the socket drops. Pong
// control frames and application-level pings both confirm liveness.
func (s *Server) readPump(sess *session) {
	defer s.teardownSession(sess)

	pongTimeout := time.Duration(s.cfg.WebSocket.PongTimeout) * time.Second
	readDeadline := time.Duration(s.cfg.Realtime.LivenessInterval)*time.Second + pongTimeout

	//nolint:errcheck // deadline on a live conn cannot fail
	sess.ws.SetReadDeadline(time.Now().Add(readDeadline))
	sess.ws.SetPongHandler(func(string) error {
		sess.conn.Confirm()
		//nolint:errcheck
		sess.ws.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, data, err := sess.ws.ReadMessage()
		if err != nil {
			return
		}
		//nolint:errcheck
		sess.ws.SetReadDeadline(time.Now().Add(readDeadline))

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			//nolint:errcheck // best-effort; socket teardown handles failure
			sess.writeJSON(gatewayError{Type: gwTypeError, Error: "message must be valid JSON"})
			continue
		}

		switch msg.Type {
		case gwTypePing:
			sess.conn.Confirm()
			//nolint:errcheck
			sess.writeJSON(inboundMessage{Type: gwTypePong})
		case gwTypeRegister:
			//nolint:errcheck
			sess.writeJSON(gatewayError{Type: gwTypeError, Error: "already registered"})
		default:
			//nolint:errcheck
			sess.writeJSON(gatewayError{Type: gwTypeError, Error: fmt.Sprintf("unknown message type %q", msg.Type)})
		}
	}
}

// writePump drains the registry connection's outbound queue onto the
// socket. It exits when the queue closes (unregistration) or a write
// fails, and tears the socket down so readPump unblocks.
func (s *Server) writePump(sess *session) {
	for msg := range sess.conn.Outbound() {
		if err := sess.writeMessage(websocket.TextMessage, msg); err != nil {
			s.logger.Warn("session write failed",
				"connection_id", sess.conn.ID,
				"error", err,
			)
			break
		}
	}
	sess.ws.Close()
}

// teardownSession removes a session from the table and the registry.
func (s *Server) teardownSession(sess *session) {
	s.sessions.remove(sess.conn.ID)
	s.registry.Unregister(sess.conn.ID)
	sess.ws.Close()
	s.logger.Info("session closed", "connection_id", sess.conn.ID, "role", sess.conn.Role)
}

// relayDeviceEvent forwards a device event publication from the bus to
// every guard and admin session as an iot_event envelope.
func (s *Server) relayDeviceEvent(topic string, payload []byte) error {
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		s.logger.Warn("unparseable device event", "topic", topic, "error", err)
		return nil
	}

	envelope, err := json.Marshal(map[string]any{
		"type":      "iot_event",
		"device_id": deviceIDFromTopic(topic),
		"event":     body,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encoding device event relay: %w", err)
	}

	for _, c := range s.registry.ForRole(auth.RoleGuard) {
		if !c.Enqueue(envelope) {
			c.FlagUnhealthy()
		}
	}
	for _, c := range s.registry.ForRole(auth.RoleAdmin) {
		if !c.Enqueue(envelope) {
			c.FlagUnhealthy()
		}
	}

	return nil
}

// NotifyDeviceStatus pushes an iot_device_status envelope to every
// guard and admin session. Implements device.StatusSink; fed by the
// dispatcher's heartbeat handler.
func (s *Server) NotifyDeviceStatus(deviceID, status string) {
	envelope, err := json.Marshal(map[string]any{
		"type":      "iot_device_status",
		"device_id": deviceID,
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}

	for _, c := range s.registry.ForRole(auth.RoleGuard) {
		if !c.Enqueue(envelope) {
			c.FlagUnhealthy()
		}
	}
	for _, c := range s.registry.ForRole(auth.RoleAdmin) {
		if !c.Enqueue(envelope) {
			c.FlagUnhealthy()
		}
	}
}

// deviceIDFromTopic extracts the channel name from foyer/event/{device_id}.
func deviceIDFromTopic(topic string) string {
	for i := len(topic) - 1; i >= 0; i-- {
		if topic[i] == '/' {
			return topic[i+1:]
		}
	}
	return topic
}
