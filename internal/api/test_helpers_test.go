package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	_ "github.com/foyerlink/foyer-core/migrations"

	"github.com/foyerlink/foyer-core/internal/auth"
	"github.com/foyerlink/foyer-core/internal/device"
	"github.com/foyerlink/foyer-core/internal/infrastructure/config"
	"github.com/foyerlink/foyer-core/internal/infrastructure/database"
	"github.com/foyerlink/foyer-core/internal/infrastructure/logging"
	"github.com/foyerlink/foyer-core/internal/realtime"
	"github.com/foyerlink/foyer-core/internal/visitor"
)

// testJWTSecret is long enough to pass config validation rules.
const testJWTSecret = "test-secret-0123456789abcdef-0123456789abcdef"

// testPassword is the password every seeded test account uses.
const testPassword = "correct-horse-battery"

// fakePublisher records published bus messages.
type fakePublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
}

type publishedMessage struct {
	Topic   string
	Payload []byte
}

func (p *fakePublisher) Publish(topic string, payload []byte, _ byte, _ bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, publishedMessage{Topic: topic, Payload: payload})
	return nil
}

func (p *fakePublisher) published() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// testEnv bundles a fully wired server with direct repository access
// for seeding fixtures.
type testEnv struct {
	server     *Server
	http       *httptest.Server
	userRepo   auth.UserRepository
	devices    device.Repository
	visitors   *visitor.Service
	registry   *realtime.Registry
	publisher  *fakePublisher
	dispatcher *device.Dispatcher
}

func testLogger() *logging.Logger {
	return &logging.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// newTestEnv builds a server over a temporary database with fresh
// migrations, wired to a fake bus transport.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "api-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}

	logger := testLogger()

	userRepo := auth.NewUserRepository(db.DB)
	deviceRepo := device.NewRepository(db.DB)
	visitorRepo := visitor.NewRepository(db.DB)

	visitors := visitor.NewService(visitorRepo, userRepo, logger)
	visitors.SetDoorLister(deviceRepo)

	publisher := &fakePublisher{}
	dispatcher := device.NewDispatcher(deviceRepo, publisher, logger)
	visitors.AddSink(dispatcher)

	registry := realtime.NewRegistry(logger)
	fanout := realtime.NewFanout(registry, logger)
	visitors.AddSink(fanout)

	cfg := &config.Config{
		API: config.APIConfig{Host: "127.0.0.1", Port: 0},
		WebSocket: config.WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Realtime: config.RealtimeConfig{
			LivenessInterval: 30,
			SendBufferSize:   16,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testJWTSecret, AccessTokenTTL: 15},
		},
	}

	server, err := New(Deps{
		Config:     cfg,
		Logger:     logger,
		Visitors:   visitors,
		UserRepo:   userRepo,
		DeviceRepo: deviceRepo,
		Dispatcher: dispatcher,
		Registry:   registry,
	})
	if err != nil {
		t.Fatalf("creating server: %v", err)
	}

	dispatcher.SetStatusSink(server)

	ts := httptest.NewServer(server.buildRouter())
	t.Cleanup(ts.Close)

	return &testEnv{
		server:     server,
		http:       ts,
		userRepo:   userRepo,
		devices:    deviceRepo,
		visitors:   visitors,
		registry:   registry,
		publisher:  publisher,
		dispatcher: dispatcher,
	}
}

// seedUser creates an active account with the shared test password.
func (env *testEnv) seedUser(t *testing.T, username string, role auth.Role) *auth.User {
	t.Helper()

	hash, err := auth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	user := &auth.User{
		Username:     username,
		Name:         "Test " + username,
		Role:         role,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := env.userRepo.Create(context.Background(), user); err != nil {
		t.Fatalf("seeding user %s: %v", username, err)
	}
	return user
}

// seedDevice creates an active device row.
func (env *testEnv) seedDevice(t *testing.T, deviceID string, devType device.Type) *device.Device {
	t.Helper()

	dev := &device.Device{
		DeviceID: deviceID,
		Name:     "Test " + deviceID,
		Type:     devType,
		IsActive: true,
		Config:   "{}",
	}
	if err := env.devices.Create(context.Background(), dev); err != nil {
		t.Fatalf("seeding device %s: %v", deviceID, err)
	}
	return dev
}

// tokenFor mints an access token for a seeded account.
func (env *testEnv) tokenFor(t *testing.T, user *auth.User) string {
	t.Helper()

	token, err := auth.GenerateAccessToken(user, testJWTSecret, 15)
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}
	return token
}

// request performs an HTTP request against the test server and decodes
// the JSON response into out when out is non-nil.
func (env *testEnv) request(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, env.http.URL+path, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}
