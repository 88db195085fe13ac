package visitor

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/foyerlink/foyer-core/internal/auth"
	"github.com/foyerlink/foyer-core/internal/infrastructure/logging"
)

// testDB creates a temporary SQLite database with the users and visitors
// schema applied. The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "visitor-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	migrationSQL := `
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			email TEXT,
			role TEXT NOT NULL DEFAULT 'host',
			department TEXT,
			phone TEXT,
			password_hash TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE visitors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			national_id TEXT NOT NULL,
			phone TEXT NOT NULL,
			email TEXT,
			company TEXT,
			purpose TEXT NOT NULL,
			photo_ref TEXT,
			host_id INTEGER NOT NULL REFERENCES users(id),
			registered_by_id INTEGER REFERENCES users(id),
			status TEXT NOT NULL DEFAULT 'pending',
			checkin_time TEXT,
			checkout_time TEXT,
			expected_duration_min INTEGER,
			notes TEXT,
			created_at TEXT NOT NULL
		) STRICT;

		CREATE INDEX idx_visitors_host_id ON visitors(host_id);
		CREATE INDEX idx_visitors_status ON visitors(status);
	`
	if _, err := db.Exec(migrationSQL); err != nil {
		t.Fatalf("applying test migration: %v", err)
	}

	return db
}

// seedUser inserts a user row directly and returns its id.
func seedUser(t *testing.T, db *sql.DB, username string, role auth.Role, active bool) int64 {
	t.Helper()

	activeInt := 0
	if active {
		activeInt = 1
	}
	result, err := db.Exec(
		`INSERT INTO users (username, name, role, phone, password_hash, is_active) VALUES (?, ?, ?, ?, 'x', ?)`,
		username, username, string(role), "+1555"+username, activeInt,
	)
	if err != nil {
		t.Fatalf("seeding user %s: %v", username, err)
	}
	id, _ := result.LastInsertId()
	return id
}

// dbHostLookup adapts the seeded users table to the HostLookup interface.
type dbHostLookup struct {
	db *sql.DB
}

func (l *dbHostLookup) GetByID(ctx context.Context, id int64) (*auth.User, error) {
	var u auth.User
	var role string
	var isActive int
	var phone sql.NullString
	err := l.db.QueryRowContext(ctx,
		"SELECT id, username, role, phone, is_active FROM users WHERE id = ?", id).
		Scan(&u.ID, &u.Username, &role, &phone, &isActive)
	if err != nil {
		return nil, auth.ErrUserNotFound
	}
	u.Role = auth.Role(role)
	u.IsActive = isActive != 0
	if phone.Valid {
		u.Phone = phone.String
	}
	return &u, nil
}

// captureSink records published events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureSink) Publish(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureSink) all() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// unlockCommands returns the DeviceCommandIssued events captured so far.
func (c *captureSink) unlockCommands() []DeviceCommandIssued {
	var cmds []DeviceCommandIssued
	for _, e := range c.all() {
		if cmd, ok := e.(DeviceCommandIssued); ok {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}

// staticDoors is a DoorLister returning a fixed set of door channels.
type staticDoors struct {
	ids []string
}

func (d *staticDoors) ActiveDoorIDs(_ context.Context) ([]string, error) {
	return d.ids, nil
}

// recordingNotifier captures notification sends.
type recordingNotifier struct {
	mu    sync.Mutex
	sends []string
}

func (n *recordingNotifier) Send(_ context.Context, phone, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends = append(n.sends, phone+": "+message)
	return nil
}

func testLogger() *logging.Logger {
	return &logging.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// testEngine builds a Service over a fresh database with one seeded host.
// Returns the service, the host's user id, and the capture sink.
func testEngine(t *testing.T) (*Service, int64, *captureSink) {
	t.Helper()

	db := testDB(t)
	hostID := seedUser(t, db, "host1", auth.RoleHost, true)

	svc := NewService(NewRepository(db), &dbHostLookup{db: db}, testLogger())
	sink := &captureSink{}
	svc.AddSink(sink)

	return svc, hostID, sink
}

// registerTestVisitor registers a pending visitor for the given host.
func registerTestVisitor(t *testing.T, svc *Service, hostID int64) *Visitor {
	t.Helper()

	v, err := svc.Register(context.Background(), Registration{
		Name:       "Ada Visitor",
		NationalID: "AB123456",
		Phone:      "+15550999",
		Purpose:    "meeting",
		HostID:     hostID,
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return v
}
