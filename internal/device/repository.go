package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for device persistence.
type Repository interface {
	Create(ctx context.Context, d *Device) error
	GetByID(ctx context.Context, id int64) (*Device, error)
	GetByDeviceID(ctx context.Context, deviceID string) (*Device, error)
	List(ctx context.Context) ([]Device, error)
	Update(ctx context.Context, d *Device) error
	Delete(ctx context.Context, id int64) error
	UpdateLastSeen(ctx context.Context, deviceID string, seenAt time.Time) error
	ActiveDoorIDs(ctx context.Context) ([]string, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite-backed device repository.
func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = "id, device_id, name, type, location, is_active, last_seen, config, created_at, updated_at"

// Create inserts a new device. The generated row ID is written back.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	now := time.Now().UTC().Format(time.RFC3339)
	d.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	d.UpdatedAt = d.CreatedAt
	if d.Config == "" {
		d.Config = "{}"
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (device_id, name, type, location, is_active, config, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DeviceID, d.Name, string(d.Type), nullString(d.Location),
		boolToInt(d.IsActive), d.Config, now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDeviceIDExists
		}
		return fmt.Errorf("creating device: %w", err)
	}

	d.ID, _ = result.LastInsertId() //nolint:errcheck // always succeeds on SQLite

	return nil
}

// GetByID retrieves a device by row ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*Device, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE id = ?", id)
	return scanDeviceFrom(row)
}

// GetByDeviceID retrieves a device by its channel name.
func (r *SQLiteRepository) GetByDeviceID(ctx context.Context, deviceID string) (*Device, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE device_id = ?", deviceID)
	return scanDeviceFrom(row)
}

// List returns all devices ordered by channel name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+deviceColumns+" FROM devices ORDER BY device_id ASC")
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDeviceFrom(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	if devices == nil {
		devices = []Device{}
	}
	return devices, nil
}

// Update modifies a device's mutable fields (name, type, location, is_active, config).
func (r *SQLiteRepository) Update(ctx context.Context, d *Device) error {
	now := time.Now().UTC().Format(time.RFC3339)
	d.UpdatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	result, err := r.db.ExecContext(ctx,
		`UPDATE devices SET name = ?, type = ?, location = ?, is_active = ?, config = ?, updated_at = ? WHERE id = ?`,
		d.Name, string(d.Type), nullString(d.Location), boolToInt(d.IsActive), d.Config, now, d.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a device by row ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateLastSeen stamps the last heartbeat time for a device channel.
func (r *SQLiteRepository) UpdateLastSeen(ctx context.Context, deviceID string, seenAt time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE devices SET last_seen = ? WHERE device_id = ?`,
		seenAt.UTC().Format(time.RFC3339), deviceID,
	)
	if err != nil {
		return fmt.Errorf("updating last_seen: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ActiveDoorIDs returns the channel names of active door devices.
// This feeds the approval side effect in the visit lifecycle.
func (r *SQLiteRepository) ActiveDoorIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT device_id FROM devices WHERE type = ? AND is_active = 1 ORDER BY device_id ASC",
		string(TypeDoor),
	)
	if err != nil {
		return nil, fmt.Errorf("listing active doors: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning door id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating doors: %w", err)
	}
	return ids, nil
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanDeviceFrom scans a device from any scanner (Row or Rows).
func scanDeviceFrom(s scanner) (*Device, error) {
	var d Device
	var location, lastSeen sql.NullString
	var typ string
	var isActive int
	var createdAt, updatedAt string

	err := s.Scan(&d.ID, &d.DeviceID, &d.Name, &typ, &location,
		&isActive, &lastSeen, &d.Config, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning device: %w", err)
	}

	d.Type = Type(typ)
	d.IsActive = isActive != 0
	if location.Valid {
		d.Location = location.String
	}
	if lastSeen.Valid {
		t, _ := time.Parse(time.RFC3339, lastSeen.String) //nolint:errcheck // format is controlled
		d.LastSeen = &t
	}

	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &d, nil
}

// Helper functions.

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
