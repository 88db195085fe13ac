package visitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Filter narrows List results. Zero-value fields are ignored.
type Filter struct {
	HostID int64
	Status Status
}

// Repository defines the interface for visitor persistence.
//
// UpdateStatus is the only mutation of a stored visitor's lifecycle
// fields; the engine serialises calls per visitor id on top of it.
type Repository interface {
	Create(ctx context.Context, v *Visitor) error
	GetByID(ctx context.Context, id int64) (*Visitor, error)
	List(ctx context.Context, f Filter) ([]Visitor, error)
	UpdateStatus(ctx context.Context, v *Visitor) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite-backed visitor repository.
func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const visitorColumns = "id, name, national_id, phone, email, company, purpose, photo_ref, host_id, registered_by_id, status, checkin_time, checkout_time, expected_duration_min, notes, created_at"

// Create inserts a new visitor. The generated row ID is written back.
func (r *SQLiteRepository) Create(ctx context.Context, v *Visitor) error {
	now := time.Now().UTC()
	v.CreatedAt = now.Truncate(time.Second)

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO visitors (name, national_id, phone, email, company, purpose, photo_ref, host_id, registered_by_id, status, expected_duration_min, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.Name, v.NationalID, v.Phone, nullString(v.Email), nullString(v.Company),
		v.Purpose, nullString(v.PhotoRef), v.HostID, nullInt64(v.RegisteredByID),
		string(v.Status), nullInt(v.ExpectedDurationMin), nullString(v.Notes),
		v.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating visitor: %w", err)
	}

	v.ID, _ = result.LastInsertId() //nolint:errcheck // always succeeds on SQLite

	return nil
}

// GetByID retrieves a visitor by row ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*Visitor, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+visitorColumns+" FROM visitors WHERE id = ?", id)
	return scanVisitorFrom(row)
}

// List returns visitors matching the filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, f Filter) ([]Visitor, error) {
	query := "SELECT " + visitorColumns + " FROM visitors WHERE 1=1"
	var args []any
	if f.HostID != 0 {
		query += " AND host_id = ?"
		args = append(args, f.HostID)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, string(f.Status))
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing visitors: %w", err)
	}
	defer rows.Close()

	var visitors []Visitor
	for rows.Next() {
		v, err := scanVisitorFrom(rows)
		if err != nil {
			return nil, err
		}
		visitors = append(visitors, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating visitors: %w", err)
	}

	if visitors == nil {
		visitors = []Visitor{}
	}
	return visitors, nil
}

// UpdateStatus persists the lifecycle fields of a visitor: status, notes,
// and the check-in/check-out timestamps.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, v *Visitor) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE visitors SET status = ?, notes = ?, checkin_time = ?, checkout_time = ? WHERE id = ?`,
		string(v.Status), nullString(v.Notes),
		nullTime(v.CheckinTime), nullTime(v.CheckoutTime), v.ID,
	)
	if err != nil {
		return fmt.Errorf("updating visitor status: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanVisitorFrom scans a visitor from any scanner (Row or Rows).
func scanVisitorFrom(s scanner) (*Visitor, error) {
	var v Visitor
	var email, company, photoRef, notes sql.NullString
	var registeredBy sql.NullInt64
	var expectedDuration sql.NullInt64
	var status, createdAt string
	var checkin, checkout sql.NullString

	err := s.Scan(&v.ID, &v.Name, &v.NationalID, &v.Phone, &email, &company,
		&v.Purpose, &photoRef, &v.HostID, &registeredBy, &status,
		&checkin, &checkout, &expectedDuration, &notes, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning visitor: %w", err)
	}

	v.Status = Status(status)
	if email.Valid {
		v.Email = email.String
	}
	if company.Valid {
		v.Company = company.String
	}
	if photoRef.Valid {
		v.PhotoRef = photoRef.String
	}
	if notes.Valid {
		v.Notes = notes.String
	}
	if registeredBy.Valid {
		v.RegisteredByID = registeredBy.Int64
	}
	if expectedDuration.Valid {
		v.ExpectedDurationMin = int(expectedDuration.Int64)
	}
	if checkin.Valid {
		t, _ := time.Parse(time.RFC3339, checkin.String) //nolint:errcheck // format is controlled
		v.CheckinTime = &t
	}
	if checkout.Valid {
		t, _ := time.Parse(time.RFC3339, checkout.String) //nolint:errcheck // format is controlled
		v.CheckoutTime = &t
	}

	v.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &v, nil
}

// Helper functions.

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(n int64) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: n, Valid: true}
}

func nullInt(n int) sql.NullInt64 {
	return nullInt64(int64(n))
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}
