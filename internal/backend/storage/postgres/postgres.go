// Package postgres is the durable event store backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/sweeney/caresync/internal/backend/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id        UUID PRIMARY KEY,
	device_id TEXT NOT NULL,
	label     TEXT NOT NULL,
	ts        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS events_ts_idx ON events (ts DESC);
CREATE TABLE IF NOT EXISTS devices (
	id        TEXT PRIMARY KEY,
	last_seen TIMESTAMPTZ NOT NULL
);`

// Store persists events and devices in PostgreSQL.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// NewStore wraps an open database.
func NewStore(db *sql.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger.With(zap.String("component", "postgres"))}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// CreateEvent stores the event under a new id.
func (s *Store) CreateEvent(ctx context.Context, in domain.CreateEventInput) (domain.Event, error) {
	evt := domain.Event{
		ID:        uuid.NewString(),
		DeviceID:  in.DeviceID,
		Label:     in.Label,
		Timestamp: in.Timestamp.UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, device_id, label, ts) VALUES ($1, $2, $3, $4)`,
		evt.ID, evt.DeviceID, evt.Label, evt.Timestamp)
	if err != nil {
		s.logger.Error("failed to insert event",
			zap.String("device_id", evt.DeviceID), zap.String("label", evt.Label), zap.Error(err))
		return domain.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return evt, nil
}

// ListEvents returns every event, newest first.
func (s *Store) ListEvents(ctx context.Context) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device_id, label, ts FROM events ORDER BY ts DESC`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.Label, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// TouchDevice upserts a device's last_seen.
func (s *Store) TouchDevice(ctx context.Context, id string, at time.Time) (domain.Device, error) {
	at = at.UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO devices (id, last_seen) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET last_seen = EXCLUDED.last_seen`,
		id, at)
	if err != nil {
		s.logger.Error("failed to upsert device", zap.String("device_id", id), zap.Error(err))
		return domain.Device{}, fmt.Errorf("touch device %q: %w", id, err)
	}
	return domain.Device{ID: id, LastSeen: at}, nil
}

// ListDevices returns every known device ordered by id.
func (s *Store) ListDevices(ctx context.Context) ([]domain.Device, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, last_seen FROM devices ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query devices: %w", err)
	}
	defer rows.Close()

	devices := []domain.Device{}
	for rows.Next() {
		var d domain.Device
		if err := rows.Scan(&d.ID, &d.LastSeen); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		d.LastSeen = d.LastSeen.UTC()
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return devices, nil
}
