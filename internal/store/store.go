// Package store persists paid registrations and hands out ticket numbers.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver
)

// ErrNotFound is returned for unknown registration ids
var ErrNotFound = errors.New("registration not found")

// Config defines SQLite operational parameters
type Config struct {
	BusyTimeout time.Duration
}

// DefaultConfig returns the recommended configuration
func DefaultConfig() Config {
	return Config{BusyTimeout: 5 * time.Second}
}

// Store provides SQLite persistence for registrations
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open initializes the database at path and runs migrations.
func Open(path string, cfg Config) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
		path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}
	// Ticket numbers are max+1; one writer keeps that race-free.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS registrations (
		id TEXT PRIMARY KEY,
		ticket_number INTEGER NOT NULL UNIQUE,
		registered_at TEXT NOT NULL,
		checkout_at TEXT,
		child_count INTEGER NOT NULL DEFAULT 0,
		adult_count INTEGER NOT NULL DEFAULT 0,
		children TEXT NOT NULL DEFAULT '[]',
		guardians TEXT NOT NULL DEFAULT '[]',
		playtime_rate INTEGER NOT NULL DEFAULT 0,
		kids_socks INTEGER NOT NULL DEFAULT 0,
		adult_socks INTEGER NOT NULL DEFAULT 0,
		socks_total INTEGER NOT NULL DEFAULT 0,
		grand_total INTEGER NOT NULL DEFAULT 0,
		amount_paid INTEGER NOT NULL DEFAULT 0,
		payment_session TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active' CHECK(status IN ('active', 'completed'))
	);

	CREATE INDEX IF NOT EXISTS idx_registrations_registered_at ON registrations(registered_at);
	`
	_, err := s.db.Exec(schema)
	return err
}
