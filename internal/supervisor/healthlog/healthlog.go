// Package healthlog is a supplemental boot-history log: a small sqlite
// database recording every state transition of every supervised VM, for
// post-mortem debugging of slow or failed boots. It is additive to the
// canonical /health file (internal/healthfile), never a replacement for
// it. Grounded on the teacher's internal/server/db/sqlite package for
// the connection-pool and pragma setup.
package healthlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps a single-writer sqlite connection recording boot events.
type Store struct {
	db *sql.DB
}

// Open creates (or attaches to) the sqlite database at path and ensures
// its schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("healthlog: ensure directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("healthlog: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS boot_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		vm_name TEXT NOT NULL,
		state TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		occurred_at TIMESTAMP NOT NULL
	);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("healthlog: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Record appends one state-transition event.
func (s *Store) Record(ctx context.Context, vmName, state, detail string, occurredAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO boot_events(vm_name, state, detail, occurred_at) VALUES(?, ?, ?, ?)`,
		vmName, state, detail, occurredAt.UTC())
	if err != nil {
		return fmt.Errorf("healthlog: record event: %w", err)
	}
	return nil
}

// Event is one recorded boot-history row.
type Event struct {
	VMName     string
	State      string
	Detail     string
	OccurredAt time.Time
}

// History returns every recorded event for the named VM, oldest first.
func (s *Store) History(ctx context.Context, vmName string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT vm_name, state, detail, occurred_at FROM boot_events WHERE vm_name = ? ORDER BY id ASC`,
		vmName)
	if err != nil {
		return nil, fmt.Errorf("healthlog: query history: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.VMName, &e.State, &e.Detail, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("healthlog: scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close shuts down the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
