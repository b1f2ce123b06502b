package ingest

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// EventLog is a durable, append-only record of applied change events,
// backed by a SQLite sidecar database. Crash recovery reads it back with
// ReplaySince(change_cursor) when the platform source cannot replay
// itself.
type EventLog struct {
	db *sql.DB
}

// OpenEventLog opens (creating if needed) the event log at path.
func OpenEventLog(path string) (*EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: mkdir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventlog: enable WAL: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS events (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id   INTEGER NOT NULL,
		path       TEXT NOT NULL,
		flags      INTEGER NOT NULL,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventlog: create table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS events_event_id ON events(event_id)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventlog: create index: %w", err)
	}
	return &EventLog{db: db}, nil
}

// Append records a batch of applied events in one transaction.
func (l *EventLog) Append(events []ChangeEvent) error {
	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("eventlog: begin: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO events (event_id, path, flags, applied_at)
		VALUES (?, ?, ?, strftime('%s','now'))`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("eventlog: prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for _, ev := range events {
		if _, err := stmt.Exec(int64(ev.ID), ev.Path, int64(ev.Flags)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("eventlog: insert: %w", err)
		}
	}
	return tx.Commit()
}

// ReplaySince returns every logged event with an ID strictly greater than
// since, in append order.
func (l *EventLog) ReplaySince(since uint64) ([]ChangeEvent, error) {
	rows, err := l.db.Query(
		`SELECT event_id, path, flags FROM events WHERE event_id > ? ORDER BY seq`,
		int64(since))
	if err != nil {
		return nil, fmt.Errorf("eventlog: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ChangeEvent
	for rows.Next() {
		var id, flags int64
		var path string
		if err := rows.Scan(&id, &path, &flags); err != nil {
			return nil, fmt.Errorf("eventlog: scan: %w", err)
		}
		out = append(out, ChangeEvent{Path: path, ID: uint64(id), Flags: ChangeFlagSet(flags)})
	}
	return out, rows.Err()
}

// LastID returns the largest event ID ever logged, or 0 for an empty log.
func (l *EventLog) LastID() (uint64, error) {
	var id sql.NullInt64
	err := l.db.QueryRow(`SELECT MAX(event_id) FROM events`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("eventlog: max id: %w", err)
	}
	if !id.Valid {
		return 0, nil
	}
	return uint64(id.Int64), nil
}

// Close closes the backing database.
func (l *EventLog) Close() error {
	return l.db.Close()
}
