// Package journal keeps an append-only sqlite record of wall
// mutations. It is operational bookkeeping: failures are logged and
// never fail the upload or delete they describe, and the image state
// itself stays on the filesystem.
package journal

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	OpUpload = "upload"
	OpDelete = "delete"
)

// Entry is one recorded mutation.
type Entry struct {
	ID          int64     `json:"id"`
	Op          string    `json:"op"`
	Image       string    `json:"image"`
	Description string    `json:"description,omitempty"`
	Size        int64     `json:"size,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Journal wraps the database connection.
type Journal struct {
	db  *sql.DB
	log *slog.Logger
}

// Open initializes the journal database with connection pooling.
func Open(path string, log *slog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		op TEXT NOT NULL,
		image TEXT NOT NULL,
		description TEXT,
		size INTEGER NOT NULL DEFAULT 0,
		occurred_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_image ON events(image);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}

	return &Journal{db: db, log: log}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordUpload notes a committed upload.
func (j *Journal) RecordUpload(image, description string, size int64) {
	j.record(Entry{Op: OpUpload, Image: image, Description: description, Size: size})
}

// RecordDelete notes a soft delete.
func (j *Journal) RecordDelete(image string) {
	j.record(Entry{Op: OpDelete, Image: image})
}

func (j *Journal) record(e Entry) {
	query := `INSERT INTO events (op, image, description, size, occurred_at)
	          VALUES (?, ?, ?, ?, ?)`
	if _, err := j.db.Exec(query, e.Op, e.Image, e.Description, e.Size, time.Now().UTC()); err != nil {
		j.log.Warn("could not record journal entry", "op", e.Op, "image", e.Image, "error", err)
	}
}

// Recent returns the newest entries, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	rows, err := j.db.Query(`SELECT id, op, image, description, size, occurred_at
	                         FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var description sql.NullString
		if err := rows.Scan(&e.ID, &e.Op, &e.Image, &description, &e.Size, &e.OccurredAt); err != nil {
			j.log.Warn("could not scan journal entry", "error", err)
			continue
		}
		e.Description = description.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
