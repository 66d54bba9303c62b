package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// fixed width so text ordering matches time ordering
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Record is one finished publish attempt.
type Record struct {
	ID             string    `json:"id"`
	AccountKey     string    `json:"accountKey"`
	SourceURL      string    `json:"sourceUrl"`
	Mode           string    `json:"mode"`
	Kind           string    `json:"kind"`
	Stage          string    `json:"stage,omitempty"`
	ErrorKind      string    `json:"errorKind,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	URL            string    `json:"url,omitempty"`
	ScreenshotPath string    `json:"screenshotPath"`
	Title          string    `json:"title"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
}

// Store keeps attempt records in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and migrates the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history dir: %w", err)
	}
	// pragmas in the DSN apply to every pooled connection. WAL plus a busy
	// timeout lets the CLI read while a server process writes.
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	db.SetMaxOpenConns(2)
	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func dsn(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS attempts (
    id TEXT PRIMARY KEY,
    account_key TEXT NOT NULL,
    source_url TEXT NOT NULL,
    mode TEXT NOT NULL,
    kind TEXT NOT NULL,
    stage TEXT NOT NULL DEFAULT '',
    error_kind TEXT NOT NULL DEFAULT '',
    reason TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    screenshot_path TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS attempts_finished_at ON attempts(finished_at);
`)
	if err != nil {
		return fmt.Errorf("failed to create history schema: %w", err)
	}
	return nil
}

// Add stores r.
func (s *Store) Add(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO attempts (id, account_key, source_url, mode, kind, stage, error_kind, reason, url, screenshot_path, title, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AccountKey, r.SourceURL, r.Mode, r.Kind, r.Stage, r.ErrorKind, r.Reason, r.URL,
		r.ScreenshotPath, r.Title, r.StartedAt.UTC().Format(timeLayout), r.FinishedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, account_key, source_url, mode, kind, stage, error_kind, reason, url, screenshot_path, title, started_at, finished_at
FROM attempts ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r                  Record
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.AccountKey, &r.SourceURL, &r.Mode, &r.Kind, &r.Stage, &r.ErrorKind, &r.Reason,
			&r.URL, &r.ScreenshotPath, &r.Title, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		r.StartedAt, _ = time.Parse(timeLayout, started)
		r.FinishedAt, _ = time.Parse(timeLayout, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}
