// Package history keeps a rolling log of confirmed command detections
// in SQLite. The log is pruned on every append by row count and by age,
// so it stays small enough to query interactively from the CLI.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/koelabs/koe/pkg/detect"
)

const (
	// DefaultMaxEntries is the number of rows kept after a prune.
	DefaultMaxEntries = 50
	// DefaultMaxAge is how long a row survives before a prune drops it.
	DefaultMaxAge = 7 * 24 * time.Hour
)

// Config configures the detection log.
type Config struct {
	// Path is the SQLite database file. Parent directories are created.
	Path string
	// MaxEntries caps the row count, DefaultMaxEntries when zero.
	MaxEntries int
	// MaxAge caps the row age, DefaultMaxAge when zero.
	MaxAge time.Duration
}

// Entry is one confirmed detection as stored in the log.
type Entry struct {
	ID         int64         `json:"id"`
	CommandID  string        `json:"command_id"`
	Trigger    string        `json:"trigger"`
	Action     detect.Action `json:"action"`
	Confidence float64       `json:"confidence"`
	Verified   bool          `json:"verified"`
	Text       string        `json:"text,omitempty"`
	At         time.Time     `json:"at"`
}

// Log is a SQLite-backed detection log. Safe for concurrent use.
type Log struct {
	db    *sql.DB
	max   int
	age   time.Duration
	clock func() time.Time
}

// Open opens or creates the detection log at cfg.Path and prunes any
// rows that outlived the retention policy.
func Open(ctx context.Context, cfg Config) (*Log, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("history: path is required")
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: ping sqlite: %w", err)
	}

	l := &Log{db: db, max: cfg.MaxEntries, age: cfg.MaxAge, clock: time.Now}
	if err := l.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}
	if err := l.Prune(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: prune on open: %w", err)
	}
	return l, nil
}

func (l *Log) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS detections (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    command_id TEXT NOT NULL,
    phrase TEXT NOT NULL,
    action TEXT NOT NULL,
    confidence REAL NOT NULL,
    verified INTEGER NOT NULL,
    text TEXT,
    at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_detections_at ON detections(at);
`
	_, err := l.db.ExecContext(ctx, ddl)
	return err
}

// Append records a detection and prunes the log.
func (l *Log) Append(ctx context.Context, d detect.Detection) error {
	at := d.At
	if at.IsZero() {
		at = l.clock()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO detections(command_id, phrase, action, confidence, verified, text, at)
		 VALUES(?, ?, ?, ?, ?, ?, ?)`,
		d.Command.ID, d.Command.Trigger, string(d.Command.Action),
		d.Confidence, d.IsVoiceVerified, d.Text, at.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	if err := l.Prune(ctx); err != nil {
		return fmt.Errorf("history: prune after append: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first. A non-positive limit
// means DefaultMaxEntries.
func (l *Log) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultMaxEntries
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, command_id, phrase, action, confidence, verified, text, at
		 FROM detections ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			action   string
			verified int
			at       string
		)
		if err := rows.Scan(&e.ID, &e.CommandID, &e.Trigger, &action, &e.Confidence, &verified, &e.Text, &at); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		e.Action = detect.Action(action)
		e.Verified = verified != 0
		if ts, err := time.Parse(time.RFC3339Nano, at); err == nil {
			e.At = ts
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	return entries, nil
}

// Count reports the number of stored entries.
func (l *Log) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM detections`).Scan(&n); err != nil {
		return 0, fmt.Errorf("history: count: %w", err)
	}
	return n, nil
}

// Prune drops entries older than the age cap, then everything beyond
// the newest max entries.
func (l *Log) Prune(ctx context.Context) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	cutoff := l.clock().Add(-l.age).UTC().Format(time.RFC3339Nano)
	if _, err = tx.ExecContext(ctx, `DELETE FROM detections WHERE at < ?`, cutoff); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM detections WHERE id IN (
		SELECT id FROM detections ORDER BY id DESC LIMIT -1 OFFSET ?
	)`, l.max)
	if err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// Clear removes every entry.
func (l *Log) Clear(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM detections`); err != nil {
		return fmt.Errorf("history: clear: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (l *Log) Close() error {
	return l.db.Close()
}
