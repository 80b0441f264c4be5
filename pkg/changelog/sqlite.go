package changelog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver.
)

// DefaultLimit is the number of entries returned when no limit is given.
const DefaultLimit = 50

// ErrClosed is returned when the sink is used after Close.
var ErrClosed = errors.New("changelog closed")

const schema = `
CREATE TABLE IF NOT EXISTS history (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	ts         TEXT    NOT NULL,
	op         TEXT    NOT NULL,
	checkpoint TEXT    NOT NULL,
	kind       TEXT    NOT NULL DEFAULT '',
	files      INTEGER NOT NULL DEFAULT 0,
	bytes      INTEGER NOT NULL DEFAULT 0,
	detail     TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_history_checkpoint ON history(checkpoint);
`

// SQLiteSink stores history in a SQLite database.
type SQLiteSink struct {
	db     *sql.DB
	logger *slog.Logger
	mu     sync.RWMutex
	closed bool
}

// OpenSQLite opens (creating if needed) the history database at path.
// Use ":memory:" for an ephemeral database.
func OpenSQLite(path string, logger *slog.Logger) (*SQLiteSink, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), 0o750)
		if err != nil {
			return nil, fmt.Errorf("create changelog dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	_, err = db.Exec(schema)
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteSink{db: db, logger: logger}, nil
}

// Record implements Sink.
func (s *SQLiteSink) Record(ctx context.Context, entry Entry) {
	err := s.Append(ctx, entry)
	if err != nil {
		s.logger.WarnContext(ctx, "changelog: dropping entry",
			slog.String("op", string(entry.Op)),
			slog.String("checkpoint", entry.Checkpoint),
			slog.String("error", err.Error()))
	}
}

// Append inserts entry and reports failures to the caller.
func (s *SQLiteSink) Append(ctx context.Context, entry Entry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}

	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (ts, op, checkpoint, kind, files, bytes, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.Time.UTC().Format(time.RFC3339Nano), string(entry.Op), entry.Checkpoint,
		entry.Kind, entry.Files, entry.Bytes, entry.Detail)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}

	return nil
}

// Entries returns up to limit entries, newest first. A non-positive limit
// means DefaultLimit.
func (s *SQLiteSink) Entries(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, op, checkpoint, kind, files, bytes, detail
		FROM history
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var (
			entry Entry
			ts    string
			op    string
		)

		err = rows.Scan(&entry.ID, &ts, &op, &entry.Checkpoint, &entry.Kind, &entry.Files, &entry.Bytes, &entry.Detail)
		if err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}

		entry.Op = Op(op)

		entry.Time, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}

		entries = append(entries, entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}

	return entries, nil
}

// Close closes the database. Further calls return ErrClosed.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	return s.db.Close()
}
