// Package history keeps a record of every update cycle in a local SQLite
// database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, WAL-friendly

	apperrors "launchpad/internal/errors"
	"launchpad/internal/update"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Entry is one recorded update cycle.
type Entry struct {
	ID              int64     `json:"id" yaml:"id" toml:"id"`
	StartedAt       time.Time `json:"started_at" yaml:"started_at" toml:"started_at"`
	FinishedAt      time.Time `json:"finished_at" yaml:"finished_at" toml:"finished_at"`
	Installed       string    `json:"installed" yaml:"installed" toml:"installed"`
	Latest          string    `json:"latest" yaml:"latest" toml:"latest"`
	Outcome         string    `json:"outcome" yaml:"outcome" toml:"outcome"`
	Updated         bool      `json:"updated" yaml:"updated" toml:"updated"`
	Code            string    `json:"code,omitempty" yaml:"code,omitempty" toml:"code,omitempty"`
	Reason          string    `json:"reason,omitempty" yaml:"reason,omitempty" toml:"reason,omitempty"`
	BytesDownloaded int64     `json:"bytes_downloaded" yaml:"bytes_downloaded" toml:"bytes_downloaded"`
}

// Duration returns how long the cycle took.
func (e Entry) Duration() time.Duration {
	return e.FinishedAt.Sub(e.StartedAt)
}

// EntryFromResult converts a finished cycle into a history row.
func EntryFromResult(res update.Result) Entry {
	entry := Entry{
		StartedAt:       res.StartedAt,
		FinishedAt:      res.FinishedAt,
		Installed:       res.Installed.String(),
		Latest:          res.Latest.String(),
		Outcome:         res.State.String(),
		Updated:         res.Updated,
		Reason:          res.Reason,
		BytesDownloaded: res.BytesDownloaded,
	}
	if res.Err != nil {
		entry.Code = string(apperrors.CodeOf(res.Err))
	}
	return entry
}

// Store reads and writes the history database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. Use MemoryPath in tests.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != MemoryPath {
		//nolint:gosec // G301: User state directory needs standard permissions
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, failed("create history directory", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, failed("open history db", err)
	}
	// SQLite only allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 3000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, failed("configure history db", err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, failed("create history schema", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record stores a finished cycle. It satisfies update.Recorder.
func (s *Store) Record(ctx context.Context, res update.Result) error {
	_, err := s.Add(ctx, EntryFromResult(res))
	return err
}

// Add inserts an entry and returns its ID.
func (s *Store) Add(ctx context.Context, e Entry) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO update_cycles
			(started_at, finished_at, installed_version, latest_version, outcome,
			 updated, error_code, reason, bytes_downloaded)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.StartedAt.UnixNano(), e.FinishedAt.UnixNano(), e.Installed, e.Latest, e.Outcome,
		e.Updated, e.Code, e.Reason, e.BytesDownloaded,
	)
	if err != nil {
		return 0, failed("insert history entry", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, failed("read history entry id", err)
	}
	return id, nil
}

// Recent returns up to limit entries, newest first. A non-positive limit
// returns everything.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, installed_version, latest_version, outcome,
		       updated, error_code, reason, bytes_downloaded
		FROM update_cycles
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, failed("query history", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []Entry
	for rows.Next() {
		var (
			e                 Entry
			started, finished int64
		)
		if err := rows.Scan(&e.ID, &started, &finished, &e.Installed, &e.Latest, &e.Outcome,
			&e.Updated, &e.Code, &e.Reason, &e.BytesDownloaded); err != nil {
			return nil, failed("scan history entry", err)
		}
		e.StartedAt = time.Unix(0, started).UTC()
		e.FinishedAt = time.Unix(0, finished).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, failed("iterate history", err)
	}
	return entries, nil
}

func failed(msg string, err error) error {
	return apperrors.New(apperrors.CodeHistoryFailed, fmt.Sprintf("history: %s", msg), err)
}
