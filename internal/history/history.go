// Package history keeps an optional SQLite ledger of runs and the like
// counts observed in each, so trends can be inspected after the fact.
//
// The ledger is advisory. The state file stays the source of truth for the
// merge.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store is the run ledger.
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Run summarizes one pipeline run.
type Run struct {
	ID        string
	StartedAt time.Time
	Fetched   int
	Dropped   int
	Stored    int
	Rendered  int
}

// Observation is one item's like count as seen by a run.
type Observation struct {
	RunID      string
	ItemID     string
	ObservedAt time.Time
	LikesCount int
}

// Open opens or creates the ledger at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection: an in-memory database lives only as long as its
	// connection, and a single writer is all a run needs.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		fetched INTEGER NOT NULL,
		dropped INTEGER NOT NULL,
		stored INTEGER NOT NULL,
		rendered INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

	CREATE TABLE IF NOT EXISTS likes (
		run_id TEXT NOT NULL REFERENCES runs(id),
		item_id TEXT NOT NULL,
		observed_at TEXT NOT NULL,
		likes_count INTEGER NOT NULL,
		PRIMARY KEY (run_id, item_id)
	);

	CREATE INDEX IF NOT EXISTS idx_likes_item ON likes(item_id, observed_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// RecordRun stores run and its observations in one transaction and returns
// the run id. A run without an ID gets one.
func (s *Store) RecordRun(ctx context.Context, run Run, obs []Observation) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == "" {
		run.ID = NewRunID()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, fetched, dropped, stored, rendered)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, formatTime(run.StartedAt), run.Fetched, run.Dropped, run.Stored, run.Rendered,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO likes (run_id, item_id, observed_at, likes_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, item_id) DO UPDATE SET
			observed_at = excluded.observed_at,
			likes_count = excluded.likes_count`)
	if err != nil {
		return "", fmt.Errorf("prepare likes insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range obs {
		observed := o.ObservedAt
		if observed.IsZero() {
			observed = run.StartedAt
		}
		if _, err := stmt.ExecContext(ctx, run.ID, o.ItemID, formatTime(observed), o.LikesCount); err != nil {
			return "", fmt.Errorf("insert likes for %s: %w", o.ItemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return run.ID, nil
}

// LikesHistory returns every observation of itemID, oldest first.
func (s *Store) LikesHistory(ctx context.Context, itemID string) ([]Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, item_id, observed_at, likes_count
		FROM likes
		WHERE item_id = ?
		ORDER BY observed_at ASC, run_id ASC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("query likes: %w", err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var o Observation
		var observed string
		if err := rows.Scan(&o.RunID, &o.ItemID, &observed, &o.LikesCount); err != nil {
			return nil, fmt.Errorf("scan likes: %w", err)
		}
		if o.ObservedAt, err = parseTime(observed); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, fetched, dropped, stored, rendered
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started string
		if err := rows.Scan(&r.ID, &started, &r.Fetched, &r.Dropped, &r.Stored, &r.Rendered); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}
