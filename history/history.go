// Package history persists per-invocation run summaries to SQLite so
// pass/fail trends can be inspected across runs. Recording is best
// effort: a storage failure is a warning and never changes the run
// verdict.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/edx/js-test-tool/report"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	passed      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS run_results (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	browser     TEXT NOT NULL,
	suite       TEXT NOT NULL,
	num_tests   INTEGER NOT NULL,
	num_failed  INTEGER NOT NULL,
	num_error   INTEGER NOT NULL,
	num_skipped INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_results_run ON run_results(run_id);
`

// Store wraps the run-history database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database at path with the
// production pragmas applied. Import a driver registering "sqlite"
// (modernc.org/sqlite) before calling.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Entry is the summary of one (browser, suite) leg of a run.
type Entry struct {
	Browser string
	Suite   string
	Stats   report.Stats
}

// Run is one recorded invocation.
type Run struct {
	ID        string
	StartedAt time.Time
	Passed    bool
	Entries   []Entry
}

// RecordRun writes one invocation and its per-leg stats atomically.
func (s *Store) RecordRun(ctx context.Context, run Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, passed) VALUES (?, ?, ?)`,
		run.ID, run.StartedAt.Unix(), boolInt(run.Passed),
	); err != nil {
		return fmt.Errorf("history: insert run: %w", err)
	}

	for _, e := range run.Entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_results
			 (run_id, browser, suite, num_tests, num_failed, num_error, num_skipped)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, e.Browser, e.Suite,
			e.Stats.NumTests, e.Stats.NumFailed, e.Stats.NumError, e.Stats.NumSkipped,
		); err != nil {
			return fmt.Errorf("history: insert run result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, most recent first, with their
// entries attached.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, passed FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedAt int64
		var passed int
		if err := rows.Scan(&r.ID, &startedAt, &passed); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		r.StartedAt = time.Unix(startedAt, 0)
		r.Passed = passed != 0
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate runs: %w", err)
	}

	for i := range runs {
		entries, err := s.runEntries(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Entries = entries
	}
	return runs, nil
}

func (s *Store) runEntries(ctx context.Context, runID string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT browser, suite, num_tests, num_failed, num_error, num_skipped
		 FROM run_results WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("history: list run results: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Browser, &e.Suite,
			&e.Stats.NumTests, &e.Stats.NumFailed, &e.Stats.NumError, &e.Stats.NumSkipped); err != nil {
			return nil, fmt.Errorf("history: scan run result: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
