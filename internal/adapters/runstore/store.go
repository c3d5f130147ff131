package runstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"calpadsrunner/internal/core/domain"
	"calpadsrunner/internal/core/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	run_date TEXT NOT NULL,
	started_at TIMESTAMP NOT NULL,
	completed_at TIMESTAMP NOT NULL,
	succeeded INTEGER NOT NULL,
	failed INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS results (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	task TEXT NOT NULL,
	unit TEXT NOT NULL,
	artifact TEXT NOT NULL DEFAULT '',
	outcome TEXT NOT NULL,
	error_kind TEXT NOT NULL DEFAULT '',
	stage TEXT NOT NULL DEFAULT '',
	error TEXT NOT NULL DEFAULT '',
	attempts INTEGER NOT NULL,
	started_at TIMESTAMP,
	finished_at TIMESTAMP,
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_results_unit ON results(unit);
`

// Store provides SQLite-backed run history.
type Store struct {
	db *sql.DB
}

var _ ports.RunStore = (*Store)(nil)

// New opens (or creates) the database at dbPath.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveReport writes the run and all of its results in one transaction.
func (s *Store) SaveReport(ctx context.Context, report *domain.BatchReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ok, failed := report.Counts()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, run_date, started_at, completed_at, succeeded, failed)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			completed_at = excluded.completed_at,
			succeeded = excluded.succeeded,
			failed = excluded.failed
	`,
		report.RunID,
		report.RunDate.Format("2006-01-02"),
		report.StartedAt.UTC(),
		report.CompletedAt.UTC(),
		ok,
		failed,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	// Rows are keyed by position in the report; Job.Seq is caller-supplied.
	for i, r := range report.Results {
		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO results
				(run_id, seq, task, unit, artifact, outcome, error_kind, stage, error, attempts, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			report.RunID,
			i,
			string(r.Job.Task),
			r.Job.Unit.Short,
			r.Job.ArtifactName,
			string(r.Outcome),
			string(r.Kind),
			string(r.Stage),
			r.ErrorMessage(),
			r.Attempts,
			r.StartedAt.UTC(),
			r.FinishedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert result %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// RecentRuns returns the newest runs first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]ports.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, completed_at, succeeded, failed
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ports.RunSummary
	for rows.Next() {
		var r ports.RunSummary
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.CompletedAt, &r.Succeeded, &r.Failed); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ResultRow is one persisted job outcome.
type ResultRow struct {
	Seq       int
	Task      string
	Unit      string
	Artifact  string
	Outcome   string
	ErrorKind string
	Attempts  int
}

// Results returns the stored results of a run in job order.
func (s *Store) Results(ctx context.Context, runID string) ([]ResultRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, task, unit, artifact, outcome, error_kind, attempts
		FROM results WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ResultRow
	for rows.Next() {
		var r ResultRow
		if err := rows.Scan(&r.Seq, &r.Task, &r.Unit, &r.Artifact, &r.Outcome, &r.ErrorKind, &r.Attempts); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
