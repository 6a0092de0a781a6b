// Package journal keeps one SQLite row per refresh run so an operator can
// see when the session was last refreshed and how each attempt ended.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/jinzenshi/gongkao/internal/logging"
)

// Run is one journal record.
type Run struct {
	ID          string
	Started     time.Time
	Finished    time.Time
	Phase       string
	Outcome     string
	Verdict     string
	TargetURL   string
	SessionFile string
	BackupPath  string
	Error       string
}

// Duration returns how long the run took up to its terminal phase.
func (r Run) Duration() time.Duration {
	if r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// Journal is the run journal backed by SQLite.
type Journal struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
	log  *zap.Logger
}

// Open opens (creating if needed) the journal database at path.
func Open(path string, logger *zap.Logger) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; the journal is touched once per run.
	db.SetMaxOpenConns(1)

	j := &Journal{db: db, path: path, log: logging.For(logger, logging.CategoryJournal)}
	if err := j.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		phase TEXT NOT NULL,
		outcome TEXT,
		verdict TEXT,
		target_url TEXT,
		session_file TEXT,
		backup_path TEXT,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (j *Journal) Path() string { return j.path }

// Record inserts or replaces a run.
func (j *Journal) Record(ctx context.Context, r Run) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(id, started_at, finished_at, phase, outcome, verdict, target_url, session_file, backup_path, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Started.UnixMilli(), r.Finished.UnixMilli(), r.Phase, r.Outcome, r.Verdict,
		r.TargetURL, r.SessionFile, r.BackupPath, r.Error)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	j.log.Debug("Run recorded", zap.String("id", r.ID), zap.String("phase", r.Phase))
	return nil
}

// Recent returns up to limit runs, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, phase, outcome, verdict, target_url, session_file, backup_path, error
		FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished int64
			outcome, verdict  sql.NullString
			target, file, bak sql.NullString
			errText           sql.NullString
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Phase, &outcome, &verdict, &target, &file, &bak, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Started = time.UnixMilli(started)
		r.Finished = time.UnixMilli(finished)
		r.Outcome = outcome.String
		r.Verdict = verdict.String
		r.TargetURL = target.String
		r.SessionFile = file.String
		r.BackupPath = bak.String
		r.Error = errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}
