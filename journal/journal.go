// Package journal keeps a local SQLite history of query runs and their steps.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/htol/bookstore/config"
	"github.com/htol/bookstore/logger"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a run ID is unknown
var ErrNotFound = errors.New("run not found")

// Run statuses
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

type Journal struct {
	db   *sql.DB
	path string
}

// Run is one recorded execution of the query runner
type Run struct {
	ID         string     `json:"run_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	Steps      int        `json:"steps"`
}

// Step is the outcome of a single operation within a run
type Step struct {
	Section  string        `json:"section"`
	Name     string        `json:"name"`
	Count    int64         `json:"result_count"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// dsn builds a SQLite URI for path. The path is escaped so that '?' or '#'
// in a file name stay part of the name.
func dsn(path string) string {
	u := url.URL{
		Scheme:   "file",
		OmitHost: true,
		Path:     path,
		RawQuery: "mode=rwc&_journal_mode=WAL&_busy_timeout=5000",
	}
	return u.String()
}

func Open(path string, cfg config.JournalConfig) (*Journal, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	j := &Journal{db: db, path: path}
	if err := j.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return j, nil
}

func (j *Journal) createSchema() error {
	sqlStmt := `
           CREATE TABLE IF NOT EXISTS "runs" (
               run_id TEXT PRIMARY KEY NOT NULL,
               started_at INTEGER NOT NULL,
               finished_at INTEGER,
               status TEXT NOT NULL,
               error TEXT
           );
           CREATE INDEX IF NOT EXISTS [I_runs_started_at] ON "runs" ([started_at]);

           CREATE TABLE IF NOT EXISTS "steps" (
               step_id INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL,
               run_id TEXT NOT NULL,
               section TEXT NOT NULL,
               name TEXT NOT NULL,
               result_count INTEGER NOT NULL DEFAULT 0,
               duration_us INTEGER NOT NULL DEFAULT 0,
               error TEXT,
               FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
           );
           CREATE INDEX IF NOT EXISTS [I_steps_run_id] ON "steps" ([run_id]);
	`
	_, err := j.db.Exec(sqlStmt)
	return err
}

func (j *Journal) Close() error {
	if j.db != nil {
		logger.Debug("Closing journal", "path", j.path)
		return j.db.Close()
	}
	return nil
}

// Begin records a new running run and returns its ID.
func (j *Journal) Begin(ctx context.Context) (string, error) {
	id := uuid.New().String()
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, status) VALUES (?, ?, ?)`,
		id, time.Now().UnixMicro(), StatusRunning)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

func (j *Journal) Record(ctx context.Context, runID string, s Step) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO steps (run_id, section, name, result_count, duration_us, error) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, s.Section, s.Name, s.Count, s.Duration.Microseconds(), nullString(s.Error))
	if err != nil {
		return fmt.Errorf("insert step %s/%s: %w", s.Section, s.Name, err)
	}
	return nil
}

// Finish marks a run as ok, or failed with runErr.
func (j *Journal) Finish(ctx context.Context, runID string, runErr error) error {
	status, msg := StatusOK, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	res, err := j.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE run_id = ?`,
		time.Now().UnixMicro(), status, nullString(msg), runID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Run, error) {
	QUERY := `
		SELECT r.run_id, r.started_at, r.finished_at, r.status, COALESCE(r.error, ''),
		       (SELECT COUNT(*) FROM steps s WHERE s.run_id = r.run_id)
		FROM runs r
		ORDER BY r.started_at DESC, r.rowid DESC
		LIMIT ?
	`
	rows, err := j.db.QueryContext(ctx, QUERY, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		var (
			r        Run
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Status, &r.Error, &r.Steps); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.UnixMicro(started)
		if finished.Valid {
			t := time.UnixMicro(finished.Int64)
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Steps returns the steps of one run in execution order.
func (j *Journal) Steps(ctx context.Context, runID string) ([]Step, error) {
	var exists int
	err := j.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE run_id = ?`, runID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", runID, err)
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT section, name, result_count, duration_us, COALESCE(error, '')
		FROM steps WHERE run_id = ? ORDER BY step_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	steps := make([]Step, 0)
	for rows.Next() {
		var (
			s  Step
			us int64
		)
		if err := rows.Scan(&s.Section, &s.Name, &s.Count, &us, &s.Error); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		s.Duration = time.Duration(us) * time.Microsecond
		steps = append(steps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
