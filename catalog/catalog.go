// Package catalog keeps durable bookkeeping next to the vector store:
// which scope owns each collection, and the history of ingestion jobs.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/becomeliminal/cortex/core"
	"github.com/becomeliminal/cortex/memory"
)

// SQLiteCatalog implements memory.Catalog and memory.JobStore using SQLite.
type SQLiteCatalog struct {
	db *sql.DB
}

var (
	_ memory.Catalog  = (*SQLiteCatalog)(nil)
	_ memory.JobStore = (*SQLiteCatalog)(nil)
)

// Open opens or creates a SQLite catalog at the given path.
func Open(dbPath string) (*SQLiteCatalog, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create catalog dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	// Job updates arrive from many goroutines; one writer avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	c := &SQLiteCatalog{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return c, nil
}

func (c *SQLiteCatalog) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scopes (
		collection  TEXT PRIMARY KEY,
		owner       TEXT NOT NULL,
		topic       TEXT NOT NULL,
		scope_key   TEXT NOT NULL,
		created_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_scopes_topic ON scopes(topic);

	CREATE TABLE IF NOT EXISTS jobs (
		id          TEXT PRIMARY KEY,
		owner       TEXT NOT NULL,
		topic       TEXT NOT NULL,
		kind        TEXT NOT NULL,
		target      TEXT NOT NULL,
		state       TEXT NOT NULL,
		error       TEXT,
		files       INTEGER NOT NULL DEFAULT 0,
		chunks      INTEGER NOT NULL DEFAULT 0,
		skipped     INTEGER NOT NULL DEFAULT 0,
		batches     INTEGER NOT NULL DEFAULT 0,
		created_at  TEXT NOT NULL,
		started_at  TEXT,
		finished_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state, finished_at);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Close closes the database.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}

// RegisterScope records which scope a collection name was derived from.
func (c *SQLiteCatalog) RegisterScope(ctx context.Context, rec memory.ScopeRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	key := rec.Scope.Key()

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO scopes (collection, owner, topic, scope_key, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(collection) DO NOTHING`,
		rec.Collection, rec.Scope.Owner, rec.Scope.Topic, key, formatTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("register scope: %w", err)
	}

	var existing string
	err = c.db.QueryRowContext(ctx, `SELECT scope_key FROM scopes WHERE collection = ?`, rec.Collection).Scan(&existing)
	if err != nil {
		return fmt.Errorf("read scope: %w", err)
	}
	if existing != key {
		return fmt.Errorf("%w: %s holds %q, requested by %q", core.ErrScopeCollision, rec.Collection, existing, key)
	}
	return nil
}

// Scopes lists every registered scope, ordered by topic then owner.
func (c *SQLiteCatalog) Scopes(ctx context.Context) ([]memory.ScopeRecord, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT collection, owner, topic, created_at FROM scopes ORDER BY topic, owner`)
	if err != nil {
		return nil, fmt.Errorf("list scopes: %w", err)
	}
	defer rows.Close()

	var out []memory.ScopeRecord
	for rows.Next() {
		var rec memory.ScopeRecord
		var created string
		if err := rows.Scan(&rec.Collection, &rec.Scope.Owner, &rec.Scope.Topic, &created); err != nil {
			return nil, err
		}
		rec.CreatedAt = parseTime(created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CreateJob inserts a new job record.
func (c *SQLiteCatalog) CreateJob(ctx context.Context, job *memory.Job) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO jobs (id, owner, topic, kind, target, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Scope.Owner, job.Scope.Topic, job.Kind, job.Target, string(job.State), formatTime(job.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJob writes the job's current state, error, report and timestamps.
func (c *SQLiteCatalog) UpdateJob(ctx context.Context, job *memory.Job) error {
	var report memory.IngestReport
	if job.Report != nil {
		report = *job.Report
	}
	res, err := c.db.ExecContext(ctx,
		`UPDATE jobs SET state = ?, error = ?, files = ?, chunks = ?, skipped = ?, batches = ?,
		 started_at = ?, finished_at = ? WHERE id = ?`,
		string(job.State), nullString(job.Error), report.Files, report.Entries, report.Skipped, report.Batches,
		nullTime(job.StartedAt), nullTime(job.FinishedAt), job.ID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", core.ErrJobNotFound, job.ID)
	}
	return nil
}

const jobColumns = `id, owner, topic, kind, target, state, error, files, chunks, skipped, batches,
	created_at, started_at, finished_at`

// GetJob returns a job by id.
func (c *SQLiteCatalog) GetJob(ctx context.Context, id string) (*memory.Job, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs returns the most recent jobs first.
func (c *SQLiteCatalog) ListJobs(ctx context.Context, limit int) ([]memory.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := c.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []memory.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

// PruneJobs deletes finished jobs that completed before cutoff.
func (c *SQLiteCatalog) PruneJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE state IN (?, ?) AND finished_at IS NOT NULL AND finished_at < ?`,
		string(memory.JobSucceeded), string(memory.JobFailed), formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Printf("[CATALOG] Pruned %d finished jobs", n)
	}
	return n, nil
}

// RecoverJobs marks jobs left pending or running by a previous process as failed.
func (c *SQLiteCatalog) RecoverJobs(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`UPDATE jobs SET state = ?, error = ?, finished_at = ? WHERE state IN (?, ?)`,
		string(memory.JobFailed), "interrupted by restart", formatTime(time.Now().UTC()),
		string(memory.JobPending), string(memory.JobRunning))
	if err != nil {
		return 0, fmt.Errorf("recover jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Printf("[CATALOG] Marked %d interrupted jobs as failed", n)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*memory.Job, error) {
	var job memory.Job
	var state, created string
	var errMsg, started, finished sql.NullString
	var report memory.IngestReport
	err := s.Scan(&job.ID, &job.Scope.Owner, &job.Scope.Topic, &job.Kind, &job.Target, &state, &errMsg,
		&report.Files, &report.Entries, &report.Skipped, &report.Batches,
		&created, &started, &finished)
	if err != nil {
		return nil, err
	}
	job.State = memory.JobState(state)
	job.Error = errMsg.String
	job.CreatedAt = parseTime(created)
	job.StartedAt = parseNullTime(started)
	job.FinishedAt = parseNullTime(finished)
	if job.Done() {
		job.Report = &report
	}
	return &job, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
