// Package history persists task invocations in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Geo-Karpushin/postgresql-vs-neo4j-benchmark/internal/report"
)

// Entry is one stored invocation.
type Entry struct {
	ID string `json:"id"`
	report.Result
}

// Filter narrows List.
type Filter struct {
	Task  string
	Limit int // 0 means no limit
}

// Store is a SQLite-backed run history
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history dir: %w", err)
		}
	}

	// WAL plus a busy timeout lets `serve` read while a task run writes
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		task TEXT NOT NULL,
		params TEXT,
		iteration INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		completed_at INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		exit_code INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		error TEXT,
		log_path TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_task ON runs(task, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save appends r.
func (s *Store) Save(ctx context.Context, r *report.Result) error {
	var params []byte
	if len(r.Params) > 0 {
		var err error
		if params, err = json.Marshal(r.Params); err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, run_id, task, params, iteration, started_at, completed_at, duration_ns,
		 exit_code, outcome, error, log_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), r.RunID, r.Task, string(params), r.Iteration,
		r.StartTime.UnixNano(), r.EndTime.UnixNano(), int64(r.Duration),
		r.ExitCode, r.Outcome, r.Error, r.LogPath)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", r.RunID, err)
	}
	return nil
}

// List returns stored runs, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	query := `
		SELECT id, run_id, task, params, iteration, started_at, completed_at, duration_ns,
		       exit_code, outcome, error, log_path
		FROM runs`
	var args []any
	if f.Task != "" {
		query += " WHERE task = ?"
		args = append(args, f.Task)
	}
	query += " ORDER BY started_at DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                      Entry
			params, errMsg, logPth sql.NullString
			started, completed     int64
			duration               int64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Task, &params, &e.Iteration,
			&started, &completed, &duration, &e.ExitCode, &e.Outcome, &errMsg, &logPth); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		if params.String != "" {
			if err := json.Unmarshal([]byte(params.String), &e.Params); err != nil {
				return nil, fmt.Errorf("failed to decode params of %s: %w", e.ID, err)
			}
		}
		e.StartTime = time.Unix(0, started)
		e.EndTime = time.Unix(0, completed)
		e.Duration = time.Duration(duration)
		e.Error = errMsg.String
		e.LogPath = logPth.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of stored runs.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&n)
	return n, err
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
