package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"storyloom/internal/config"
	"storyloom/internal/services"
	"storyloom/internal/storyboard"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const runColumns = "id, topic, aspect_ratio, target_length, style, status, final_path, error_message, error_kind, workspace, created_at, updated_at, finished_at"

// Store manages run history backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open initializes or connects to the run database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create run store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// OpenFromConfig opens the run database under the configured log directory.
func OpenFromConfig(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return Open(cfg.RunStorePath())
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

// Create records a new running run and returns it.
func (s *Store) Create(ctx context.Context, topic string, params storyboard.Params) (*Run, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, services.Wrap(services.ErrValidation, "runstore", "create", "topic is required", nil)
	}
	id := uuid.NewString()
	ts := s.timestamp()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (
            id, topic, aspect_ratio, target_length, style, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, topic,
		nullableString(params.AspectRatio),
		nullableString(params.TargetLength),
		nullableString(params.Style),
		StatusRunning, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return s.Get(ctx, id)
}

// AttachWorkspace records the run's asset directory.
func (s *Store) AttachWorkspace(ctx context.Context, id, dir string) error {
	return s.update(ctx, id, "UPDATE runs SET workspace = ?, updated_at = ? WHERE id = ?", nullableString(dir), s.timestamp(), id)
}

// Complete marks a run finished and stores its event log. An empty finalPath
// records StatusNoOutput.
func (s *Store) Complete(ctx context.Context, id, finalPath string, events []string) error {
	status := StatusCompleted
	if strings.TrimSpace(finalPath) == "" {
		status = StatusNoOutput
	}
	return s.finish(ctx, id, status, finalPath, nil, events)
}

// Fail marks a run failed with err and stores its event log.
func (s *Store) Fail(ctx context.Context, id string, runErr error, events []string) error {
	if runErr == nil {
		runErr = errors.New("run failed")
	}
	return s.finish(ctx, id, StatusFailed, "", runErr, events)
}

func (s *Store) finish(ctx context.Context, id string, status Status, finalPath string, runErr error, events []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finish tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ts := s.timestamp()
	var message, kind any
	if runErr != nil {
		message = strings.TrimSpace(runErr.Error())
		kind = services.Classify(runErr)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, final_path = ?, error_message = ?, error_kind = ?,
            updated_at = ?, finished_at = ? WHERE id = ?`,
		status, nullableString(finalPath), message, kind, ts, ts, id,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if err := requireRow(res, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM run_events WHERE run_id = ?", id); err != nil {
		return fmt.Errorf("clear run events: %w", err)
	}
	for seq, line := range events {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO run_events (run_id, seq, message) VALUES (?, ?, ?)", id, seq, line,
		); err != nil {
			return fmt.Errorf("insert run event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// Get fetches a run by id. A unique id prefix is accepted.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, services.Wrap(services.ErrValidation, "runstore", "get", "run id is required", nil)
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM runs WHERE id = ? OR id LIKE ? ESCAPE '\\' ORDER BY created_at DESC LIMIT 2",
		id, escapeLike(id)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	defer rows.Close()

	var found []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.ID == id {
			return run, nil
		}
		found = append(found, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	switch len(found) {
	case 0:
		return nil, services.Wrap(services.ErrNotFound, "runstore", "get", "no run "+id, nil)
	case 1:
		return found[0], nil
	default:
		return nil, services.Wrap(services.ErrValidation, "runstore", "get", "run id prefix "+id+" is ambiguous", nil)
	}
}

// List returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY created_at DESC, rowid DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Events returns the run's event log in order.
func (s *Store) Events(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT message FROM run_events WHERE run_id = ? ORDER BY seq", id)
	if err != nil {
		return nil, fmt.Errorf("query run events: %w", err)
	}
	defer rows.Close()

	var events []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		events = append(events, line)
	}
	return events, rows.Err()
}

// FailRunning marks runs left in StatusRunning (for example by a crash) as
// failed and returns how many were updated.
func (s *Store) FailRunning(ctx context.Context, reason string) (int64, error) {
	ts := s.timestamp()
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error_message = ?, error_kind = ?, updated_at = ?, finished_at = ?
         WHERE status = ?`,
		StatusFailed, reason, "interrupted", ts, ts, StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("fail running runs: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) update(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return services.Wrap(services.ErrNotFound, "runstore", "update", "no run "+id, nil)
	}
	return nil
}
