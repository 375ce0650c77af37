// Package history keeps a SQLite record of finished conversion runs.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"audioconv/internal/config"
	"audioconv/internal/models"
)

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Store persists run summaries.
type Store struct {
	db   *sql.DB
	path string
}

// Open ensures the state directory exists and opens the history database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.HistoryPath())
}

// OpenPath opens or creates the database at dbPath.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
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

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
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

// Record stores a finished run and its per-file results. Recording the same
// run id again replaces the earlier entry.
func (s *Store) Record(ctx context.Context, summary models.RunSummary) error {
	if strings.TrimSpace(summary.RunID) == "" {
		return errors.New("run id is empty")
	}
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin record tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		for _, stmt := range []string{
			`DELETE FROM results WHERE run_id = ?`,
			`DELETE FROM runs WHERE id = ?`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, summary.RunID); err != nil {
				return fmt.Errorf("replace run: %w", err)
			}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO runs (
                id, started_at, finished_at, format, output_dir, state,
                total, succeeded, failed, success, error_message, elapsed_ms
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			summary.RunID,
			formatTime(summary.StartedAt),
			formatTime(summary.FinishedAt),
			summary.Format,
			nullableString(summary.OutputDir),
			string(summary.State),
			summary.Total,
			summary.Succeeded,
			summary.Failed,
			boolToInt(summary.Success),
			nullableString(summary.Error),
			summary.Elapsed.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		for _, r := range summary.Results {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO results (
                    run_id, idx, input_path, output_path, success, error_message, elapsed_ms, retries
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				summary.RunID,
				r.Task.Index,
				r.Task.InputPath,
				nullableString(r.OutputPath),
				boolToInt(r.Success),
				nullableString(r.Message),
				r.Elapsed.Milliseconds(),
				r.Retries,
			)
			if err != nil {
				return fmt.Errorf("insert result %d: %w", r.Task.Index, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit record: %w", err)
		}
		return nil
	})
}

const runColumns = `id, started_at, finished_at, format, output_dir, state,
    total, succeeded, failed, success, error_message, elapsed_ms`

// Recent returns up to limit runs, newest first. Results are not loaded.
func (s *Store) Recent(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns one run including its results. The bool is false when the
// run is unknown.
func (s *Store) Get(ctx context.Context, runID string) (models.RunSummary, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RunSummary{}, false, nil
	}
	if err != nil {
		return models.RunSummary{}, false, err
	}
	results, err := s.Results(ctx, runID)
	if err != nil {
		return models.RunSummary{}, false, err
	}
	run.Results = results
	return run, true, nil
}

// Results returns the per-file results of a run in submission order.
func (s *Store) Results(ctx context.Context, runID string) ([]models.Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, input_path, output_path, success, error_message, elapsed_ms, retries
         FROM results WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var results []models.Result
	for rows.Next() {
		var (
			r          models.Result
			outputPath sql.NullString
			errMsg     sql.NullString
			success    int
			elapsedMS  int64
		)
		if err := rows.Scan(&r.Task.Index, &r.Task.InputPath, &outputPath, &success, &errMsg, &elapsedMS, &r.Retries); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.OutputPath = outputPath.String
		r.Success = success != 0
		r.Message = errMsg.String
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		results = append(results, r)
	}
	return results, rows.Err()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (models.RunSummary, error) {
	var (
		run       models.RunSummary
		startedAt string
		finished  string
		outputDir sql.NullString
		errMsg    sql.NullString
		state     string
		success   int
		elapsedMS int64
	)
	err := scanner.Scan(&run.RunID, &startedAt, &finished, &run.Format, &outputDir, &state,
		&run.Total, &run.Succeeded, &run.Failed, &success, &errMsg, &elapsedMS)
	if errors.Is(err, sql.ErrNoRows) {
		return run, err
	}
	if err != nil {
		return run, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt, _ = parseTimeString(startedAt)
	run.FinishedAt, _ = parseTimeString(finished)
	run.OutputDir = outputDir.String
	run.State = models.RunState(state)
	run.Success = success != 0
	run.Error = errMsg.String
	run.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	return run, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// Fixed-width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
