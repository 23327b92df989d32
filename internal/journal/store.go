package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Status values stored per outcome.
type Status string

const (
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// Outcome is one processed or failed attempt.
type Outcome struct {
	ID         int64
	RunID      string
	Name       string
	Status     Status
	ErrorKind  string
	Error      string
	Duration   time.Duration
	RecordedAt time.Time
}

// Summary aggregates every recorded outcome.
type Summary struct {
	Processed      int
	Failed         int
	AverageSeconds float64
	Runs           int
}

// Store manages outcome persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the journal database and applies migrations.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("journal path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.upgradeSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts an outcome. A zero RecordedAt is stamped with the current time.
func (s *Store) Record(ctx context.Context, outcome Outcome) error {
	if strings.TrimSpace(outcome.Name) == "" {
		return errors.New("journal: outcome name required")
	}
	if outcome.Status != StatusProcessed && outcome.Status != StatusFailed {
		return fmt.Errorf("journal: unknown status %q", outcome.Status)
	}
	recordedAt := outcome.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO outcomes (run_id, name, status, error_kind, error_message, duration_ms, recorded_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		outcome.RunID,
		outcome.Name,
		string(outcome.Status),
		nullableString(outcome.ErrorKind),
		nullableString(outcome.Error),
		outcome.Duration.Milliseconds(),
		recordedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}
	return nil
}

// Prune deletes outcomes recorded before cutoff and reports how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	// recorded_at is UTC RFC3339, so string order is time order to the second.
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM outcomes WHERE recorded_at < ?`,
		cutoff.UTC().Truncate(time.Second).Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("prune outcomes: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune outcomes: %w", err)
	}
	return removed, nil
}

// Recent returns up to limit outcomes, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Outcome, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, run_id, name, status, error_kind, error_message, duration_ms, recorded_at
        FROM outcomes ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var (
			o          Outcome
			status     string
			kind       sql.NullString
			message    sql.NullString
			durationMS int64
			recordedAt string
		)
		if err := rows.Scan(&o.ID, &o.RunID, &o.Name, &status, &kind, &message, &durationMS, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Status = Status(status)
		o.ErrorKind = kind.String
		o.Error = message.String
		o.Duration = time.Duration(durationMS) * time.Millisecond
		if ts, err := time.Parse(time.RFC3339Nano, recordedAt); err == nil {
			o.RecordedAt = ts
		}
		outcomes = append(outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return outcomes, nil
}

// Summary aggregates all outcomes. AverageSeconds covers processed items only.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	var (
		summary Summary
		avgMS   sql.NullFloat64
	)
	err := s.db.QueryRowContext(
		ctx,
		`SELECT
            COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
            AVG(CASE WHEN status = ? THEN duration_ms END),
            COUNT(DISTINCT run_id)
        FROM outcomes`,
		string(StatusProcessed), string(StatusFailed), string(StatusProcessed),
	).Scan(&summary.Processed, &summary.Failed, &avgMS, &summary.Runs)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize outcomes: %w", err)
	}
	if avgMS.Valid {
		summary.AverageSeconds = avgMS.Float64 / 1000
	}
	return summary, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
