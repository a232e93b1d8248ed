package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"scenesmith/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Ledger is an append-only record of job lifecycle events backed by SQLite.
// The job store remains the source of truth for current state; the ledger
// answers "what happened and when" for the history command and the events API.
type Ledger struct {
	db   *sql.DB
	path string
}

// Event is one recorded lifecycle transition or pipeline outcome.
type Event struct {
	ID         int64     `json:"id"`
	JobID      string    `json:"job_id"`
	Event      string    `json:"event"`
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Open initializes or connects to the ledger database.
func Open(cfg *config.Config) (*Ledger, error) {
	if cfg == nil {
		return nil, errors.New("ledger requires configuration")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.LedgerPath()
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

	ledger := &Ledger{db: db, path: dbPath}
	if err := ledger.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return ledger, nil
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Path returns the database location.
func (l *Ledger) Path() string {
	return l.path
}

func (l *Ledger) initSchema(ctx context.Context) error {
	var tableExists int
	err := l.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		tx, err := l.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
		return tx.Commit()
	}

	var version int
	if err := l.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, l.path)
	}
	return nil
}

// Record appends one event. Failures here must never wedge the pipeline, so
// callers typically log and continue on error.
func (l *Ledger) Record(ctx context.Context, jobID, event, fromStatus, toStatus, detail string) error {
	if l == nil || l.db == nil {
		return nil
	}
	if strings.TrimSpace(jobID) == "" || strings.TrimSpace(event) == "" {
		return errors.New("ledger event requires job id and event name")
	}
	return l.execWithRetry(ctx,
		"INSERT INTO job_events (job_id, event, from_status, to_status, detail, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		jobID, event, fromStatus, toStatus, detail, time.Now().UTC().Format(time.RFC3339Nano),
	)
}

// Events returns the ordered event history for one job.
func (l *Ledger) Events(ctx context.Context, jobID string) ([]Event, error) {
	return l.query(ctx,
		"SELECT id, job_id, event, from_status, to_status, detail, created_at FROM job_events WHERE job_id = ? ORDER BY id ASC",
		jobID,
	)
}

// Recent returns the most recent events across all jobs, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.query(ctx,
		"SELECT id, job_id, event, from_status, to_status, detail, created_at FROM job_events ORDER BY id DESC LIMIT ?",
		limit,
	)
}

// Prune removes events for jobs deleted before the cutoff, keeping the ledger
// roughly in step with job retention.
func (l *Ledger) Prune(ctx context.Context, cutoff time.Time) error {
	return l.execWithRetry(ctx,
		"DELETE FROM job_events WHERE created_at < ?",
		cutoff.UTC().Format(time.RFC3339Nano),
	)
}

func (l *Ledger) query(ctx context.Context, stmt string, args ...any) ([]Event, error) {
	if l == nil || l.db == nil {
		return nil, nil
	}
	ctx = ensureContext(ctx)

	var events []Event
	err := retryOnBusy(ctx, func() error {
		rows, err := l.db.QueryContext(ctx, stmt, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		events = events[:0]
		for rows.Next() {
			var (
				event      Event
				fromStatus sql.NullString
				toStatus   sql.NullString
				detail     sql.NullString
				createdRaw string
			)
			if err := rows.Scan(&event.ID, &event.JobID, &event.Event, &fromStatus, &toStatus, &detail, &createdRaw); err != nil {
				return err
			}
			event.FromStatus = fromStatus.String
			event.ToStatus = toStatus.String
			event.Detail = detail.String
			if ts, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
				event.CreatedAt = ts
			}
			events = append(events, event)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (l *Ledger) execWithRetry(ctx context.Context, stmt string, args ...any) error {
	if l == nil || l.db == nil {
		return nil
	}
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := l.db.ExecContext(ctx, stmt, args...)
		return err
	})
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
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
