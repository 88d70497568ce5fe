package workflow

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/amontoro/strategos/pkg/errors"
)

// SQLiteAuditStore persists the audit trail in SQLite.
type SQLiteAuditStore struct {
	db *sql.DB
}

// OpenSQLiteAuditStore opens (or creates) a SQLite database at path and
// ensures the audit schema.
func OpenSQLiteAuditStore(path string) (*SQLiteAuditStore, error) {
	if path == "" {
		return nil, errors.New(errors.CodeInvalidInput, "sqlite audit store requires a path", nil)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "open sqlite audit store", err)
	}
	store, err := NewSQLiteAuditStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteAuditStore wraps an existing database handle and ensures schema.
func NewSQLiteAuditStore(db *sql.DB) (*SQLiteAuditStore, error) {
	if db == nil {
		return nil, errors.New(errors.CodeInvalidInput, "db is nil", nil)
	}
	if err := ensureAuditSchema(db); err != nil {
		return nil, errors.New(errors.CodeInternal, "ensure audit schema", err)
	}
	return &SQLiteAuditStore{db: db}, nil
}

// Record stores a single audit event.
func (s *SQLiteAuditStore) Record(ctx context.Context, event AuditEvent) error {
	if event.RunID == "" || event.StepID == "" {
		return errors.New(errors.CodeInvalidInput, "audit event requires run_id and step_id", nil)
	}
	output, err := encodeOutput(event.Output)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_audit_events (
			run_id, playbook, step_id, step_type, status, output_json, error_text, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.RunID,
		event.Playbook,
		event.StepID,
		event.StepType,
		event.Status,
		output,
		event.Error,
		normalizeAuditTime(event.StartedAt),
		normalizeAuditTime(event.FinishedAt),
	)
	if err != nil {
		return errors.New(errors.CodeInternal, "record audit event", err)
	}
	return nil
}

// List returns audit events matching the filter, oldest first.
func (s *SQLiteAuditStore) List(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	query := `
		SELECT run_id, playbook, step_id, step_type, status, output_json, error_text, started_at, finished_at
		FROM workflow_audit_events
	`
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if filter.RunID != "" {
		addFilter("run_id = ?", filter.RunID)
	}
	if filter.StepID != "" {
		addFilter("step_id = ?", filter.StepID)
	}
	if filter.Status != "" {
		addFilter("status = ?", filter.Status)
	}
	query += where + " ORDER BY started_at ASC, rowid ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "list audit events", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var (
			event      AuditEvent
			outputJSON string
			started    sql.NullTime
			finished   sql.NullTime
		)
		if err := rows.Scan(
			&event.RunID,
			&event.Playbook,
			&event.StepID,
			&event.StepType,
			&event.Status,
			&outputJSON,
			&event.Error,
			&started,
			&finished,
		); err != nil {
			return nil, errors.New(errors.CodeInternal, "scan audit event", err)
		}
		if out, err := decodeOutput(outputJSON); err == nil {
			event.Output = out
		}
		if started.Valid {
			event.StartedAt = started.Time
		}
		if finished.Valid {
			event.FinishedAt = finished.Time
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeInternal, "iterate audit events", err)
	}
	return events, nil
}

// Close closes the underlying database handle.
func (s *SQLiteAuditStore) Close() error {
	return s.db.Close()
}

func ensureAuditSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS workflow_audit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			playbook TEXT,
			step_id TEXT NOT NULL,
			step_type TEXT NOT NULL,
			status TEXT NOT NULL,
			output_json TEXT,
			error_text TEXT,
			started_at TIMESTAMP,
			finished_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_workflow_audit_run ON workflow_audit_events(run_id);
		CREATE INDEX IF NOT EXISTS idx_workflow_audit_step ON workflow_audit_events(step_id);
		CREATE INDEX IF NOT EXISTS idx_workflow_audit_status ON workflow_audit_events(status);
	`)
	return err
}

func normalizeAuditTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
