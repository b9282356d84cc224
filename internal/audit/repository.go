// Package audit provides the command journal: one row per inbound command
// with the outcome of its confirmation loop.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcome values recorded in the journal.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeUnknown = "unknown"
	OutcomeError   = "error"
)

// Page size bounds for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// timeLayout sorts lexically in the same order as time.
const timeLayout = "2006-01-02T15:04:05.000Z"

// CommandRecord is a single journal entry.
type CommandRecord struct {
	ID         string        `json:"id"`
	LocationID string        `json:"location_id"`
	DeviceID   string        `json:"device_id"`
	DeviceKind string        `json:"device_kind"`
	Command    string        `json:"command"`
	Payload    string        `json:"payload"`
	Outcome    string        `json:"outcome"`
	Attempts   int           `json:"attempts"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Filter controls which records List returns.
type Filter struct {
	DeviceID   string // optional
	LocationID string // optional
	Outcome    string // optional
	Limit      int    // default 50, max 200
	Offset     int
}

// ListResult contains a page of journal records.
type ListResult struct {
	Commands []CommandRecord `json:"commands"`
	Total    int             `json:"total"`
	Limit    int             `json:"limit"`
	Offset   int             `json:"offset"`
}

// Repository defines the journal operations.
type Repository interface {
	Create(ctx context.Context, rec *CommandRecord) error
	Get(ctx context.Context, id string) (*CommandRecord, error)
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores the journal in the commands table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new journal repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// NewID returns a fresh journal identifier.
func NewID() string {
	return "cmd-" + uuid.NewString()[:8]
}

// Create inserts a record. ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, rec *CommandRecord) error {
	if rec.ID == "" {
		rec.ID = NewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO commands (id, location_id, device_id, device_kind, command, payload, outcome, attempts, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.LocationID, rec.DeviceID, rec.DeviceKind,
		rec.Command, rec.Payload, rec.Outcome, rec.Attempts,
		nullableString(rec.Error), rec.Duration.Milliseconds(),
		rec.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting command record: %w", err)
	}
	return nil
}

// nullableString returns nil for empty strings so the column stores NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const selectColumns = "SELECT id, location_id, device_id, device_kind, command, payload, outcome, attempts, error, duration_ms, created_at FROM commands"

// Get returns one record by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*CommandRecord, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns records matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.DeviceID != "" {
		conditions = append(conditions, "device_id = ?")
		args = append(args, filter.DeviceID)
	}
	if filter.LocationID != "" {
		conditions = append(conditions, "location_id = ?")
		args = append(args, filter.LocationID)
	}
	if filter.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, filter.Outcome)
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM commands"+where, args...).Scan(&total); err != nil { //nolint:gosec // WHERE built from parameterised conditions
		return nil, fmt.Errorf("counting command records: %w", err)
	}

	query := selectColumns + where + " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying command records: %w", err)
	}
	defer rows.Close()

	commands := []CommandRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		commands = append(commands, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command records: %w", err)
	}

	return &ListResult{
		Commands: commands,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
	}, nil
}

// Prune deletes records created before cutoff and returns the number removed.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM commands WHERE created_at < ?",
		before.UTC().Format(timeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning command records: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking pruned rows: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*CommandRecord, error) {
	var rec CommandRecord
	var errText sql.NullString
	var durationMS int64
	var createdAt string

	if err := s.Scan(&rec.ID, &rec.LocationID, &rec.DeviceID, &rec.DeviceKind,
		&rec.Command, &rec.Payload, &rec.Outcome, &rec.Attempts,
		&errText, &durationMS, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning command record: %w", err)
	}

	rec.Error = errText.String
	rec.Duration = time.Duration(durationMS) * time.Millisecond

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing command timestamp %q: %w", createdAt, err)
	}
	rec.CreatedAt = t
	return &rec, nil
}
