package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/AaronLay10/pipecheck/internal/events"
	"github.com/AaronLay10/pipecheck/internal/validate"
)

// Limits for Recent.
const (
	DefaultLimit = 50
	MaxLimit     = 1000
)

// RunRow is one stored validation run.
type RunRow struct {
	RunID        string                `json:"run_id"`
	Timestamp    time.Time             `json:"ts"`
	Source       string                `json:"source"`
	Tag          *string               `json:"tag,omitempty"`
	Passed       bool                  `json:"passed"`
	ErrorCount   int                   `json:"error_count"`
	WarningCount int                   `json:"warning_count"`
	DurationMS   float64               `json:"duration_ms"`
	Diagnostics  []validate.Diagnostic `json:"diagnostics"`
}

// History stores validation runs in the validation_runs table.
type History struct {
	db *sql.DB
}

// Open connects with connStr, verifies the connection and creates the table
// if needed.
func Open(ctx context.Context, connStr string) (*History, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	h := &History{db: db}
	if err := h.createTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create validation_runs table: %w", err)
	}
	return h, nil
}

func (h *History) createTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS validation_runs (
			run_id        UUID PRIMARY KEY,
			ts            TIMESTAMPTZ NOT NULL,
			source        TEXT NOT NULL,
			tag           TEXT,
			passed        BOOLEAN NOT NULL,
			error_count   INTEGER NOT NULL,
			warning_count INTEGER NOT NULL,
			duration_ms   DOUBLE PRECISION NOT NULL,
			diagnostics   JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_validation_runs_ts ON validation_runs(ts DESC);
		CREATE INDEX IF NOT EXISTS idx_validation_runs_tag ON validation_runs(tag);
	`
	_, err := h.db.ExecContext(ctx, query)
	return err
}

// newRunRow flattens rep into its stored form.
func newRunRow(rep *validate.Report) RunRow {
	row := RunRow{
		RunID:        rep.RunID,
		Timestamp:    rep.StartedAt.UTC(),
		Source:       rep.Source,
		Passed:       rep.Passed(),
		ErrorCount:   len(rep.Errors()),
		WarningCount: len(rep.Warnings()),
		DurationMS:   float64(rep.Duration) / float64(time.Millisecond),
		Diagnostics:  rep.Diagnostics,
	}
	if rep.Tag != "" {
		tag := rep.Tag
		row.Tag = &tag
	}
	if row.Diagnostics == nil {
		row.Diagnostics = []validate.Diagnostic{}
	}
	return row
}

// Append stores rep.
func (h *History) Append(ctx context.Context, rep *validate.Report) error {
	row := newRunRow(rep)
	diagJSON, err := json.Marshal(row.Diagnostics)
	if err != nil {
		return fmt.Errorf("failed to marshal diagnostics: %w", err)
	}

	query := `
		INSERT INTO validation_runs
			(run_id, ts, source, tag, passed, error_count, warning_count, duration_ms, diagnostics)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id) DO NOTHING
	`
	_, err = h.db.ExecContext(ctx, query,
		row.RunID, row.Timestamp, row.Source, row.Tag, row.Passed,
		row.ErrorCount, row.WarningCount, row.DurationMS, diagJSON)
	return err
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Recent returns the last limit runs, newest first.
func (h *History) Recent(ctx context.Context, limit int) ([]RunRow, error) {
	query := `
		SELECT run_id, ts, source, tag, passed, error_count, warning_count, duration_ms, diagnostics
		FROM validation_runs
		ORDER BY ts DESC
		LIMIT $1
	`
	rows, err := h.db.QueryContext(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []RunRow{}
	for rows.Next() {
		var r RunRow
		var tag sql.NullString
		var diagJSON []byte

		if err := rows.Scan(&r.RunID, &r.Timestamp, &r.Source, &tag, &r.Passed,
			&r.ErrorCount, &r.WarningCount, &r.DurationMS, &diagJSON); err != nil {
			return nil, err
		}
		if tag.Valid {
			r.Tag = &tag.String
		}
		if err := json.Unmarshal(diagJSON, &r.Diagnostics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal diagnostics: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Ping checks the connection. Used by /ready.
func (h *History) Ping(ctx context.Context) error {
	return h.db.PingContext(ctx)
}

// Close closes the database connection.
func (h *History) Close() error {
	if h.db != nil {
		return h.db.Close()
	}
	return nil
}

// Name implements events.Sink.
func (h *History) Name() string { return "postgres" }

// HandleEvent stores the report carried by validation outcome events.
func (h *History) HandleEvent(e events.Event) error {
	if e.Report == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.Append(ctx, e.Report)
}
