// Package telemetry keeps local pipeline history for the status surface.
// Audit runs are recorded in the archive database next to the data they
// describe - nothing is reported externally.
package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Aman-CERP/indexwarden/internal/audit"
)

// historyCap bounds the audit_runs table. Recording trims to the newest
// historyCap rows so a long-lived daemon cannot grow the archive unbounded.
const historyCap = 500

// RunOutcome classifies a finished audit run.
type RunOutcome string

const (
	OutcomeClean    RunOutcome = "clean"
	OutcomeFindings RunOutcome = "findings"
	OutcomeDegraded RunOutcome = "degraded"
	OutcomeError    RunOutcome = "error"
)

// AuditRun is one recorded audit run.
type AuditRun struct {
	ID        int64         `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Scanned   int           `json:"scanned"`
	Missing   int           `json:"missing"`
	Drift     int           `json:"drift"`
	Extra     int           `json:"extra"`
	Repaired  int           `json:"repaired"`
	Degraded  bool          `json:"degraded"`
	Err       string        `json:"error,omitempty"`
}

// Outcome classifies the run. Errors dominate, then degraded verification,
// then runs with findings, then clean.
func (r AuditRun) Outcome() RunOutcome {
	switch {
	case r.Err != "":
		return OutcomeError
	case r.Degraded:
		return OutcomeDegraded
	case r.Missing+r.Drift+r.Extra > 0:
		return OutcomeFindings
	default:
		return OutcomeClean
	}
}

// Findings returns how many documents the run flagged across all classes.
func (r AuditRun) Findings() int {
	return r.Missing + r.Drift + r.Extra
}

// Totals aggregates recorded runs over a window.
type Totals struct {
	Runs     int `json:"runs"`
	Findings int `json:"findings"`
	Repaired int `json:"repaired"`
	Errors   int `json:"errors"`
}

// HistoryStore persists audit runs in the archive database.
type HistoryStore struct {
	db *sql.DB
}

var _ audit.Recorder = (*HistoryStore)(nil)

// NewHistoryStore wraps the archive's database handle. It expects the
// history tables to already exist (created by InitHistorySchema).
func NewHistoryStore(db *sql.DB) (*HistoryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &HistoryStore{db: db}, nil
}

// InitHistorySchema creates the history tables if they don't exist.
// The archive store calls this when it opens the database.
func InitHistorySchema(db *sql.DB) error {
	schema := `
	-- One row per audit run; newest rows retained up to the history cap
	CREATE TABLE IF NOT EXISTS audit_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		scanned INTEGER NOT NULL DEFAULT 0,
		missing INTEGER NOT NULL DEFAULT 0,
		drift INTEGER NOT NULL DEFAULT 0,
		extra INTEGER NOT NULL DEFAULT 0,
		repaired INTEGER NOT NULL DEFAULT 0,
		degraded INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_audit_runs_started ON audit_runs(started_at);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}
	return nil
}

// RecordAuditRun appends a run to history. Implements audit.Recorder.
// Automatically trims history to the newest historyCap rows.
func (s *HistoryStore) RecordAuditRun(ctx context.Context, rec audit.RunRecord) error {
	degraded := 0
	if rec.Degraded {
		degraded = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_runs (started_at, duration_ms, scanned, missing, drift, extra, repaired, degraded, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.StartedAt.UTC().UnixNano(), rec.Duration.Milliseconds(),
		rec.Scanned, rec.Missing, rec.Drift, rec.Extra, rec.Repaired, degraded, rec.Err)
	if err != nil {
		return fmt.Errorf("insert audit run: %w", err)
	}

	// Trim to the cap (delete oldest)
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM audit_runs
		WHERE id NOT IN (
			SELECT id FROM audit_runs
			ORDER BY id DESC
			LIMIT ?
		)
	`, historyCap)
	if err != nil {
		return fmt.Errorf("trim audit runs: %w", err)
	}

	return nil
}

// RecentAuditRuns retrieves up to limit runs, newest first.
func (s *HistoryStore) RecentAuditRuns(ctx context.Context, limit int) ([]AuditRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, duration_ms, scanned, missing, drift, extra, repaired, degraded, error
		FROM audit_runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit runs: %w", err)
	}
	defer rows.Close()

	var runs []AuditRun
	for rows.Next() {
		var (
			r          AuditRun
			started    int64
			durationMS int64
			degraded   int
		)
		if err := rows.Scan(&r.ID, &started, &durationMS, &r.Scanned, &r.Missing,
			&r.Drift, &r.Extra, &r.Repaired, &degraded, &r.Err); err != nil {
			return nil, fmt.Errorf("scan audit run: %w", err)
		}
		r.StartedAt = time.Unix(0, started).UTC()
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.Degraded = degraded != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LastRun returns the most recent run, or nil when history is empty.
func (s *HistoryStore) LastRun(ctx context.Context) (*AuditRun, error) {
	runs, err := s.RecentAuditRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// RunTotals aggregates runs started at or after since.
func (s *HistoryStore) RunTotals(ctx context.Context, since time.Time) (Totals, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(missing + drift + extra), 0),
		       COALESCE(SUM(repaired), 0),
		       COALESCE(SUM(CASE WHEN error != '' THEN 1 ELSE 0 END), 0)
		FROM audit_runs
		WHERE started_at >= ?
	`, since.UTC().UnixNano())

	var t Totals
	if err := row.Scan(&t.Runs, &t.Findings, &t.Repaired, &t.Errors); err != nil {
		return Totals{}, fmt.Errorf("aggregate audit runs: %w", err)
	}
	return t, nil
}

// Close releases resources. The underlying db is not closed as it's shared.
func (s *HistoryStore) Close() error {
	// Don't close db - it's shared with the archive store
	return nil
}
