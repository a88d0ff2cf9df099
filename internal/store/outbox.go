package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Aman-CERP/indexwarden/internal/outbox"
)

// Candidates returns up to limit outbox entries still eligible for delivery,
// oldest first. Entries at the attempt cap never appear here, which is what
// keeps the exhaustion log line a one-time event.
func (a *Archive) Candidates(ctx context.Context, limit, maxAttempts int) ([]outbox.Entry, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, kind, payload, created_at, attempts, COALESCE(last_error, '')
		FROM outbox
		WHERE attempts < ?
		ORDER BY created_at, rowid
		LIMIT ?`, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox candidates: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Apply persists one dispatch outcome: delivered entries are deleted, failed
// entries keep their row with attempts and last_error updated. One
// transaction, so a crash mid-apply never splits the batch.
func (a *Archive) Apply(ctx context.Context, batch outbox.Batch) error {
	if batch.Empty() {
		return nil
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if len(batch.Delivered) > 0 {
		stmt, err := tx.PrepareContext(ctx, `DELETE FROM outbox WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("prepare outbox delete: %w", err)
		}
		defer stmt.Close()
		for _, id := range batch.Delivered {
			if _, err := stmt.ExecContext(ctx, id.String()); err != nil {
				return fmt.Errorf("delete outbox entry %s: %w", id, err)
			}
		}
	}

	if len(batch.Failed) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`UPDATE outbox SET attempts = ?, last_error = ? WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("prepare outbox update: %w", err)
		}
		defer stmt.Close()
		for _, f := range batch.Failed {
			if _, err := stmt.ExecContext(ctx, f.Attempts, f.LastError, f.ID.String()); err != nil {
				return fmt.Errorf("update outbox entry %s: %w", f.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// PendingCount counts entries still eligible for delivery.
func (a *Archive) PendingCount(ctx context.Context, maxAttempts int) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM outbox WHERE attempts < ?`, maxAttempts).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending outbox entries: %w", err)
	}
	return n, nil
}

// ExhaustedEntries returns entries that ran out of delivery attempts, oldest
// first. They stay in the table until an operator resets or purges them.
func (a *Archive) ExhaustedEntries(ctx context.Context, maxAttempts int) ([]outbox.Entry, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, kind, payload, created_at, attempts, COALESCE(last_error, '')
		FROM outbox
		WHERE attempts >= ?
		ORDER BY created_at, rowid`, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("query exhausted outbox entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ResetAttempts zeroes the attempt counter on the given entries so the
// dispatcher picks them up again. Returns the number of rows changed.
func (a *Archive) ResetAttempts(ctx context.Context, ids []uuid.UUID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id.String()
	}

	res, err := a.db.ExecContext(ctx,
		`UPDATE outbox SET attempts = 0, last_error = NULL WHERE id IN (`+
			strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("reset outbox attempts: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset outbox attempts: %w", err)
	}
	return int(affected), nil
}

func scanEntries(rows *sql.Rows) ([]outbox.Entry, error) {
	var entries []outbox.Entry
	for rows.Next() {
		var (
			e  outbox.Entry
			id string
			ns int64
		)
		if err := rows.Scan(&id, &e.Kind, &e.Payload, &ns, &e.Attempts, &e.LastError); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("outbox entry id %q: %w", id, err)
		}
		e.ID = parsed
		e.CreatedAt = fromNanos(ns)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
