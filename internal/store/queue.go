package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// QueuedDocument is one pending repair in the index queue.
type QueuedDocument struct {
	DocumentID string
	EnqueuedAt time.Time
}

// Enqueue adds a document to the repair queue. INSERT OR IGNORE, so flagging
// the same document in any number of audit runs leaves a single row. This is
// the fire-and-forget sink the audit loop writes to.
func (a *Archive) Enqueue(ctx context.Context, documentID string) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO index_queue (document_id, enqueued_at) VALUES (?, ?)`,
		documentID, time.Now().UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("enqueue document %s: %w", documentID, err)
	}
	return nil
}

// NextQueued returns up to limit queued repairs, oldest first.
func (a *Archive) NextQueued(ctx context.Context, limit int) ([]QueuedDocument, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT document_id, enqueued_at
		FROM index_queue
		ORDER BY enqueued_at, rowid
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query index queue: %w", err)
	}
	defer rows.Close()

	var queued []QueuedDocument
	for rows.Next() {
		var (
			q  QueuedDocument
			ns int64
		)
		if err := rows.Scan(&q.DocumentID, &ns); err != nil {
			return nil, fmt.Errorf("scan queue row: %w", err)
		}
		q.EnqueuedAt = fromNanos(ns)
		queued = append(queued, q)
	}
	return queued, rows.Err()
}

// AckQueued removes processed documents from the queue.
func (a *Archive) AckQueued(ctx context.Context, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}

	placeholders := make([]string, len(documentIDs))
	args := make([]any, len(documentIDs))
	for i, id := range documentIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	_, err := a.db.ExecContext(ctx,
		`DELETE FROM index_queue WHERE document_id IN (`+
			strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return fmt.Errorf("ack queued documents: %w", err)
	}
	return nil
}

// QueueDepth returns the number of queued repairs.
func (a *Archive) QueueDepth(ctx context.Context) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM index_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count index queue: %w", err)
	}
	return n, nil
}
