package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/indexwarden/internal/document"
	"github.com/Aman-CERP/indexwarden/internal/event"
)

// ErrNotFound is returned when a document id has no row.
var ErrNotFound = errors.New("document not found")

const documentColumns = `id, title, author, file_name, keywords,
	content_hash, content_size, valid, created_at, updated_at,
	schema_version, is_stale, last_indexed_at,
	indexed_content_hash, indexed_title, analyzer_version, token_hash`

// SaveDocument upserts the document row and drains the aggregate's buffered
// events into the outbox, all in one transaction. A crash between the two
// writes is impossible: either the mutation and its reindex requests both
// land, or neither does.
func (a *Archive) SaveDocument(ctx context.Context, doc *document.Document) error {
	keywords, err := json.Marshal(doc.Keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			author = excluded.author,
			file_name = excluded.file_name,
			keywords = excluded.keywords,
			content_hash = excluded.content_hash,
			content_size = excluded.content_size,
			valid = excluded.valid,
			updated_at = excluded.updated_at,
			schema_version = excluded.schema_version,
			is_stale = excluded.is_stale,
			last_indexed_at = excluded.last_indexed_at,
			indexed_content_hash = excluded.indexed_content_hash,
			indexed_title = excluded.indexed_title,
			analyzer_version = excluded.analyzer_version,
			token_hash = excluded.token_hash`,
		doc.ID, doc.Title, doc.Author, doc.FileName, string(keywords),
		doc.ContentHash, doc.ContentSize, boolToInt(doc.Valid),
		toNanos(doc.CreatedAt), toNanos(doc.UpdatedAt),
		doc.Index.SchemaVersion, boolToInt(doc.Index.IsStale),
		toNanos(doc.Index.LastIndexedAt), doc.Index.IndexedContentHash,
		doc.Index.IndexedTitle, doc.Index.AnalyzerVersion, doc.Index.TokenHash,
	)
	if err != nil {
		return fmt.Errorf("upsert document %s: %w", doc.ID, err)
	}

	if err := insertEvents(ctx, tx, doc.TakeEvents()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetDocument loads one document by id.
func (a *Archive) GetDocument(ctx context.Context, id string) (*document.Document, error) {
	row := a.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", id, err)
	}
	return doc, nil
}

// DeleteDocument removes the row, drops any pending repair-queue entry for
// it, and appends a deletion event to the outbox, in one transaction.
func (a *Archive) DeleteDocument(ctx context.Context, id string) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM index_queue WHERE document_id = ?`, id); err != nil {
		return fmt.Errorf("drop queued repair for %s: %w", id, err)
	}

	ev := event.DocumentDeleted{DocumentID: id, DeletedAt: time.Now().UTC()}
	if err := insertEvents(ctx, tx, []event.Event{ev}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ForEachDocument streams every document row through fn in id order. fn
// returning an error stops the scan and surfaces that error.
func (a *Archive) ForEachDocument(ctx context.Context, fn func(*document.Document) error) error {
	rows, err := a.db.QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents ORDER BY id`)
	if err != nil {
		return fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return fmt.Errorf("scan document: %w", err)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Confirmation carries a successful index write back to the archive.
// ContentHash is the hash captured before signing; it is the optimistic
// check that rejects confirms raced by a newer content write.
type Confirmation struct {
	DocumentID      string
	ContentHash     string
	SchemaVersion   int
	IndexedAt       time.Time
	AnalyzerVersion string
	TokenHash       string
	IndexedTitle    string
}

// ConfirmIndexed stamps the freshness fields if and only if the document's
// content hash still matches the one the signature was computed from.
// Returns false when the row changed underneath the index write (or was
// deleted); the document then stays stale and the pending reindex event
// covers it.
func (a *Archive) ConfirmIndexed(ctx context.Context, c Confirmation) (bool, error) {
	res, err := a.db.ExecContext(ctx, `
		UPDATE documents SET
			is_stale = 0,
			schema_version = ?,
			last_indexed_at = ?,
			indexed_content_hash = ?,
			indexed_title = ?,
			analyzer_version = ?,
			token_hash = ?
		WHERE id = ? AND content_hash = ?`,
		c.SchemaVersion, toNanos(c.IndexedAt), c.ContentHash, c.IndexedTitle,
		c.AnalyzerVersion, c.TokenHash, c.DocumentID, c.ContentHash)
	if err != nil {
		return false, fmt.Errorf("confirm document %s: %w", c.DocumentID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("confirm document %s: %w", c.DocumentID, err)
	}
	return affected > 0, nil
}

// StaleCount returns the number of documents awaiting a reindex.
func (a *Archive) StaleCount(ctx context.Context) (int, error) {
	var n int
	err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE is_stale = 1`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count stale documents: %w", err)
	}
	return n, nil
}

// insertEvents encodes and appends events to the outbox inside tx. All rows
// in one batch share a created_at; rowid breaks the tie so dispatch order
// matches append order.
func insertEvents(ctx context.Context, tx *sql.Tx, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO outbox (id, kind, payload, created_at, attempts) VALUES (?, ?, ?, ?, 0)`)
	if err != nil {
		return fmt.Errorf("prepare outbox insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, ev := range events {
		kind, payload, err := event.Encode(ev)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, uuid.NewString(), kind, payload, now.UnixNano()); err != nil {
			return fmt.Errorf("insert outbox entry: %w", err)
		}
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*document.Document, error) {
	var (
		doc                       document.Document
		keywords                  string
		valid, stale              int
		created, updated, indexed int64
	)
	err := row.Scan(
		&doc.ID, &doc.Title, &doc.Author, &doc.FileName, &keywords,
		&doc.ContentHash, &doc.ContentSize, &valid, &created, &updated,
		&doc.Index.SchemaVersion, &stale, &indexed,
		&doc.Index.IndexedContentHash, &doc.Index.IndexedTitle,
		&doc.Index.AnalyzerVersion, &doc.Index.TokenHash,
	)
	if err != nil {
		return nil, err
	}

	if keywords != "" && keywords != "null" {
		if err := json.Unmarshal([]byte(keywords), &doc.Keywords); err != nil {
			return nil, fmt.Errorf("unmarshal keywords: %w", err)
		}
	}
	doc.Valid = valid != 0
	doc.Index.IsStale = stale != 0
	doc.CreatedAt = fromNanos(created)
	doc.UpdatedAt = fromNanos(updated)
	doc.Index.LastIndexedAt = fromNanos(indexed)
	return &doc, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
