package index

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// TrigramArtifact is the SQLite FTS5 trigram index ("trigram.db"). It
// serves substring matching; the pipeline only cares that its id-set stays
// consistent with the archive.
type TrigramArtifact struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ Artifact = (*TrigramArtifact)(nil)

// validateTrigramIntegrity checks the index database before opening.
func validateTrigramIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Database doesn't exist, will be created
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
                       WHERE type='table' AND name='trigram_content'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("FTS5 table 'trigram_content' missing")
	}

	return nil
}

// NewTrigramArtifact opens (or creates) the trigram index at path. An empty
// path creates an in-memory index for testing. Like the token index, a
// corrupted file is cleared and recreated: the artifact is rebuildable and
// the audit reschedules whatever it lost.
func NewTrigramArtifact(path string) (*TrigramArtifact, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}

		if validErr := validateTrigramIntegrity(path); validErr != nil {
			slog.Warn("trigram_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("trigram index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			// Also remove WAL and SHM files
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")

			slog.Info("trigram_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, audit will reschedule"))
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open trigram index: %w", err)
	}

	// Single writer to prevent lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	a := &TrigramArtifact{db: db, path: path}
	if err := a.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// initSchema creates the FTS5 virtual table and supporting tables.
func (a *TrigramArtifact) initSchema() error {
	schema := `
	-- FTS5 virtual table with trigram tokenization for substring matching.
	-- doc_id is UNINDEXED (stored but not searchable).
	CREATE VIRTUAL TABLE IF NOT EXISTS trigram_content USING fts5(
		doc_id UNINDEXED,
		content,
		tokenize='trigram'
	);

	-- Auxiliary table for tracking document IDs (AllIDs method).
	-- FTS5 doesn't expose rowid reliably for external content tables.
	CREATE TABLE IF NOT EXISTS doc_ids (
		doc_id TEXT PRIMARY KEY
	);
	`

	if _, err := a.db.Exec(schema); err != nil {
		return fmt.Errorf("create trigram schema: %w", err)
	}
	return nil
}

// Name implements Artifact.
func (a *TrigramArtifact) Name() string { return "trigram" }

// Index adds or replaces the document's entry.
// NOTE: FTS5 virtual tables don't support REPLACE, so we delete first.
func (a *TrigramArtifact) Index(ctx context.Context, rec Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return fmt.Errorf("trigram index is closed")
	}

	content := strings.Join([]string{rec.Title, rec.Author, rec.FileName, rec.Keywords}, "\n")

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM trigram_content WHERE doc_id = ?`, rec.DocumentID); err != nil {
		return fmt.Errorf("delete existing document %s: %w", rec.DocumentID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO trigram_content(doc_id, content) VALUES (?, ?)`,
		rec.DocumentID, content); err != nil {
		return fmt.Errorf("index document %s: %w", rec.DocumentID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO doc_ids(doc_id) VALUES (?)`, rec.DocumentID); err != nil {
		return fmt.Errorf("track document ID %s: %w", rec.DocumentID, err)
	}

	return tx.Commit()
}

// Delete removes the document's entry. Deleting an absent id is a no-op.
func (a *TrigramArtifact) Delete(ctx context.Context, documentID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return fmt.Errorf("trigram index is closed")
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM trigram_content WHERE doc_id = ?`, documentID); err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM doc_ids WHERE doc_id = ?`, documentID); err != nil {
		return fmt.Errorf("untrack document %s: %w", documentID, err)
	}

	return tx.Commit()
}

// AllIDs returns the id-set of every indexed document.
func (a *TrigramArtifact) AllIDs(ctx context.Context) (map[string]struct{}, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, fmt.Errorf("trigram index is closed")
	}

	rows, err := a.db.QueryContext(ctx, `SELECT doc_id FROM doc_ids`)
	if err != nil {
		return nil, fmt.Errorf("enumerate ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// DocCount returns the number of indexed documents.
func (a *TrigramArtifact) DocCount(ctx context.Context) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return 0, fmt.Errorf("trigram index is closed")
	}

	var n int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM doc_ids`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (a *TrigramArtifact) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	return a.db.Close()
}
