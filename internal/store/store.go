// Package store implements the primary archive store on SQLite: document
// rows with their index-freshness state, the transactional outbox, and the
// audit repair queue, all in one database file so that a document mutation
// and its outbox entries commit atomically.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/indexwarden/internal/audit"
	"github.com/Aman-CERP/indexwarden/internal/outbox"
	"github.com/Aman-CERP/indexwarden/internal/telemetry"
)

// Options configures the SQLite connection.
type Options struct {
	// BusyTimeout is how long SQLite waits on a locked database before
	// returning SQLITE_BUSY.
	BusyTimeout time.Duration
	// CacheMB is the page-cache size in megabytes.
	CacheMB int
}

// DefaultOptions returns the connection defaults used outside tests.
func DefaultOptions() Options {
	return Options{
		BusyTimeout: 5 * time.Second,
		CacheMB:     64,
	}
}

func (o Options) normalized() Options {
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = 5 * time.Second
	}
	if o.CacheMB <= 0 {
		o.CacheMB = 64
	}
	return o
}

// Archive is the SQLite-backed primary store. Methods are safe for
// concurrent use: the pool is capped at a single connection, so statements
// serialize there rather than behind an in-process lock. Close only after
// the workers using the archive have stopped.
type Archive struct {
	db   *sql.DB
	path string
}

// Compile-time checks that the archive serves the pipeline interfaces.
var (
	_ outbox.Store     = (*Archive)(nil)
	_ outbox.Inspector = (*Archive)(nil)
	_ audit.Source     = (*Archive)(nil)
	_ audit.Queue      = (*Archive)(nil)
)

// validateIntegrity checks an existing archive file before opening it.
// Unlike a rebuildable index artifact, the archive is the primary store:
// corruption here is a hard error, never an auto-clear.
func validateIntegrity(path string) error {
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

	return nil
}

// Open opens (or creates) the archive database at path. An empty path opens
// an in-memory archive for testing. Uses WAL mode so readers do not block
// the writer.
func Open(path string, opts Options) (*Archive, error) {
	opts = opts.normalized()

	var dsn string
	if path == "" || path == ":memory:" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create archive directory %s: %w", dir, err)
		}

		if err := validateIntegrity(path); err != nil {
			return nil, fmt.Errorf("archive %s: %w", path, err)
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=" +
			fmt.Sprintf("%d", opts.BusyTimeout.Milliseconds())
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	// Single writer to prevent lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // Don't expire connections

	// Set pragmas via statements (DSN params may be ignored by modernc.org/sqlite).
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeout.Milliseconds()),
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = -%d", opts.CacheMB*1024), // negative = KB
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	a := &Archive{db: db, path: path}
	if err := a.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := telemetry.InitHistorySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return a, nil
}

// initSchema creates the archive tables.
func (a *Archive) initSchema() error {
	schema := `
	-- Schema version tracking
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- Document rows with their index-freshness state.
	-- Timestamp columns hold unix nanoseconds; 0 means never.
	CREATE TABLE IF NOT EXISTS documents (
		id                   TEXT PRIMARY KEY,
		title                TEXT NOT NULL,
		author               TEXT NOT NULL DEFAULT '',
		file_name            TEXT NOT NULL DEFAULT '',
		keywords             TEXT NOT NULL DEFAULT '[]',
		content_hash         TEXT NOT NULL,
		content_size         INTEGER NOT NULL DEFAULT 0,
		valid                INTEGER NOT NULL DEFAULT 1,
		created_at           INTEGER NOT NULL,
		updated_at           INTEGER NOT NULL,
		schema_version       INTEGER NOT NULL DEFAULT 1,
		is_stale             INTEGER NOT NULL DEFAULT 1,
		last_indexed_at      INTEGER NOT NULL DEFAULT 0,
		indexed_content_hash TEXT NOT NULL DEFAULT '',
		indexed_title        TEXT NOT NULL DEFAULT '',
		analyzer_version     TEXT NOT NULL DEFAULT '',
		token_hash           TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_documents_stale ON documents(is_stale);

	-- Transactional outbox. Rows are inserted in the same transaction as the
	-- document write that produced them and deleted on confirmed delivery.
	-- Exhausted rows (attempts at the cap) are retained for inspection.
	CREATE TABLE IF NOT EXISTS outbox (
		id         TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		payload    BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		attempts   INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_outbox_dispatch ON outbox(attempts, created_at);

	-- Audit repair queue. One row per document regardless of how many audit
	-- runs flag it.
	CREATE TABLE IF NOT EXISTS index_queue (
		document_id TEXT PRIMARY KEY,
		enqueued_at INTEGER NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	if _, err := a.db.Exec(schema); err != nil {
		return fmt.Errorf("create archive schema: %w", err)
	}
	return nil
}

// DB exposes the underlying handle so the audit-history store can share the
// same database file.
func (a *Archive) DB() *sql.DB {
	return a.db
}

// Path returns the database file path ("" for in-memory archives).
func (a *Archive) Path() string {
	return a.path
}

// Close closes the database.
func (a *Archive) Close() error {
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	return nil
}

// Stats summarizes archive state for the status command.
type Stats struct {
	Documents       int
	Stale           int
	OutboxPending   int
	OutboxExhausted int
	QueueDepth      int
}

// Stats counts documents, stale documents, outbox entries by eligibility,
// and queued repairs. maxAttempts is the dispatcher's retry cap.
func (a *Archive) Stats(ctx context.Context, maxAttempts int) (Stats, error) {
	var s Stats
	counts := []struct {
		query string
		args  []any
		dst   *int
	}{
		{"SELECT COUNT(*) FROM documents", nil, &s.Documents},
		{"SELECT COUNT(*) FROM documents WHERE is_stale = 1", nil, &s.Stale},
		{"SELECT COUNT(*) FROM outbox WHERE attempts < ?", []any{maxAttempts}, &s.OutboxPending},
		{"SELECT COUNT(*) FROM outbox WHERE attempts >= ?", []any{maxAttempts}, &s.OutboxExhausted},
		{"SELECT COUNT(*) FROM index_queue", nil, &s.QueueDepth},
	}
	for _, c := range counts {
		if err := a.db.QueryRowContext(ctx, c.query, c.args...).Scan(c.dst); err != nil {
			return Stats{}, fmt.Errorf("count archive rows: %w", err)
		}
	}
	return s, nil
}

// toNanos converts a timestamp to its column representation.
func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// fromNanos converts a column value back to a UTC timestamp.
func fromNanos(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
