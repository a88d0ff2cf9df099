package warden

import (
	"context"
	"fmt"
	"os"

	"github.com/Aman-CERP/indexwarden/configs"
	"github.com/Aman-CERP/indexwarden/internal/audit"
	"github.com/Aman-CERP/indexwarden/internal/config"
	"github.com/Aman-CERP/indexwarden/internal/document"
	"github.com/Aman-CERP/indexwarden/internal/index"
	"github.com/Aman-CERP/indexwarden/internal/signature"
	"github.com/Aman-CERP/indexwarden/internal/store"
	"github.com/Aman-CERP/indexwarden/internal/telemetry"
)

// Document is the archive's document aggregate. Mutating methods (Rename,
// ReplaceContent, SetKeywords, ...) mark the document stale and buffer a
// reindex request; SaveDocument persists both atomically.
type Document = document.Document

// NewParams carries the initial fields for CreateDocument.
type NewParams = document.NewParams

// ErrNotFound is returned when a document id is not in the archive.
var ErrNotFound = store.ErrNotFound

// Stats is a snapshot of archive and pipeline backlog counters.
type Stats struct {
	// Documents is the total number of documents in the archive.
	Documents int
	// Stale counts documents whose index entries are out of date.
	Stale int
	// OutboxPending counts undelivered reindex requests.
	OutboxPending int
	// OutboxExhausted counts requests that used up their delivery attempts
	// and wait for an operator (indexwarden outbox retry).
	OutboxExhausted int
	// QueueDepth counts documents in the audit repair queue.
	QueueDepth int
}

// AuditReport summarizes one consistency pass over the archive and every
// index artifact.
type AuditReport struct {
	// Scanned is the number of archive documents examined.
	Scanned int
	// Missing lists documents absent from at least one artifact.
	Missing []string
	// Drift lists documents present everywhere but indexed with a stale
	// signature (content, analyzer, or schema changed since).
	Drift []string
	// Extra lists artifact entries with no archive document. Reported,
	// never repaired; a rebuild sweeps them.
	Extra []string
	// Degraded is true when an artifact could not be read (usually because
	// the daemon holds it); its findings are skipped rather than guessed.
	Degraded bool
	// Queued is how many findings a repair pass put on the repair queue.
	Queued int
}

// Clean reports whether the audit found nothing to fix.
func (r *AuditReport) Clean() bool {
	return len(r.Missing) == 0 && len(r.Drift) == 0 && len(r.Extra) == 0
}

// Warden is an open handle on an archive, scoped to document mutation and
// inspection. It takes no locks and opens no index artifacts, so it works
// alongside a running daemon; index writing stays with the pipeline
// processes.
type Warden struct {
	root    string
	cfg     *config.Config
	archive *store.Archive
	calc    *signature.Calculator
	eval    *signature.Evaluator
}

// Init bootstraps an archive at dir: the data directory, the starter
// configuration, and an empty archive database. Calling Init on an
// initialized archive is an error; it never overwrites.
func Init(dir string) error {
	configPath := config.ProjectConfigPath(dir)
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("archive at %s is already initialized", dir)
	}

	if err := os.MkdirAll(config.DataDir(dir), 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(configs.ArchiveConfigTemplate), 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	archive, err := store.Open(config.ArchiveDBPath(dir), store.DefaultOptions())
	if err != nil {
		return fmt.Errorf("create archive database: %w", err)
	}
	return archive.Close()
}

// Open locates the archive governing dir (walking up like the CLI does)
// and opens it with the merged configuration. The caller owns the returned
// Warden and must Close it.
func Open(dir string) (*Warden, error) {
	root, err := config.FindArchiveRoot(dir)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(config.ArchiveDBPath(root)); err != nil {
		return nil, fmt.Errorf("archive at %s is not initialized (run 'indexwarden init')", root)
	}

	archive, err := store.Open(config.ArchiveDBPath(root), store.Options{
		BusyTimeout: cfg.Store.BusyTimeoutDuration(),
		CacheMB:     cfg.Store.CacheMB,
	})
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	calc, err := signature.NewCalculator(cfg.Analyzer)
	if err != nil {
		_ = archive.Close()
		return nil, fmt.Errorf("invalid analyzer configuration: %w", err)
	}

	return &Warden{
		root:    root,
		cfg:     cfg,
		archive: archive,
		calc:    calc,
		eval:    signature.NewEvaluator(calc, index.SchemaVersion),
	}, nil
}

// Root returns the archive root directory.
func (w *Warden) Root() string {
	return w.root
}

// Close releases the archive connection.
func (w *Warden) Close() error {
	return w.archive.Close()
}

// CreateDocument creates and persists a new document. The document starts
// stale with a reindex request already queued.
func (w *Warden) CreateDocument(ctx context.Context, p NewParams) (*Document, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("document id is required")
	}
	doc := document.New(p)
	if err := w.archive.SaveDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// SaveDocument persists a mutated document together with any reindex
// requests its mutations buffered.
func (w *Warden) SaveDocument(ctx context.Context, doc *Document) error {
	return w.archive.SaveDocument(ctx, doc)
}

// GetDocument loads one document by id. Returns ErrNotFound when the id is
// not in the archive.
func (w *Warden) GetDocument(ctx context.Context, id string) (*Document, error) {
	return w.archive.GetDocument(ctx, id)
}

// DeleteDocument removes a document and queues the index deletions.
func (w *Warden) DeleteDocument(ctx context.Context, id string) error {
	return w.archive.DeleteDocument(ctx, id)
}

// ForEachDocument streams every document to fn. Returning an error from fn
// stops the scan.
func (w *Warden) ForEachDocument(ctx context.Context, fn func(*Document) error) error {
	return w.archive.ForEachDocument(ctx, fn)
}

// RequestReindex marks a document stale without changing it, queueing a
// fresh index write.
func (w *Warden) RequestReindex(ctx context.Context, id string) error {
	doc, err := w.archive.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	doc.RequestReindex()
	return w.archive.SaveDocument(ctx, doc)
}

// Stats returns the archive's document and backlog counters.
func (w *Warden) Stats(ctx context.Context) (Stats, error) {
	s, err := w.archive.Stats(ctx, w.cfg.Outbox.MaxAttempts)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Documents:       s.Documents,
		Stale:           s.Stale,
		OutboxPending:   s.OutboxPending,
		OutboxExhausted: s.OutboxExhausted,
		QueueDepth:      s.QueueDepth,
	}, nil
}

// Audit reconciles the archive against every index artifact. With repair
// set, missing and drifted documents are queued for reindexing; the running
// pipeline picks them up. Artifacts are opened only for the read, so the
// audit runs beside a live daemon, degrading rather than failing when the
// daemon holds one.
func (w *Warden) Audit(ctx context.Context, repair bool) (*AuditReport, error) {
	artifacts := []audit.Artifact{
		&lazyArtifact{name: "token", open: func() (index.Artifact, error) {
			return index.NewTokenArtifact(config.TokenIndexPath(w.root))
		}},
		&lazyArtifact{name: "trigram", open: func() (index.Artifact, error) {
			return index.NewTrigramArtifact(config.TrigramDBPath(w.root))
		}},
	}

	history, err := telemetry.NewHistoryStore(w.archive.DB())
	if err != nil {
		return nil, fmt.Errorf("open audit history: %w", err)
	}

	verifier := audit.NewVerifier(w.archive, artifacts, w.eval, w.archive,
		audit.WithRecorder(history))

	summary, queued, err := verifier.RunOnce(ctx, repair)
	if err != nil {
		return nil, err
	}

	return &AuditReport{
		Scanned:  summary.Scanned,
		Missing:  summary.Missing,
		Drift:    summary.Drift,
		Extra:    summary.Extra,
		Degraded: summary.Degraded,
		Queued:   queued,
	}, nil
}

// lazyArtifact opens the underlying artifact only for the duration of an
// id read, then closes it again.
type lazyArtifact struct {
	name string
	open func() (index.Artifact, error)
}

func (l *lazyArtifact) Name() string { return l.name }

func (l *lazyArtifact) AllIDs(ctx context.Context) (map[string]struct{}, error) {
	a, err := l.open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()
	return a.AllIDs(ctx)
}
