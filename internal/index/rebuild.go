package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/indexwarden/internal/async"
	"github.com/Aman-CERP/indexwarden/internal/document"
	"github.com/Aman-CERP/indexwarden/internal/signature"
	"github.com/Aman-CERP/indexwarden/internal/store"
)

// RebuildArchive adds the streaming scan the rebuild needs on top of the
// consumer's archive surface.
type RebuildArchive interface {
	Archive
	ForEachDocument(ctx context.Context, fn func(*document.Document) error) error
}

// Rebuilder is the explicit full-reindex path: every document is rewritten
// into every artifact regardless of its stored signature, then orphaned
// artifact entries are swept. This is the one place orphans are deleted —
// the audit only ever reports them.
type Rebuilder struct {
	archive       RebuildArchive
	artifacts     []Artifact
	calc          *signature.Calculator
	schemaVersion int
	logger        *slog.Logger
}

// NewRebuilder wires a rebuilder. schemaVersion is the version stamped on
// every confirmed document.
func NewRebuilder(archive RebuildArchive, artifacts []Artifact, calc *signature.Calculator, schemaVersion int, logger *slog.Logger) *Rebuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rebuilder{
		archive:       archive,
		artifacts:     artifacts,
		calc:          calc,
		schemaVersion: schemaVersion,
		logger:        logger,
	}
}

// Rebuild runs the four stages — scan, index, confirm, sweep — reporting
// through progress. Matches async.RebuildFunc, so it can run inline for the
// CLI or in the background for the daemon. Confirms go through the store's
// optimistic check; documents mutated mid-rebuild stay stale and their own
// events finish the job.
func (r *Rebuilder) Rebuild(ctx context.Context, progress *async.RebuildProgress) error {
	start := time.Now()

	// Scan: count the population and remember its ids for the sweep.
	progress.SetStage(async.StageScanning, 0)
	sourceIDs := make(map[string]struct{})
	err := r.archive.ForEachDocument(ctx, func(d *document.Document) error {
		sourceIDs[d.ID] = struct{}{}
		return ctx.Err()
	})
	if err != nil {
		return fmt.Errorf("scan archive: %w", err)
	}
	total := len(sourceIDs)

	// Index: rewrite every document into every artifact, capturing the
	// confirmation (with the content hash seen at signing) for stage three.
	progress.SetStage(async.StageIndexing, total)
	confirms := make([]store.Confirmation, 0, total)
	processed := 0
	err = r.archive.ForEachDocument(ctx, func(d *document.Document) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		sig := r.calc.Compute(d)
		rec := RecordFor(d)
		for _, a := range r.artifacts {
			if err := a.Index(ctx, rec); err != nil {
				return fmt.Errorf("index %s in %s: %w", d.ID, a.Name(), err)
			}
		}

		confirms = append(confirms, store.Confirmation{
			DocumentID:      d.ID,
			ContentHash:     d.ContentHash,
			SchemaVersion:   r.schemaVersion,
			AnalyzerVersion: r.calc.AnalyzerVersion(),
			TokenHash:       sig.TokenHash,
			IndexedTitle:    sig.NormalizedTitle,
		})
		processed++
		progress.UpdateDocuments(processed)
		return nil
	})
	if err != nil {
		return err
	}

	// Confirm: stamp freshness. Raced documents are counted, not retried.
	progress.SetStage(async.StageConfirming, total)
	raced := 0
	for i, cf := range confirms {
		if err := ctx.Err(); err != nil {
			return err
		}
		cf.IndexedAt = time.Now().UTC()
		ok, err := r.archive.ConfirmIndexed(ctx, cf)
		if err != nil {
			return fmt.Errorf("confirm %s: %w", cf.DocumentID, err)
		}
		if !ok {
			raced++
		}
		progress.UpdateDocuments(i + 1)
	}

	// Sweep: delete artifact entries with no archive row.
	progress.SetStage(async.StageSweeping, 0)
	swept, err := r.sweep(ctx, sourceIDs, progress)
	if err != nil {
		return err
	}

	r.logger.Info("rebuild_complete",
		slog.Int("documents", total),
		slog.Int("raced", raced),
		slog.Int("orphans_swept", swept),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (r *Rebuilder) sweep(ctx context.Context, sourceIDs map[string]struct{}, progress *async.RebuildProgress) (int, error) {
	type orphan struct {
		artifact Artifact
		id       string
	}
	var orphans []orphan

	for _, a := range r.artifacts {
		ids, err := a.AllIDs(ctx)
		if err != nil {
			return 0, fmt.Errorf("enumerate %s ids: %w", a.Name(), err)
		}
		for id := range ids {
			if _, ok := sourceIDs[id]; !ok {
				orphans = append(orphans, orphan{artifact: a, id: id})
			}
		}
	}
	progress.SetOrphansTotal(len(orphans))

	for i, o := range orphans {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := o.artifact.Delete(ctx, o.id); err != nil {
			return i, fmt.Errorf("sweep %s from %s: %w", o.id, o.artifact.Name(), err)
		}
		progress.UpdateOrphans(i + 1)
	}
	return len(orphans), nil
}
