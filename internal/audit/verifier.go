// Package audit reconciles the primary archive store with the search index
// artifacts. The verifier classifies every divergence as Missing (in the
// store, absent from at least one artifact), Drift (indexed everywhere but
// with a stale signature), or Extra (index-side orphans, reported and never
// deleted here). Repair feeds Missing and Drift back through the index queue.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Aman-CERP/indexwarden/internal/async"
	"github.com/Aman-CERP/indexwarden/internal/document"
	"github.com/Aman-CERP/indexwarden/internal/metrics"
)

// Source streams document snapshots out of the primary store. Snapshots
// carry identity, metadata, and stored index state, never content.
type Source interface {
	ForEachDocument(ctx context.Context, fn func(*document.Document) error) error
}

// Artifact is one physical index whose id-map the audit checks against the
// source population.
type Artifact interface {
	Name() string
	AllIDs(ctx context.Context) (map[string]struct{}, error)
}

// Evaluator decides whether an everywhere-present document still needs
// reindexing.
type Evaluator interface {
	NeedsReindex(d *document.Document) bool
}

// Queue accepts repair work, fire-and-forget. Enqueueing an id twice must
// leave a single pending entry.
type Queue interface {
	Enqueue(ctx context.Context, documentID string) error
}

// RunRecord is one audit run as kept in history.
type RunRecord struct {
	StartedAt time.Time
	Duration  time.Duration
	Scanned   int
	Missing   int
	Drift     int
	Extra     int
	Repaired  int
	Degraded  bool
	Err       string
}

// Recorder persists audit history. Optional; recording failures are logged
// and never fail a run.
type Recorder interface {
	RecordAuditRun(ctx context.Context, rec RunRecord) error
}

// Summary is the outcome of one verification pass. The id slices are sorted
// and mutually disjoint: a document missing from an artifact is never also
// reported as drifted.
type Summary struct {
	Missing []string
	Drift   []string
	Extra   []string

	// Degraded is set when an artifact id-map could not be loaded. Missing
	// and Extra are then empty and Drift is judged from stored signatures
	// alone, so a down index does not produce a false everything-missing
	// storm.
	Degraded bool

	// Scanned counts the documents enumerated from the source.
	Scanned int
}

// Clean reports whether the run found nothing to repair or remove.
func (s *Summary) Clean() bool {
	return len(s.Missing) == 0 && len(s.Drift) == 0 && len(s.Extra) == 0
}

// Verifier drives verification and repair against a fixed set of artifacts.
type Verifier struct {
	source    Source
	artifacts []Artifact
	eval      Evaluator
	queue     Queue
	recorder  Recorder
	gate      *async.Gate
	logger    *slog.Logger
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithRecorder attaches an audit-history sink.
func WithRecorder(r Recorder) VerifierOption {
	return func(v *Verifier) {
		v.recorder = r
	}
}

// WithVerifierGate attaches a pause gate honored between the verify and
// repair steps of a run.
func WithVerifierGate(g *async.Gate) VerifierOption {
	return func(v *Verifier) {
		v.gate = g
	}
}

// WithVerifierLogger sets the logger. Defaults to slog.Default().
func WithVerifierLogger(l *slog.Logger) VerifierOption {
	return func(v *Verifier) {
		if l != nil {
			v.logger = l
		}
	}
}

// NewVerifier creates a verifier over the given source and artifacts.
func NewVerifier(source Source, artifacts []Artifact, eval Evaluator, queue Queue, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		source:    source,
		artifacts: artifacts,
		eval:      eval,
		queue:     queue,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify computes the divergence between source and artifacts:
// Missing = S \ (I1 ∩ ... ∩ In), Extra = (I1 ∪ ... ∪ In) \ S, and Drift for
// everywhere-present documents the evaluator flags. Artifact load failures
// degrade the run instead of failing it.
func (v *Verifier) Verify(ctx context.Context) (*Summary, error) {
	summary := &Summary{}

	idSets := make([]map[string]struct{}, 0, len(v.artifacts))
	for _, a := range v.artifacts {
		ids, err := a.AllIDs(ctx)
		if err != nil {
			v.logger.Warn("audit_artifact_unavailable",
				slog.String("artifact", a.Name()),
				slog.String("error", err.Error()))
			summary.Degraded = true
			idSets = nil
			break
		}
		idSets = append(idSets, ids)
	}

	sourceIDs := make(map[string]struct{})
	err := v.source.ForEachDocument(ctx, func(d *document.Document) error {
		summary.Scanned++

		if !summary.Degraded {
			sourceIDs[d.ID] = struct{}{}
			for _, set := range idSets {
				if _, ok := set[d.ID]; !ok {
					summary.Missing = append(summary.Missing, d.ID)
					return nil
				}
			}
		}

		// Present in every artifact (or membership unknowable): an
		// analyzer-version or signature mismatch is drift, not absence.
		if v.eval.NeedsReindex(d) {
			summary.Drift = append(summary.Drift, d.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate documents: %w", err)
	}

	if !summary.Degraded {
		seen := make(map[string]struct{})
		for _, set := range idSets {
			for id := range set {
				if _, inSource := sourceIDs[id]; inSource {
					continue
				}
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				summary.Extra = append(summary.Extra, id)
			}
		}
	}

	sort.Strings(summary.Missing)
	sort.Strings(summary.Drift)
	sort.Strings(summary.Extra)

	metrics.AuditDocuments.WithLabelValues("missing").Set(float64(len(summary.Missing)))
	metrics.AuditDocuments.WithLabelValues("drift").Set(float64(len(summary.Drift)))
	metrics.AuditDocuments.WithLabelValues("extra").Set(float64(len(summary.Extra)))

	return summary, nil
}

// RepairDrift enqueues every Missing and Drift id once and returns how many
// were accepted. Per-id enqueue failures are logged and skipped; only
// cancellation aborts the pass. Extra ids are never touched.
func (v *Verifier) RepairDrift(ctx context.Context, summary *Summary) (int, error) {
	seen := make(map[string]struct{}, len(summary.Missing)+len(summary.Drift))
	count := 0

	for _, ids := range [][]string{summary.Missing, summary.Drift} {
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			if err := ctx.Err(); err != nil {
				return count, err
			}
			if err := v.queue.Enqueue(ctx, id); err != nil {
				v.logger.Warn("audit_repair_enqueue_failed",
					slog.String("document_id", id),
					slog.String("error", err.Error()))
				continue
			}
			count++
		}
	}

	metrics.AuditRepairsTotal.Add(float64(count))
	if count > 0 {
		v.logger.Info("audit_repair_enqueued", slog.Int("documents", count))
	}
	return count, nil
}

// RunOnce performs one full audit run: verify, optionally repair, then
// record and report. This is the unit both the background scheduler and the
// one-shot CLI invoke.
func (v *Verifier) RunOnce(ctx context.Context, repair bool) (*Summary, int, error) {
	start := time.Now()
	defer func() {
		metrics.AuditRunDuration.Observe(time.Since(start).Seconds())
	}()

	summary, err := v.Verify(ctx)
	if err != nil {
		metrics.AuditRunsTotal.WithLabelValues("error").Inc()
		v.recordRun(ctx, RunRecord{StartedAt: start, Duration: time.Since(start), Err: err.Error()})
		return nil, 0, err
	}

	repaired := 0
	if repair && len(summary.Missing)+len(summary.Drift) > 0 {
		if v.gate != nil {
			if err := v.gate.AwaitRunning(ctx); err != nil {
				return summary, 0, err
			}
		}
		repaired, err = v.RepairDrift(ctx, summary)
		if err != nil {
			metrics.AuditRunsTotal.WithLabelValues("error").Inc()
			v.recordRun(ctx, v.makeRecord(start, summary, repaired, err))
			return summary, repaired, err
		}
	}

	result := "ok"
	if summary.Degraded {
		result = "degraded"
	}
	metrics.AuditRunsTotal.WithLabelValues(result).Inc()
	v.recordRun(ctx, v.makeRecord(start, summary, repaired, nil))

	v.logger.Info("audit_complete",
		slog.Int("scanned", summary.Scanned),
		slog.Int("missing", len(summary.Missing)),
		slog.Int("drift", len(summary.Drift)),
		slog.Int("extra", len(summary.Extra)),
		slog.Int("repaired", repaired),
		slog.Bool("degraded", summary.Degraded),
		slog.Duration("duration", time.Since(start)))
	return summary, repaired, nil
}

func (v *Verifier) makeRecord(start time.Time, summary *Summary, repaired int, err error) RunRecord {
	rec := RunRecord{
		StartedAt: start,
		Duration:  time.Since(start),
		Scanned:   summary.Scanned,
		Missing:   len(summary.Missing),
		Drift:     len(summary.Drift),
		Extra:     len(summary.Extra),
		Repaired:  repaired,
		Degraded:  summary.Degraded,
	}
	if err != nil {
		rec.Err = err.Error()
	}
	return rec
}

func (v *Verifier) recordRun(ctx context.Context, rec RunRecord) {
	if v.recorder == nil {
		return
	}
	if err := v.recorder.RecordAuditRun(ctx, rec); err != nil {
		v.logger.Warn("audit_record_failed", slog.String("error", err.Error()))
	}
}
