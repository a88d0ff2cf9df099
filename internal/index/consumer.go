package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/indexwarden/internal/document"
	"github.com/Aman-CERP/indexwarden/internal/event"
	"github.com/Aman-CERP/indexwarden/internal/metrics"
	"github.com/Aman-CERP/indexwarden/internal/signature"
	"github.com/Aman-CERP/indexwarden/internal/store"
)

// ackShutdownTimeout bounds the queue ack when the worker is shutting down;
// repairs that finished are acked even if the host context is gone.
const ackShutdownTimeout = 5 * time.Second

// repairReason labels queue-driven reindexes in the request counter. Outbox
// deliveries carry their own reason; the repair queue does not.
const repairReason = "audit-repair"

// Archive is the slice of the store the consumer needs.
type Archive interface {
	GetDocument(ctx context.Context, id string) (*document.Document, error)
	ConfirmIndexed(ctx context.Context, c store.Confirmation) (bool, error)
	NextQueued(ctx context.Context, limit int) ([]store.QueuedDocument, error)
	AckQueued(ctx context.Context, documentIDs []string) error
}

// Consumer applies pipeline events to the index artifacts. It is the
// in-process Publisher the outbox dispatcher delivers to, and the engine
// behind the queue worker. Reindex is idempotent on content, which is what
// makes at-least-once delivery and audit double-scheduling harmless.
type Consumer struct {
	archive   Archive
	artifacts []Artifact
	calc      *signature.Calculator
	eval      *signature.Evaluator
	logger    *slog.Logger
	now       func() time.Time
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithConsumerLogger sets the logger.
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) { c.logger = logger }
}

// WithConsumerNow overrides the clock for tests.
func WithConsumerNow(now func() time.Time) ConsumerOption {
	return func(c *Consumer) { c.now = now }
}

// NewConsumer wires a consumer to the archive, the artifacts, and the
// analyzer.
func NewConsumer(archive Archive, artifacts []Artifact, calc *signature.Calculator, eval *signature.Evaluator, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		archive:   archive,
		artifacts: artifacts,
		calc:      calc,
		eval:      eval,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Publish implements outbox.Publisher. The switch is exhaustive over the
// event union; anything else is a programming error.
func (c *Consumer) Publish(ctx context.Context, ev event.Event) error {
	switch e := ev.(type) {
	case event.ReindexRequested:
		metrics.ReindexRequestsTotal.WithLabelValues(string(e.Reason)).Inc()
		return c.Reindex(ctx, e.DocumentID)
	case event.DocumentDeleted:
		return c.remove(ctx, e.DocumentID)
	default:
		return fmt.Errorf("event type %T outside the event union", ev)
	}
}

// Reindex brings one document's artifact entries up to date. The physical
// write is skipped when the stored signature already matches: a confirm only
// ever follows a successful write, so a matching signature means a duplicate
// delivery and costs one evaluation. Freshness is stamped through the
// store's optimistic check: the content hash captured before signing must
// still match at stamp time, otherwise the document stays stale and the
// racing mutation's own event covers it.
func (c *Consumer) Reindex(ctx context.Context, documentID string) error {
	return c.reindex(ctx, documentID, false)
}

// Repair rewrites the document's artifact entries unconditionally. Queued
// repairs carry audit evidence that an artifact disagrees with the stored
// signature, and the signature alone cannot tell a healed entry from a lost
// one, so the duplicate-delivery short-circuit must not apply here.
func (c *Consumer) Repair(ctx context.Context, documentID string) error {
	return c.reindex(ctx, documentID, true)
}

func (c *Consumer) reindex(ctx context.Context, documentID string, force bool) error {
	doc, err := c.archive.GetDocument(ctx, documentID)
	if errors.Is(err, store.ErrNotFound) {
		// Deleted after the request was written; drop any leftovers.
		return c.remove(ctx, documentID)
	}
	if err != nil {
		return err
	}

	if !force && !c.eval.NeedsReindex(doc) {
		metrics.ReindexSkippedTotal.Inc()
		c.logger.Debug("reindex_skipped",
			slog.String("document_id", documentID))
		return nil
	}

	signedHash := doc.ContentHash
	sig := c.calc.Compute(doc)
	rec := RecordFor(doc)

	for _, a := range c.artifacts {
		if err := a.Index(ctx, rec); err != nil {
			return fmt.Errorf("index %s in %s: %w", documentID, a.Name(), err)
		}
	}

	confirmed, err := c.archive.ConfirmIndexed(ctx, store.Confirmation{
		DocumentID:      documentID,
		ContentHash:     signedHash,
		SchemaVersion:   c.eval.SchemaVersion(),
		IndexedAt:       c.now().UTC(),
		AnalyzerVersion: c.calc.AnalyzerVersion(),
		TokenHash:       sig.TokenHash,
		IndexedTitle:    sig.NormalizedTitle,
	})
	if err != nil {
		return err
	}
	if !confirmed {
		c.logger.Debug("reindex_confirm_rejected",
			slog.String("document_id", documentID))
	}
	return nil
}

// remove drops the document from every artifact. Absent entries are no-ops,
// so replayed deletions succeed.
func (c *Consumer) remove(ctx context.Context, documentID string) error {
	for _, a := range c.artifacts {
		if err := a.Delete(ctx, documentID); err != nil {
			return fmt.Errorf("delete %s from %s: %w", documentID, a.Name(), err)
		}
	}
	c.logger.Debug("document_removed",
		slog.String("document_id", documentID))
	return nil
}

// ProcessQueue drains up to batchSize queued repairs. Failed repairs stay
// queued for the next pass; successes are acked in one batch, under a
// detached context when the host is shutting down. Returns the number of
// repairs completed.
func (c *Consumer) ProcessQueue(ctx context.Context, batchSize int) (int, error) {
	queued, err := c.archive.NextQueued(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("load queued repairs: %w", err)
	}
	if len(queued) == 0 {
		return 0, nil
	}

	var done []string
	for _, q := range queued {
		if ctx.Err() != nil {
			break
		}
		if err := c.Repair(ctx, q.DocumentID); err != nil {
			c.logger.Warn("queued_reindex_failed",
				slog.String("document_id", q.DocumentID),
				slog.String("error", err.Error()))
			continue
		}
		metrics.ReindexRequestsTotal.WithLabelValues(repairReason).Inc()
		done = append(done, q.DocumentID)
	}

	if len(done) > 0 {
		ackCtx := ctx
		if ctx.Err() != nil {
			var cancel context.CancelFunc
			ackCtx, cancel = context.WithTimeout(context.Background(), ackShutdownTimeout)
			defer cancel()
		}
		if err := c.archive.AckQueued(ackCtx, done); err != nil {
			return len(done), fmt.Errorf("ack queued repairs: %w", err)
		}
	}
	return len(done), ctx.Err()
}
