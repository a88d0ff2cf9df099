// Package outbox implements the durable buffer between the primary archive
// store and the indexing consumers. Document mutations append entries in the
// same transaction that persists the aggregate; the dispatcher drains them
// with retry and backoff. Delivery is at-least-once, so consumers are
// expected to be idempotent on content.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/indexwarden/internal/event"
)

// Entry is one undelivered event in the outbox table.
type Entry struct {
	ID        uuid.UUID
	Kind      string
	Payload   []byte
	CreatedAt time.Time
	Attempts  int
	LastError string
}

// Failure records the new attempt count and error for an entry that could
// not be delivered this cycle.
type Failure struct {
	ID        uuid.UUID
	Attempts  int
	LastError string
}

// Batch is the outcome of one dispatch cycle. The store applies it as a
// single transactional write: delivered entries are deleted, failed entries
// keep their row with attempts and last_error updated.
type Batch struct {
	Delivered []uuid.UUID
	Failed    []Failure
}

// Empty reports whether the batch carries no changes.
func (b Batch) Empty() bool {
	return len(b.Delivered) == 0 && len(b.Failed) == 0
}

// Store is the persistence the dispatcher drives.
type Store interface {
	// Candidates returns up to limit entries with Attempts < maxAttempts,
	// oldest first.
	Candidates(ctx context.Context, limit, maxAttempts int) ([]Entry, error)

	// Apply persists a dispatch outcome as one transaction.
	Apply(ctx context.Context, batch Batch) error
}

// Inspector exposes read-only outbox queries for the CLI. Implemented by the
// archive store alongside Store.
type Inspector interface {
	// PendingCount returns the number of entries still eligible for
	// delivery (Attempts < maxAttempts).
	PendingCount(ctx context.Context, maxAttempts int) (int, error)

	// ExhaustedEntries returns entries that ran out of attempts, oldest
	// first. They stay queryable until an operator resets or purges them.
	ExhaustedEntries(ctx context.Context, maxAttempts int) ([]Entry, error)

	// ResetAttempts zeroes the attempt counter on the given entries so the
	// dispatcher picks them up again. Returns the number of rows changed.
	ResetAttempts(ctx context.Context, ids []uuid.UUID) (int, error)
}

// Publisher hands decoded events to the indexing side.
type Publisher interface {
	Publish(ctx context.Context, ev event.Event) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, ev event.Event) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, ev event.Event) error {
	return f(ctx, ev)
}
