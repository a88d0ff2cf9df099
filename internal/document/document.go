// Package document defines the archive's document aggregate and its index
// freshness state machine. Mutations that touch indexable fields mark the
// document stale and buffer a reindex-request event; the store persists the
// aggregate and drains the buffer into the outbox in one transaction.
package document

import (
	"slices"
	"strings"
	"time"

	"github.com/Aman-CERP/indexwarden/internal/event"
)

// IndexState tracks a document's freshness relative to the search index.
// Fresh means the stamped signature still matches the document; Stale means
// the document changed since the last confirmed index write.
type IndexState struct {
	SchemaVersion      int       // index schema version at last confirm; bumping forces reindex
	IsStale            bool      // true whenever the aggregate changed since last confirm
	LastIndexedAt      time.Time // zero = never indexed
	IndexedContentHash string    // content hash covered by the last confirm
	IndexedTitle       string    // normalized title stored in the index
	AnalyzerVersion    string    // analyzer config fingerprint at last confirm
	TokenHash          string    // token stream hash at last confirm; empty = no tokenizable content
}

// Document is the primary-store aggregate the pipeline keeps indexed.
type Document struct {
	ID          string
	Title       string
	Author      string
	FileName    string
	Keywords    []string
	ContentHash string
	ContentSize int64
	Valid       bool
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Index IndexState

	events []event.Event
}

// NewParams carries the initial fields for a document.
type NewParams struct {
	ID          string
	Title       string
	Author      string
	FileName    string
	Keywords    []string
	ContentHash string
	ContentSize int64
}

// New creates a document in its initial state: valid, schema version 1,
// stale, with a created reindex request buffered. Every new document starts
// unindexed.
func New(p NewParams) *Document {
	now := time.Now().UTC()
	d := &Document{
		ID:          p.ID,
		Title:       p.Title,
		Author:      p.Author,
		FileName:    p.FileName,
		Keywords:    slices.Clone(p.Keywords),
		ContentHash: p.ContentHash,
		ContentSize: p.ContentSize,
		Valid:       true,
		CreatedAt:   now,
		UpdatedAt:   now,
		Index: IndexState{
			SchemaVersion: 1,
			IsStale:       true,
		},
	}
	d.appendReindex(event.ReasonCreated, now)
	return d
}

// Rename changes the document title. A rename to the current title is a
// no-op.
func (d *Document) Rename(title string) {
	if title == d.Title {
		return
	}
	d.Title = title
	d.markStale(event.ReasonMetadataChanged)
}

// SetAuthor changes the document author.
func (d *Document) SetAuthor(author string) {
	if author == d.Author {
		return
	}
	d.Author = author
	d.markStale(event.ReasonMetadataChanged)
}

// SetFileName changes the stored file name.
func (d *Document) SetFileName(fileName string) {
	if fileName == d.FileName {
		return
	}
	d.FileName = fileName
	d.markStale(event.ReasonMetadataChanged)
}

// SetKeywords replaces the keyword list.
func (d *Document) SetKeywords(keywords []string) {
	if slices.Equal(keywords, d.Keywords) {
		return
	}
	d.Keywords = slices.Clone(keywords)
	d.markStale(event.ReasonMetadataChanged)
}

// ReplaceContent points the document at new content.
func (d *Document) ReplaceContent(contentHash string, contentSize int64) {
	if contentHash == d.ContentHash && contentSize == d.ContentSize {
		return
	}
	d.ContentHash = contentHash
	d.ContentSize = contentSize
	d.markStale(event.ReasonContentChanged)
}

// SetValidity flips the document's validity flag.
func (d *Document) SetValidity(valid bool) {
	if valid == d.Valid {
		return
	}
	d.Valid = valid
	d.markStale(event.ReasonValidityChanged)
}

// BumpSchemaVersion raises the index schema version, forcing a reindex.
// A version at or below the current one is a no-op.
func (d *Document) BumpSchemaVersion(n int) {
	if n <= d.Index.SchemaVersion {
		return
	}
	d.Index.SchemaVersion = n
	d.markStale(event.ReasonSchemaUpgrade)
}

// RequestReindex marks the document stale on operator request, without
// changing any indexable field.
func (d *Document) RequestReindex() {
	d.markStale(event.ReasonManual)
}

// ConfirmIndexed records a successful index write: Stale goes to Fresh and
// the signature fields are stamped. The state machine records what it is
// told; rejecting a confirm that raced a newer mutation is the caller's
// optimistic check (compare the content hash captured before signing).
func (d *Document) ConfirmIndexed(schemaVersion int, when time.Time, analyzerVersion, tokenHash, title string) {
	d.Index.SchemaVersion = schemaVersion
	d.Index.IsStale = false
	d.Index.LastIndexedAt = when
	d.Index.IndexedContentHash = d.ContentHash
	d.Index.IndexedTitle = title
	d.Index.AnalyzerVersion = analyzerVersion
	d.Index.TokenHash = tokenHash
}

// TakeEvents drains the buffered events. The store calls this inside the
// transaction that persists the aggregate, so events are captured atomically
// with the write that produced them.
func (d *Document) TakeEvents() []event.Event {
	evs := d.events
	d.events = nil
	return evs
}

// PendingEvents returns the buffered events without draining them.
func (d *Document) PendingEvents() []event.Event {
	return slices.Clone(d.events)
}

// KeywordText returns the keyword list joined for tokenization.
func (d *Document) KeywordText() string {
	return strings.Join(d.Keywords, " ")
}

func (d *Document) markStale(reason event.Reason) {
	now := time.Now().UTC()
	d.Index.IsStale = true
	d.UpdatedAt = now
	d.appendReindex(reason, now)
}

func (d *Document) appendReindex(reason event.Reason, now time.Time) {
	d.events = append(d.events, event.ReindexRequested{
		DocumentID:    d.ID,
		Reason:        reason,
		ContentHash:   d.ContentHash,
		SchemaVersion: d.Index.SchemaVersion,
		RequestedAt:   now,
	})
}
