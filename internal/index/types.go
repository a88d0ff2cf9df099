// Package index hosts the physical search-index artifacts (the bleve token
// index and the SQLite trigram index) and the consumer that applies outbox
// events to them. Artifacts are derived data: they can always be rebuilt
// from the archive, which is why corruption handling here clears and
// recreates rather than failing the way the primary store does.
package index

import (
	"context"

	"github.com/Aman-CERP/indexwarden/internal/document"
)

// SchemaVersion is the index schema generation the artifacts currently
// write. Confirmations stamp it onto documents; the audit treats any
// document stamped with an older generation as drifted. Bump it when the
// shape of what the artifacts store changes and a full reindex is needed.
const SchemaVersion = 1

// Record is the indexable projection of a document. Both artifacts consume
// the same record; each applies its own analysis.
type Record struct {
	DocumentID string
	Title      string
	Author     string
	FileName   string
	Keywords   string
}

// RecordFor projects a document into its indexable fields.
func RecordFor(d *document.Document) Record {
	return Record{
		DocumentID: d.ID,
		Title:      d.Title,
		Author:     d.Author,
		FileName:   d.FileName,
		Keywords:   d.KeywordText(),
	}
}

// Artifact is one physical search index. Index replaces any existing entry
// for the document; Delete of an absent id is a no-op. Both must be
// idempotent — delivery is at-least-once and the audit may schedule a
// document that a racing delivery already handled.
type Artifact interface {
	Name() string
	Index(ctx context.Context, rec Record) error
	Delete(ctx context.Context, documentID string) error
	AllIDs(ctx context.Context) (map[string]struct{}, error)
	Close() error
}
