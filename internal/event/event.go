// Package event defines the domain events emitted by document aggregates
// and their wire encoding. The event set is closed: every kind is matched
// exhaustively at the serialization boundary, and new kinds are added by
// extending the union here.
package event

import (
	"time"
)

// Event kinds as persisted in the outbox `kind` column.
const (
	// KindReindexRequested asks indexing consumers to refresh a document.
	KindReindexRequested = "reindex_requested"
	// KindDocumentDeleted tells indexing consumers to drop a document.
	KindDocumentDeleted = "document_deleted"
)

// Reason tags why a reindex was requested.
type Reason string

const (
	// ReasonCreated marks a newly created document.
	ReasonCreated Reason = "created"
	// ReasonContentChanged marks a content replacement.
	ReasonContentChanged Reason = "content-changed"
	// ReasonMetadataChanged marks title/author/filename/keyword changes.
	ReasonMetadataChanged Reason = "metadata-changed"
	// ReasonValidityChanged marks a validity flip.
	ReasonValidityChanged Reason = "validity-changed"
	// ReasonSchemaUpgrade marks an index schema version bump.
	ReasonSchemaUpgrade Reason = "schema-upgrade"
	// ReasonManual marks an operator-requested reindex.
	ReasonManual Reason = "manual"
)

// Valid reports whether r is a known reason tag.
func (r Reason) Valid() bool {
	switch r {
	case ReasonCreated, ReasonContentChanged, ReasonMetadataChanged,
		ReasonValidityChanged, ReasonSchemaUpgrade, ReasonManual:
		return true
	default:
		return false
	}
}

// Event is the closed union of domain events. Only types in this package
// implement it.
type Event interface {
	// Kind returns the wire kind tag.
	Kind() string

	isEvent()
}

// ReindexRequested asks consumers to rebuild a document's index entries.
// ContentHash and SchemaVersion travel with the event so consumers can apply
// it idempotently, keyed on content rather than delivery identity.
type ReindexRequested struct {
	DocumentID    string
	Reason        Reason
	ContentHash   string
	SchemaVersion int
	RequestedAt   time.Time
}

// Kind implements Event.
func (ReindexRequested) Kind() string { return KindReindexRequested }

func (ReindexRequested) isEvent() {}

// DocumentDeleted tells consumers to remove a document from every index
// artifact.
type DocumentDeleted struct {
	DocumentID string
	DeletedAt  time.Time
}

// Kind implements Event.
func (DocumentDeleted) Kind() string { return KindDocumentDeleted }

func (DocumentDeleted) isEvent() {}
