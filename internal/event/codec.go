package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// payloadVersion is the current wire version for all event payloads.
// Decoders accept any version from 1 up to this value.
const payloadVersion = 1

// ErrUnknownKind is returned when decoding an event kind this build does not
// know about. The dispatcher treats it as a permanent per-entry failure.
var ErrUnknownKind = errors.New("unknown event kind")

type reindexRequestedPayload struct {
	Version       int    `json:"version"`
	DocumentID    string `json:"document_id"`
	Reason        string `json:"reason"`
	ContentHash   string `json:"content_hash,omitempty"`
	SchemaVersion int    `json:"schema_version"`
	RequestedAt   string `json:"requested_at"`
}

type documentDeletedPayload struct {
	Version    int    `json:"version"`
	DocumentID string `json:"document_id"`
	DeletedAt  string `json:"deleted_at"`
}

// Encode serializes an event into its kind tag and versioned JSON payload.
// The type switch is exhaustive over the closed union; a type outside it is
// a programming error and reported as one.
func Encode(ev Event) (kind string, payload []byte, err error) {
	switch e := ev.(type) {
	case ReindexRequested:
		if !e.Reason.Valid() {
			return "", nil, fmt.Errorf("encode %s: invalid reason %q", e.Kind(), e.Reason)
		}
		payload, err = json.Marshal(reindexRequestedPayload{
			Version:       payloadVersion,
			DocumentID:    e.DocumentID,
			Reason:        string(e.Reason),
			ContentHash:   e.ContentHash,
			SchemaVersion: e.SchemaVersion,
			RequestedAt:   e.RequestedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return "", nil, fmt.Errorf("encode %s: %w", e.Kind(), err)
		}
		return e.Kind(), payload, nil

	case DocumentDeleted:
		payload, err = json.Marshal(documentDeletedPayload{
			Version:    payloadVersion,
			DocumentID: e.DocumentID,
			DeletedAt:  e.DeletedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return "", nil, fmt.Errorf("encode %s: %w", e.Kind(), err)
		}
		return e.Kind(), payload, nil

	default:
		return "", nil, fmt.Errorf("encode: type %T is outside the event union", ev)
	}
}

// Decode deserializes a payload by kind. Unknown kinds, malformed JSON,
// unsupported payload versions, and missing document ids are all decode
// errors; callers classify them as permanent failures.
func Decode(kind string, payload []byte) (Event, error) {
	switch kind {
	case KindReindexRequested:
		var p reindexRequestedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		if err := checkPayload(kind, p.Version, p.DocumentID); err != nil {
			return nil, err
		}
		reason := Reason(p.Reason)
		if !reason.Valid() {
			return nil, fmt.Errorf("decode %s: invalid reason %q", kind, p.Reason)
		}
		requestedAt, err := parseTime(p.RequestedAt)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		return ReindexRequested{
			DocumentID:    p.DocumentID,
			Reason:        reason,
			ContentHash:   p.ContentHash,
			SchemaVersion: p.SchemaVersion,
			RequestedAt:   requestedAt,
		}, nil

	case KindDocumentDeleted:
		var p documentDeletedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		if err := checkPayload(kind, p.Version, p.DocumentID); err != nil {
			return nil, err
		}
		deletedAt, err := parseTime(p.DeletedAt)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
		return DocumentDeleted{
			DocumentID: p.DocumentID,
			DeletedAt:  deletedAt,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func checkPayload(kind string, version int, documentID string) error {
	if version < 1 || version > payloadVersion {
		return fmt.Errorf("decode %s: unsupported payload version %d", kind, version)
	}
	if documentID == "" {
		return fmt.Errorf("decode %s: missing document_id", kind)
	}
	return nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return ts, nil
}
