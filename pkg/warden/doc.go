// Package warden is the embedding API for indexwarden archives.
//
// The indexwarden pipeline keeps search indexes consistent with a primary
// document archive. The pipeline processes (the serve daemon, the worker,
// the CLI) live in this repository; the documents come from somewhere else.
// This package is how that somewhere else talks to the archive: a Go
// program opens the archive, creates and mutates documents through the
// aggregate, and the running pipeline picks the changes up from the outbox.
//
// # Architecture
//
//	┌──────────────────┐        ┌───────────────────┐
//	│ Your application │        │ indexwarden serve │
//	│                  │        │  (daemon)         │
//	│   pkg/warden     │        │                   │
//	└────────┬─────────┘        └─────────┬─────────┘
//	         │ writes                    dispatches │
//	         ▼                              ▼
//	   ┌──────────────────────────────────────┐
//	   │       archive.db (+ outbox)          │
//	   └──────────────────────────────────────┘
//
// Writes land in the archive and the outbox in one transaction; the daemon
// delivers the buffered reindex requests to the index artifacts. An
// application never touches the artifacts directly.
//
// # Usage
//
// Open an archive and create a document:
//
//	w, err := warden.Open("/path/to/project")
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//
//	doc, err := w.CreateDocument(ctx, warden.NewParams{
//	    ID:          "doc-42",
//	    Title:       "Quarterly Report",
//	    Author:      "Finance Team",
//	    FileName:    "q3-report.pdf",
//	    Keywords:    []string{"finance", "quarterly"},
//	    ContentHash: contentHash,
//	    ContentSize: size,
//	})
//
// Mutate through the aggregate and save; the save marks the document stale
// and queues the reindex atomically:
//
//	doc.Rename("Q3 Financial Report")
//	err = w.SaveDocument(ctx, doc)
//
// Check consistency without stopping the daemon:
//
//	report, err := w.Audit(ctx, false)
//
// # Thread Safety
//
// A Warden is safe for concurrent use. Document aggregates are not: load,
// mutate, and save a document from one goroutine at a time.
package warden
