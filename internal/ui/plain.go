package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer outputs plain text progress (for CI/pipes).
type PlainRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	noColor bool
	stage   Stage
	errors  []ErrorEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{
		out:     cfg.Output,
		noColor: cfg.NoColor,
	}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stage = event.Stage

	// Format: [STAGE] current/total - message or document
	var msg string
	if event.Message != "" {
		msg = event.Message
	} else if event.CurrentDocument != "" {
		msg = event.CurrentDocument
	}

	if event.Total > 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	} else if msg != "" {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}

	if event.Document != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.Document, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d documents indexed, %d orphans swept in %s",
		stats.Documents, stats.Orphans, stats.Duration.Round(100*time.Millisecond))

	if stats.Errors > 0 || stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d errors, %d warnings)", stats.Errors, stats.Warnings)
	}

	_, _ = fmt.Fprintln(r.out)

	if stats.Raced > 0 {
		_, _ = fmt.Fprintf(r.out, "Note: %d confirms lost to concurrent writes (their own events will re-index)\n", stats.Raced)
	}

	// Show detailed stage breakdown if available
	if stats.Stages.Scan > 0 || stats.Stages.Index > 0 {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintln(r.out, "Stage Breakdown:")
		_, _ = fmt.Fprintf(r.out, "  Scan:    %s (documents enumerated)\n", stats.Stages.Scan.Round(100*time.Millisecond))
		if stats.Stages.Index > 0 && stats.Documents > 0 {
			docsPerSec := float64(stats.Documents) / stats.Stages.Index.Seconds()
			_, _ = fmt.Fprintf(r.out, "  Index:   %s (%d documents @ %.1f/sec)\n",
				stats.Stages.Index.Round(100*time.Millisecond), stats.Documents, docsPerSec)
		} else {
			_, _ = fmt.Fprintf(r.out, "  Index:   %s (artifacts written)\n", stats.Stages.Index.Round(100*time.Millisecond))
		}
		_, _ = fmt.Fprintf(r.out, "  Stamp:   %s (freshness confirmed)\n", stats.Stages.Confirm.Round(100*time.Millisecond))
		_, _ = fmt.Fprintf(r.out, "  Sweep:   %s (orphans removed)\n", stats.Stages.Sweep.Round(100*time.Millisecond))
	}

	// Show analyzer version if available
	if stats.AnalyzerVersion != "" {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintf(r.out, "Analyzer: %s\n", stats.AnalyzerVersion)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}
