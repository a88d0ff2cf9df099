// Package ui provides terminal UI components for rebuild progress and
// archive status display.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage represents a rebuild stage.
type Stage int

const (
	// StageScanning is the document enumeration stage.
	StageScanning Stage = iota
	// StageIndexing is the artifact write stage.
	StageIndexing
	// StageConfirming is the freshness stamping stage.
	StageConfirming
	// StageSweeping is the orphan sweep stage.
	StageSweeping
	// StageComplete indicates the rebuild is complete.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageScanning:
		return "Scanning"
	case StageIndexing:
		return "Indexing"
	case StageConfirming:
		return "Confirming"
	case StageSweeping:
		return "Sweeping"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage icon for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageScanning:
		return "SCAN"
	case StageIndexing:
		return "INDEX"
	case StageConfirming:
		return "STAMP"
	case StageSweeping:
		return "SWEEP"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// StageFromRebuild maps a rebuild progress snapshot's stage string to a
// display stage.
func StageFromRebuild(stage string) Stage {
	switch stage {
	case "scanning":
		return StageScanning
	case "indexing":
		return StageIndexing
	case "confirming":
		return StageConfirming
	case "sweeping":
		return StageSweeping
	default:
		return StageScanning
	}
}

// ProgressEvent represents a progress update.
type ProgressEvent struct {
	Stage           Stage
	Current         int
	Total           int
	CurrentDocument string
	Message         string
}

// ErrorEvent represents an error during processing.
type ErrorEvent struct {
	Document string
	Err      error
	IsWarn   bool
}

// StageTimings tracks duration for each rebuild stage.
type StageTimings struct {
	Scan    time.Duration // Document enumeration
	Index   time.Duration // Artifact writes
	Confirm time.Duration // Freshness stamping
	Sweep   time.Duration // Orphan sweep
}

// CompletionStats contains final rebuild statistics.
type CompletionStats struct {
	Documents       int
	Orphans         int // Orphaned index entries swept
	Raced           int // Confirms lost to concurrent mutations
	Duration        time.Duration
	Errors          int
	Warnings        int
	Stages          StageTimings
	AnalyzerVersion string
}

// Renderer defines the interface for progress display.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates progress display.
	UpdateProgress(event ProgressEvent)

	// AddError adds an error to display.
	AddError(event ErrorEvent)

	// Complete marks rendering as complete with summary.
	Complete(stats CompletionStats)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	ArchiveDir string // Archive directory path to display in header
}

// ConfigOption is a function that modifies Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithArchiveDir sets the archive directory path to display in header.
func WithArchiveDir(dir string) ConfigOption {
	return func(c *Config) {
		c.ArchiveDir = dir
	}
}

// NewConfig creates a new Config with the given output and options.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{
		Output: output,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

// NewRenderer creates an appropriate renderer based on config and environment.
// It returns a TUI renderer for interactive terminals, and a plain text
// renderer for CI environments, pipes, or when --plain is specified.
func NewRenderer(cfg Config) Renderer {
	// Force plain mode if requested
	if cfg.ForcePlain {
		return NewPlainRenderer(cfg)
	}

	// Use plain mode for non-TTY outputs
	if !IsTTY(cfg.Output) {
		return NewPlainRenderer(cfg)
	}

	// Use plain mode in CI environments
	if DetectCI() {
		return NewPlainRenderer(cfg)
	}

	// Try TUI mode, fall back to plain on failure
	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}

	return tui
}

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}

	// Check if it's a file that's a terminal
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	return false
}

// DetectNoColor checks if NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
