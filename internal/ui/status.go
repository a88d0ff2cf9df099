package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// AuditRunInfo is one audit run as shown in status output, oldest runs
// first.
type AuditRunInfo struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Outcome   string        `json:"outcome"` // "clean", "findings", "degraded", "error"
	Findings  int           `json:"findings"`
	Repaired  int           `json:"repaired"`
}

// StatusInfo contains archive and pipeline health information.
type StatusInfo struct {
	// Archive stats
	ArchivePath     string `json:"archive_path"`
	Documents       int    `json:"documents"`
	StaleDocuments  int    `json:"stale_documents"`
	SchemaVersion   int    `json:"schema_version"`
	AnalyzerVersion string `json:"analyzer_version"`

	// Pipeline backlog
	OutboxPending   int `json:"outbox_pending"`
	OutboxExhausted int `json:"outbox_exhausted"`
	QueueDepth      int `json:"queue_depth"`

	// Storage sizes (in bytes)
	ArchiveSize int64 `json:"archive_size"`
	TokenSize   int64 `json:"token_size"`
	TrigramSize int64 `json:"trigram_size"`
	TotalSize   int64 `json:"total_size"`

	// Daemon status: "running", "stopped"
	DaemonStatus string `json:"daemon_status"`

	// Recent audit runs, oldest first
	AuditRuns []AuditRunInfo `json:"audit_runs,omitempty"`
}

// StatusRenderer displays archive status.
type StatusRenderer struct {
	out     io.Writer
	styles  Styles
	noColor bool
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:     out,
		styles:  GetStyles(noColor),
		noColor: noColor,
	}
}

// Render displays status info to terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	// Header
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Archive Status: "+info.ArchivePath))

	// Archive stats
	_, _ = fmt.Fprintf(r.out, "  Documents:  %d\n", info.Documents)
	_, _ = fmt.Fprintf(r.out, "  Stale:      %s\n", r.renderCount(info.StaleDocuments))
	_, _ = fmt.Fprintf(r.out, "  Schema:     v%d\n", info.SchemaVersion)
	if info.AnalyzerVersion != "" {
		_, _ = fmt.Fprintf(r.out, "  Analyzer:   %s\n", info.AnalyzerVersion)
	}
	_, _ = fmt.Fprintln(r.out)

	// Pipeline backlog
	_, _ = fmt.Fprintln(r.out, "  Outbox:")
	_, _ = fmt.Fprintf(r.out, "    Pending:   %d\n", info.OutboxPending)
	_, _ = fmt.Fprintf(r.out, "    Exhausted: %s\n", r.renderExhausted(info.OutboxExhausted))
	_, _ = fmt.Fprintf(r.out, "    Queued:    %d\n", info.QueueDepth)
	_, _ = fmt.Fprintln(r.out)

	// Storage sizes
	_, _ = fmt.Fprintln(r.out, "  Storage:")
	_, _ = fmt.Fprintf(r.out, "    Archive:   %s\n", FormatBytes(info.ArchiveSize))
	_, _ = fmt.Fprintf(r.out, "    Token:     %s\n", FormatBytes(info.TokenSize))
	_, _ = fmt.Fprintf(r.out, "    Trigram:   %s\n", FormatBytes(info.TrigramSize))
	_, _ = fmt.Fprintf(r.out, "    Total:     %s\n", FormatBytes(info.TotalSize))
	_, _ = fmt.Fprintln(r.out)

	// Audit history
	if len(info.AuditRuns) > 0 {
		last := info.AuditRuns[len(info.AuditRuns)-1]
		_, _ = fmt.Fprintln(r.out, "  Audit:")
		_, _ = fmt.Fprintf(r.out, "    Last run:  %s (%s)\n", r.renderStatus(last.Outcome), formatTime(last.StartedAt))
		if last.Findings > 0 {
			_, _ = fmt.Fprintf(r.out, "    Findings:  %d (%d repaired)\n", last.Findings, last.Repaired)
		}
		_, _ = fmt.Fprintf(r.out, "    Drift:     %s\n", r.styles.Sparkline.Render(r.findingsSparkline(info.AuditRuns)))
		_, _ = fmt.Fprintln(r.out)
	}

	// Daemon status
	if info.DaemonStatus != "" {
		_, _ = fmt.Fprintf(r.out, "  Daemon: %s\n", r.renderStatus(info.DaemonStatus))
	}

	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

// findingsSparkline renders the per-run findings counts, oldest first.
func (r *StatusRenderer) findingsSparkline(runs []AuditRunInfo) string {
	series := make([]float64, len(runs))
	for i, run := range runs {
		series[i] = float64(run.Findings)
	}
	return RenderSeries(series, 40)
}

// renderStatus formats a status string with color.
func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "running", "clean":
		return r.styles.Success.Render(status)
	case "stopped", "findings", "degraded":
		return r.styles.Warning.Render(status)
	case "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

// renderCount renders a count that is healthy at zero.
func (r *StatusRenderer) renderCount(n int) string {
	s := fmt.Sprintf("%d", n)
	if n > 0 {
		return r.styles.Warning.Render(s)
	}
	return s
}

// renderExhausted highlights exhausted outbox entries, which need operator
// attention (indexwarden outbox retry).
func (r *StatusRenderer) renderExhausted(n int) string {
	s := fmt.Sprintf("%d", n)
	if n > 0 {
		return r.styles.Error.Render(s)
	}
	return s
}

// formatTime formats a time for display.
func formatTime(t time.Time) string {
	now := time.Now()
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
