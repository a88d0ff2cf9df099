package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexwarden/internal/async"
	"github.com/Aman-CERP/indexwarden/internal/config"
	"github.com/Aman-CERP/indexwarden/internal/index"
	"github.com/Aman-CERP/indexwarden/internal/telemetry"
	"github.com/Aman-CERP/indexwarden/internal/ui"
)

// statusAuditHistory is how many recent audit runs status displays.
const statusAuditHistory = 20

func newStatusCmd() *cobra.Command {
	var jsonOutput bool
	var noColor bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show archive and pipeline health",
		Long: `Status reports the archive population, the reindex backlog (outbox and
repair queue), storage sizes, recent audit outcomes, and whether a warden
daemon is running.`,
		Example: `  indexwarden status
  indexwarden status --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, jsonOutput, noColor)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	return cmd
}

func runStatus(cmd *cobra.Command, jsonOutput, noColor bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	p, err := openPipeline(pipelineOptions{})
	if err != nil {
		return err
	}
	defer p.Close()

	info, err := collectStatus(ctx, p)
	if err != nil {
		return err
	}

	renderer := ui.NewStatusRenderer(cmd.OutOrStdout(), noColor || ui.DetectNoColor())
	if jsonOutput {
		return renderer.RenderJSON(info)
	}
	return renderer.Render(info)
}

func collectStatus(ctx context.Context, p *pipeline) (ui.StatusInfo, error) {
	stats, err := p.Archive.Stats(ctx, p.Cfg.Outbox.MaxAttempts)
	if err != nil {
		return ui.StatusInfo{}, err
	}

	info := ui.StatusInfo{
		ArchivePath:     p.Root,
		Documents:       stats.Documents,
		StaleDocuments:  stats.Stale,
		SchemaVersion:   index.SchemaVersion,
		AnalyzerVersion: p.Calc.AnalyzerVersion(),
		OutboxPending:   stats.OutboxPending,
		OutboxExhausted: stats.OutboxExhausted,
		QueueDepth:      stats.QueueDepth,
		ArchiveSize:     getFileSize(config.ArchiveDBPath(p.Root)),
		TokenSize:       getDirSize(config.TokenIndexPath(p.Root)),
		TrigramSize:     getFileSize(config.TrigramDBPath(p.Root)),
		DaemonStatus:    daemonStatus(p.Root),
	}
	info.TotalSize = info.ArchiveSize + info.TokenSize + info.TrigramSize

	if history, err := telemetry.NewHistoryStore(p.Archive.DB()); err == nil {
		if runs, err := history.RecentAuditRuns(ctx, statusAuditHistory); err == nil {
			// Newest-first from the store; status shows oldest first.
			for i := len(runs) - 1; i >= 0; i-- {
				run := runs[i]
				info.AuditRuns = append(info.AuditRuns, ui.AuditRunInfo{
					StartedAt: run.StartedAt,
					Duration:  run.Duration,
					Outcome:   string(run.Outcome()),
					Findings:  run.Findings(),
					Repaired:  run.Repaired,
				})
			}
		}
	}

	return info, nil
}

// daemonStatus reports whether a warden owns this archive right now.
func daemonStatus(root string) string {
	if async.NewPIDFile(config.PIDPath(root)).IsRunning() {
		return "running"
	}
	return "stopped"
}

// getFileSize returns the size of a file in bytes.
func getFileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// getDirSize returns the total size of all files in a directory.
func getDirSize(path string) int64 {
	var size int64

	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip errors
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})

	return size
}
