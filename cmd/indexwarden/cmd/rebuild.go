package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexwarden/internal/async"
	"github.com/Aman-CERP/indexwarden/internal/config"
	"github.com/Aman-CERP/indexwarden/internal/index"
	"github.com/Aman-CERP/indexwarden/internal/output"
	"github.com/Aman-CERP/indexwarden/internal/ui"
)

func newRebuildCmd() *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild every index artifact from the archive",
		Long: `Rebuild rewrites every document into every index artifact, restamps
freshness, and sweeps index entries whose document no longer exists. It is
the recovery path after corruption, a schema bump, or an analyzer change —
regular drift is cheaper to fix with 'indexwarden audit --repair'.

The rebuild needs the archive lock, so stop 'indexwarden serve' first.
Documents mutated while the rebuild runs stay stale and are picked up by
their own outbox events afterwards.`,
		Example: `  indexwarden rebuild
  indexwarden rebuild --plain   # No progress UI (for scripts and CI)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRebuild(cmd, plain)
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Plain text progress output")

	return cmd
}

func runRebuild(cmd *cobra.Command, plain bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := output.New(cmd.OutOrStdout())

	p, err := openPipeline(pipelineOptions{lock: true, artifacts: true})
	if err != nil {
		return err
	}
	defer p.Close()

	dataDir := config.DataDir(p.Root)
	if async.HasIncompleteRebuild(dataDir) {
		out.Warning("A previous rebuild was interrupted; starting over")
	}

	rebuilder := index.NewRebuilder(p.Archive, p.Artifacts, p.Calc, index.SchemaVersion, slog.Default())
	bg := async.NewBackgroundRebuild(async.RebuilderConfig{DataDir: dataDir})
	bg.RebuildFunc = rebuilder.Rebuild

	uiCfg := ui.NewConfig(cmd.OutOrStdout(), ui.WithForcePlain(plain), ui.WithArchiveDir(dataDir))
	renderer := ui.NewRenderer(uiCfg)
	if err := renderer.Start(ctx); err != nil {
		// Fall back to basic output if the renderer fails to start
		slog.Warn("failed to start progress renderer", slog.String("error", err.Error()))
	}
	defer func() { _ = renderer.Stop() }()

	start := time.Now()
	bg.Start(ctx)

	done := make(chan error, 1)
	go func() { done <- bg.Wait() }()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			snap := bg.Progress().Snapshot()
			if err != nil {
				renderer.AddError(ui.ErrorEvent{Err: err})
				return fmt.Errorf("rebuild failed: %w", err)
			}
			renderer.Complete(ui.CompletionStats{
				Documents:       snap.DocumentsTotal,
				Orphans:         snap.OrphansSwept,
				Duration:        time.Since(start),
				AnalyzerVersion: p.Calc.AnalyzerVersion(),
			})
			return nil
		case <-ticker.C:
			renderer.UpdateProgress(progressEvent(bg.Progress().Snapshot()))
		}
	}
}

// progressEvent maps a rebuild snapshot onto the display event for its
// stage. Scanning has no meaningful total; sweeping counts orphans rather
// than documents.
func progressEvent(snap async.RebuildProgressSnapshot) ui.ProgressEvent {
	ev := ui.ProgressEvent{
		Stage:   ui.StageFromRebuild(snap.Stage),
		Current: snap.DocumentsProcessed,
		Total:   snap.DocumentsTotal,
	}
	switch snap.Stage {
	case string(async.StageScanning):
		ev.Message = "Enumerating documents"
		ev.Current, ev.Total = 0, 0
	case string(async.StageSweeping):
		ev.Current, ev.Total = snap.OrphansSwept, snap.OrphansTotal
		ev.Message = "Sweeping orphaned index entries"
	}
	return ev
}
