package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexwarden/internal/audit"
	"github.com/Aman-CERP/indexwarden/internal/config"
	"github.com/Aman-CERP/indexwarden/internal/index"
	"github.com/Aman-CERP/indexwarden/internal/output"
	"github.com/Aman-CERP/indexwarden/internal/telemetry"
)

func newAuditCmd() *cobra.Command {
	var repair bool
	var jsonOutput bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Verify the indexes against the archive",
		Long: `Audit compares every archive document against the index artifacts and
classifies each divergence:

  missing   in the archive, absent from at least one index
  drift     indexed everywhere, but under a stale analyzer or schema
  extra     in an index with no archive document (reported, never deleted)

With --repair, missing and drifted documents are queued for reindexing; the
daemon or 'indexwarden worker' processes the queue.

A running 'indexwarden serve' owns the token index, so a CLI audit beside it
may degrade: per-index comparison is skipped and only analyzer drift is
checked. The daemon audits on its own schedule; this command is for one-off
checks.

Examples:
  indexwarden audit             # Report inconsistencies
  indexwarden audit --repair    # Report and queue repairs
  indexwarden audit --json      # Machine-readable report`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAudit(cmd, repair, jsonOutput, verbose)
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "Queue missing and drifted documents for reindex")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List affected document ids")

	return cmd
}

// auditReport is the --json shape of one audit run.
type auditReport struct {
	Scanned  int      `json:"scanned"`
	Missing  []string `json:"missing"`
	Drift    []string `json:"drift"`
	Extra    []string `json:"extra"`
	Degraded bool     `json:"degraded"`
	Repaired int      `json:"repaired"`
	Clean    bool     `json:"clean"`
}

func runAudit(cmd *cobra.Command, repair, jsonOutput, verbose bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := output.New(cmd.OutOrStdout())

	// No lock and no held artifacts: the audit opens each index only while
	// reading its ids, and degrades if the daemon has one open.
	p, err := openPipeline(pipelineOptions{})
	if err != nil {
		return err
	}
	defer p.Close()

	artifacts := []audit.Artifact{
		&lazyArtifact{name: "token", open: func() (index.Artifact, error) {
			return index.NewTokenArtifact(config.TokenIndexPath(p.Root))
		}},
		&lazyArtifact{name: "trigram", open: func() (index.Artifact, error) {
			return index.NewTrigramArtifact(config.TrigramDBPath(p.Root))
		}},
	}

	history, err := telemetry.NewHistoryStore(p.Archive.DB())
	if err != nil {
		return fmt.Errorf("failed to open audit history: %w", err)
	}

	verifier := audit.NewVerifier(p.Archive, artifacts, p.Eval, p.Archive,
		audit.WithRecorder(history))

	summary, repaired, err := verifier.RunOnce(ctx, repair)
	if err != nil {
		return fmt.Errorf("audit failed: %w", err)
	}

	if jsonOutput {
		return out.JSON(auditReport{
			Scanned:  summary.Scanned,
			Missing:  emptyNotNil(summary.Missing),
			Drift:    emptyNotNil(summary.Drift),
			Extra:    emptyNotNil(summary.Extra),
			Degraded: summary.Degraded,
			Repaired: repaired,
			Clean:    summary.Clean(),
		})
	}

	out.Status("🔍", fmt.Sprintf("Audited %d documents", summary.Scanned))
	if summary.Degraded {
		out.Warning("Audit degraded: an index could not be read (is 'indexwarden serve' running?)")
	}

	if summary.Clean() {
		out.Success("Indexes are consistent with the archive")
		return nil
	}

	out.Detail("Missing", strconv.Itoa(len(summary.Missing)))
	out.Detail("Drift", strconv.Itoa(len(summary.Drift)))
	out.Detail("Extra", strconv.Itoa(len(summary.Extra)))
	if verbose {
		printIDs(out, "Missing", summary.Missing)
		printIDs(out, "Drift", summary.Drift)
		printIDs(out, "Extra", summary.Extra)
	}

	if repair {
		out.Success(fmt.Sprintf("Queued %d documents for reindex", repaired))
		out.Status("", "Run 'indexwarden worker --once' to process the queue")
	} else if len(summary.Missing)+len(summary.Drift) > 0 {
		out.Status("", "Run 'indexwarden audit --repair' to queue fixes")
	}
	return nil
}

func printIDs(out *output.Writer, label string, ids []string) {
	if len(ids) == 0 {
		return
	}
	out.Newline()
	out.Status("", label+":")
	for _, id := range ids {
		out.Status("", "  "+id)
	}
}

// emptyNotNil keeps --json arrays as [] instead of null.
func emptyNotNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// lazyArtifact opens the underlying index only while its ids are read. A
// CLI audit must not hold the artifacts; when the daemon has one open the
// failed open degrades the audit instead of failing it.
type lazyArtifact struct {
	name string
	open func() (index.Artifact, error)
}

func (l *lazyArtifact) Name() string { return l.name }

func (l *lazyArtifact) AllIDs(ctx context.Context) (map[string]struct{}, error) {
	a, err := l.open()
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return a.AllIDs(ctx)
}
