package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	iwerrors "github.com/Aman-CERP/indexwarden/internal/errors"
	"github.com/Aman-CERP/indexwarden/internal/index"
	"github.com/Aman-CERP/indexwarden/internal/outbox"
	"github.com/Aman-CERP/indexwarden/internal/output"
)

func newOutboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and manage the reindex outbox",
		Long: `The outbox records every reindex event a document mutation produced,
in the same transaction as the mutation itself. The dispatcher delivers
entries to the index artifacts with retries and backoff; entries that fail
too often are retained but no longer tried.

Commands:
  list    Show pending and exhausted entries
  retry   Give exhausted entries a fresh attempt budget
  drain   Deliver everything deliverable right now`,
	}

	cmd.AddCommand(newOutboxListCmd())
	cmd.AddCommand(newOutboxRetryCmd())
	cmd.AddCommand(newOutboxDrainCmd())

	return cmd
}

func newOutboxListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show pending and exhausted outbox entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutboxList(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newOutboxRetryCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "retry [entry-id...]",
		Short: "Reset the attempt budget of exhausted entries",
		Long: `Retry zeroes the attempt counter of exhausted outbox entries so the
dispatcher picks them up again. Pass entry ids from 'outbox list', or --all
for every exhausted entry. Fix the underlying failure first; otherwise the
entries just exhaust again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutboxRetry(cmd, args, all)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Retry every exhausted entry")
	return cmd
}

func newOutboxDrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Deliver every ready outbox entry now",
		Long: `Drain runs dispatch cycles until nothing deliverable remains. Entries
still inside their backoff window are left for later; use the daemon for
continuous delivery. Drain needs the archive lock, so stop 'indexwarden
serve' first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOutboxDrain(cmd)
		},
	}
}

// outboxEntryInfo is the list --json row.
type outboxEntryInfo struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
}

func runOutboxList(cmd *cobra.Command, jsonOutput bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := output.New(cmd.OutOrStdout())

	p, err := openPipeline(pipelineOptions{})
	if err != nil {
		return err
	}
	defer p.Close()

	maxAttempts := p.Cfg.Outbox.MaxAttempts
	pending, err := p.Archive.PendingCount(ctx, maxAttempts)
	if err != nil {
		return err
	}
	exhausted, err := p.Archive.ExhaustedEntries(ctx, maxAttempts)
	if err != nil {
		return err
	}

	if jsonOutput {
		rows := make([]outboxEntryInfo, 0, len(exhausted))
		for _, e := range exhausted {
			rows = append(rows, outboxEntryInfo{
				ID:        e.ID.String(),
				Kind:      e.Kind,
				CreatedAt: e.CreatedAt,
				Attempts:  e.Attempts,
				LastError: e.LastError,
			})
		}
		return out.JSON(struct {
			Pending   int               `json:"pending"`
			Exhausted []outboxEntryInfo `json:"exhausted"`
		}{Pending: pending, Exhausted: rows})
	}

	out.Detail("Pending", fmt.Sprintf("%d", pending))
	out.Detail("Exhausted", fmt.Sprintf("%d", len(exhausted)))

	if len(exhausted) > 0 {
		out.Newline()
		out.Warning(fmt.Sprintf("%d entries gave up after %d attempts:", len(exhausted), maxAttempts))
		for _, e := range exhausted {
			out.Status("", fmt.Sprintf("  %s  %-18s %s", e.ID, e.Kind, e.LastError))
		}
		out.Newline()
		out.Status("", "Run 'indexwarden outbox retry --all' after fixing the cause")
	}
	return nil
}

func runOutboxRetry(cmd *cobra.Command, args []string, all bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := output.New(cmd.OutOrStdout())

	if !all && len(args) == 0 {
		return fmt.Errorf("pass entry ids or --all")
	}

	p, err := openPipeline(pipelineOptions{})
	if err != nil {
		return err
	}
	defer p.Close()

	var ids []uuid.UUID
	if all {
		exhausted, err := p.Archive.ExhaustedEntries(ctx, p.Cfg.Outbox.MaxAttempts)
		if err != nil {
			return err
		}
		for _, e := range exhausted {
			ids = append(ids, e.ID)
		}
	} else {
		for _, arg := range args {
			id, err := uuid.Parse(arg)
			if err != nil {
				return fmt.Errorf("invalid entry id %q: %w", arg, err)
			}
			ids = append(ids, id)
		}
	}

	if len(ids) == 0 {
		out.Status("", "No exhausted entries to retry")
		return nil
	}

	n, err := p.Archive.ResetAttempts(ctx, ids)
	if err != nil {
		return err
	}
	out.Success(fmt.Sprintf("Reset %d entries; the dispatcher will retry them", n))
	return nil
}

func runOutboxDrain(cmd *cobra.Command) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := output.New(cmd.OutOrStdout())

	p, err := openPipeline(pipelineOptions{lock: true, artifacts: true})
	if err != nil {
		return err
	}
	defer p.Close()

	consumer := index.NewConsumer(p.Archive, p.Artifacts, p.Calc, p.Eval)
	breaker := iwerrors.NewCircuitBreaker("index-artifacts")
	dispatcher := outbox.NewDispatcher(p.Archive, outbox.NewGuardedPublisher(consumer, breaker),
		outbox.Config{
			PollInterval:   p.Cfg.Outbox.DispatchIntervalDuration(),
			BatchSize:      p.Cfg.Outbox.MaxBatchSize,
			MaxAttempts:    p.Cfg.Outbox.MaxAttempts,
			InitialBackoff: p.Cfg.Outbox.InitialBackoffDuration(),
			MaxBackoff:     p.Cfg.Outbox.MaxBackoffDuration(),
		})

	pending, err := p.Archive.PendingCount(ctx, p.Cfg.Outbox.MaxAttempts)
	if err != nil {
		return err
	}
	if pending == 0 {
		out.Success("Outbox is empty")
		return nil
	}

	out.Status("📤", fmt.Sprintf("Draining %d pending entries...", pending))

	total := 0
	for {
		delivered, err := dispatcher.RunOnce(ctx)
		total += delivered
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			return fmt.Errorf("drain stopped after %d deliveries: %w", total, err)
		}
		if delivered == 0 {
			break
		}
		out.Progress(total, pending, "delivered")
	}

	remaining, err := p.Archive.PendingCount(ctx, p.Cfg.Outbox.MaxAttempts)
	if err != nil {
		return err
	}
	if remaining > 0 {
		out.Success(fmt.Sprintf("Delivered %d entries", total))
		out.Status("", fmt.Sprintf("%d entries remain (inside their retry backoff)", remaining))
	} else {
		out.Success(fmt.Sprintf("Delivered %d entries; outbox is empty", total))
	}
	return nil
}
