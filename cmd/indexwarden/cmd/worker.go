package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexwarden/internal/async"
	"github.com/Aman-CERP/indexwarden/internal/index"
	"github.com/Aman-CERP/indexwarden/internal/output"
)

func newWorkerCmd() *cobra.Command {
	var batchSize int
	var once bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process the repair queue",
		Long: `Worker drains the repair queue that audits fill: each queued document
is re-analyzed, rewritten into every index artifact, and confirmed.

The warden daemon runs this loop itself; the standalone worker exists for
archives without a daemon and for draining a backlog by hand. It needs the
archive lock, so stop 'indexwarden serve' first.

Examples:
  indexwarden worker          # Run until interrupted
  indexwarden worker --once   # Drain the queue and exit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd, batchSize, once)
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Documents per pass (default: outbox max_batch_size)")
	cmd.Flags().BoolVar(&once, "once", false, "Drain the queue and exit instead of looping")

	return cmd
}

func runWorker(cmd *cobra.Command, batchSize int, once bool) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := output.New(cmd.OutOrStdout())

	p, err := openPipeline(pipelineOptions{lock: true, artifacts: true})
	if err != nil {
		return err
	}
	defer p.Close()

	if batchSize <= 0 {
		batchSize = p.Cfg.Outbox.MaxBatchSize
	}

	consumer := index.NewConsumer(p.Archive, p.Artifacts, p.Calc, p.Eval)

	if once {
		total := 0
		for {
			n, err := consumer.ProcessQueue(ctx, batchSize)
			total += n
			if err != nil {
				return fmt.Errorf("queue processing failed after %d documents: %w", total, err)
			}
			if n == 0 {
				break
			}
		}
		out.Success(fmt.Sprintf("Processed %d queued documents", total))
		return nil
	}

	out.Status("🔁", fmt.Sprintf("Worker running for %s", p.Root))
	out.Status("", "Press Ctrl+C to stop")
	out.Newline()

	err = processQueueLoop(ctx, consumer, nil, batchSize, p.Cfg.Outbox.DispatchIntervalDuration(), slog.Default())
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	out.Success("Worker stopped")
	return nil
}

// processQueueLoop drains the repair queue until the context ends. Empty
// passes sleep the poll interval; productive ones loop immediately. Also
// runs inside the daemon, where the gate pauses it with the rest of the
// pipeline.
func processQueueLoop(ctx context.Context, consumer *index.Consumer, gate *async.Gate, batchSize int, interval time.Duration, logger *slog.Logger) error {
	for {
		n, err := consumer.ProcessQueue(ctx, batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("queue_processing_failed", slog.String("error", err.Error()))
			n = 0
		}

		wait := interval
		if n > 0 {
			wait = 0
		}
		if err := async.Wait(ctx, gate, wait); err != nil {
			return err
		}
	}
}
