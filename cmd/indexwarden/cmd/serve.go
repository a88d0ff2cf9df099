package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/indexwarden/internal/async"
	"github.com/Aman-CERP/indexwarden/internal/audit"
	"github.com/Aman-CERP/indexwarden/internal/config"
	iwerrors "github.com/Aman-CERP/indexwarden/internal/errors"
	"github.com/Aman-CERP/indexwarden/internal/index"
	"github.com/Aman-CERP/indexwarden/internal/logging"
	"github.com/Aman-CERP/indexwarden/internal/metrics"
	"github.com/Aman-CERP/indexwarden/internal/outbox"
	"github.com/Aman-CERP/indexwarden/internal/output"
	"github.com/Aman-CERP/indexwarden/internal/preflight"
	"github.com/Aman-CERP/indexwarden/internal/profiling"
	"github.com/Aman-CERP/indexwarden/internal/telemetry"
)

// shutdownGrace is how long serve waits for the pipeline workers to drain
// after a stop signal before dumping diagnostics for the stall.
const shutdownGrace = 15 * time.Second

func newServeCmd() *cobra.Command {
	var detach bool
	var stop bool
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the warden daemon for the current archive",
		Long: `Serve runs the consistency pipeline: the outbox dispatcher delivers
reindex events to the index artifacts, and the audit scheduler periodically
verifies the indexes against the archive, repairing when configured.

The warden holds the archive lock for its lifetime, so only one runs per
archive. While it runs, SIGUSR1 pauses dispatching and auditing, SIGUSR2
resumes, and edits to .indexwarden/config.yml schedule an early audit sweep.

Examples:
  indexwarden serve             # Run in the foreground
  indexwarden serve --detach    # Run in the background
  indexwarden serve --stop      # Stop a background warden`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if stop {
				return runServeStop(cmd)
			}
			if detach {
				return runServeDetach(cmd)
			}
			return runServe(cmd, metricsAddr)
		},
	}

	cmd.Flags().BoolVar(&detach, "detach", false, "Run the warden in the background")
	cmd.Flags().BoolVar(&stop, "stop", false, "Stop a background warden")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, metricsAddr string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := output.New(cmd.OutOrStdout())

	root, err := config.FindArchiveRoot(".")
	if err != nil {
		return err
	}
	dataDir := config.DataDir(root)

	// Preflight gate: cheap, cached, and only fatal on critical failures.
	if preflight.NeedsCheck(dataDir) {
		checker := preflight.New(preflight.WithOutput(io.Discard))
		results := checker.RunAll(ctx, root)
		if checker.HasCriticalFailures(results) {
			return fmt.Errorf("system check failed (run 'indexwarden doctor' for details)")
		}
		if err := preflight.MarkPassed(dataDir); err != nil {
			slog.Debug("failed to record preflight pass", slog.String("error", err.Error()))
		}
	}

	p, err := openPipelineAt(root, pipelineOptions{lock: true, artifacts: true})
	if err != nil {
		return err
	}
	defer p.Close()

	logger, logCleanup := setupServeLogging(p.Cfg)
	defer logCleanup()

	pf := async.NewPIDFile(config.PIDPath(root))
	if err := pf.Write(); err != nil {
		logger.Warn("failed to write pid file", slog.String("error", err.Error()))
	}
	defer func() {
		if err := pf.Remove(); err != nil {
			logger.Warn("failed to remove pid file", slog.String("error", err.Error()))
		}
	}()

	// Pipeline wiring: archive -> dispatcher -> guarded consumer -> artifacts,
	// with the audit loop reconciling behind it.
	gate := async.NewGate()
	consumer := index.NewConsumer(p.Archive, p.Artifacts, p.Calc, p.Eval,
		index.WithConsumerLogger(logger))
	breaker := iwerrors.NewCircuitBreaker("index-artifacts")
	dispatcher := outbox.NewDispatcher(p.Archive, outbox.NewGuardedPublisher(consumer, breaker),
		outbox.Config{
			PollInterval:   p.Cfg.Outbox.DispatchIntervalDuration(),
			BatchSize:      p.Cfg.Outbox.MaxBatchSize,
			MaxAttempts:    p.Cfg.Outbox.MaxAttempts,
			InitialBackoff: p.Cfg.Outbox.InitialBackoffDuration(),
			MaxBackoff:     p.Cfg.Outbox.MaxBackoffDuration(),
		},
		outbox.WithGate(gate), outbox.WithLogger(logger))

	history, err := telemetry.NewHistoryStore(p.Archive.DB())
	if err != nil {
		return fmt.Errorf("failed to open audit history: %w", err)
	}

	auditArtifacts := make([]audit.Artifact, 0, len(p.Artifacts))
	for _, a := range p.Artifacts {
		auditArtifacts = append(auditArtifacts, a)
	}
	verifier := audit.NewVerifier(p.Archive, auditArtifacts, p.Eval, p.Archive,
		audit.WithRecorder(history),
		audit.WithVerifierGate(gate),
		audit.WithVerifierLogger(logger))
	scheduler := audit.NewScheduler(verifier, audit.SchedulerConfig{
		Interval:         p.Cfg.Audit.IntervalDuration(),
		MinInterval:      p.Cfg.Audit.MinIntervalDuration(),
		IterationTimeout: p.Cfg.Audit.IterationTimeoutDuration(),
		JitterFraction:   p.Cfg.Audit.Jitter,
		Repair:           p.Cfg.Audit.Repair,
	}, audit.WithSchedulerGate(gate), audit.WithSchedulerLogger(logger))

	// Config edits get picked up on the next daemon start; what a running
	// warden reacts to is the analyzer possibly having changed, by
	// scheduling an early audit sweep.
	watcher, err := config.NewWatcher(root, 0, logger)
	if err != nil {
		logger.Warn("config watch unavailable", slog.String("error", err.Error()))
		watcher = nil
	} else {
		watcher.Start()
		defer watcher.Stop()
	}

	addr := metricsAddr
	if addr == "" && p.Cfg.Metrics.Enabled {
		addr = p.Cfg.Metrics.ListenAddr
	}
	var metricsSrv *http.Server
	if addr != "" {
		metrics.RegisterPipelineMetrics()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}

	// SIGUSR1 pauses the pipeline, SIGUSR2 resumes it. Useful around bulk
	// imports when index churn should wait.
	pauseCh := make(chan os.Signal, 1)
	signal.Notify(pauseCh, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(pauseCh)
	go func() {
		for sig := range pauseCh {
			switch sig {
			case syscall.SIGUSR1:
				gate.Pause()
				logger.Info("pipeline paused (SIGUSR1)")
			case syscall.SIGUSR2:
				gate.Resume()
				logger.Info("pipeline resumed (SIGUSR2)")
			}
		}
	}()

	out.Status("🛡️", fmt.Sprintf("Warden running for %s", root))
	out.Status("", fmt.Sprintf("Audit every %s (repair: %v)", p.Cfg.Audit.IntervalDuration(), p.Cfg.Audit.Repair))
	if addr != "" {
		out.Status("", fmt.Sprintf("Metrics: http://%s/metrics", addr))
	}
	out.Status("", "Press Ctrl+C to stop")
	out.Newline()

	logger.Info("warden_started",
		slog.String("root", root),
		slog.Int("pid", os.Getpid()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error {
		return processQueueLoop(gctx, consumer, gate,
			p.Cfg.Outbox.MaxBatchSize, p.Cfg.Outbox.DispatchIntervalDuration(), logger)
	})
	if watcher != nil {
		changes := watcher.Changes()
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case _, ok := <-changes:
					if !ok {
						return nil
					}
					logger.Info("config change detected, scheduling audit sweep")
					scheduler.Kick()
				}
			}
		})
	}
	if metricsSrv != nil {
		g.Go(func() error {
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	// Watchdog: a stop signal that does not finish within the grace period
	// leaves heap and goroutine dumps behind for the post-mortem.
	waitDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		timer := time.NewTimer(shutdownGrace)
		defer timer.Stop()
		select {
		case <-waitDone:
		case <-timer.C:
			bundle, derr := profiling.DumpDiagnostics(dataDir)
			if derr != nil {
				logger.Error("shutdown stalled and diagnostics dump failed", slog.String("error", derr.Error()))
				return
			}
			logger.Error("shutdown stalled, diagnostics dumped", slog.String("bundle", bundle))
		}
	}()

	err = g.Wait()
	close(waitDone)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("warden_failed", slog.String("error", err.Error()))
		return err
	}

	logger.Info("warden_stopped")
	out.Success("Warden stopped")
	return nil
}

// setupServeLogging switches the daemon onto the archive's configured log
// file. Failures fall back to the inherited default logger; a daemon that
// cannot log to file should still run.
func setupServeLogging(cfg *config.Config) (*slog.Logger, func()) {
	logCfg := logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.FilePath,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: true,
	}
	if logCfg.FilePath == "" {
		logCfg.FilePath = logging.DefaultLogPath()
	}
	if debugMode {
		logCfg.Level = "debug"
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		slog.Warn("failed to setup file logging", slog.String("error", err.Error()))
		return slog.Default(), func() {}
	}
	slog.SetDefault(logger)
	return logger, cleanup
}

func runServeDetach(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())

	root, err := config.FindArchiveRoot(".")
	if err != nil {
		return err
	}

	pf := async.NewPIDFile(config.PIDPath(root))
	if pf.IsRunning() {
		out.Status("", "Warden is already running")
		return nil
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	bg := exec.Command(execPath, "serve")
	bg.Dir = root
	bg.Stdout = nil
	bg.Stderr = nil
	bg.Stdin = nil
	bg.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := bg.Start(); err != nil {
		return fmt.Errorf("failed to start warden: %w", err)
	}

	// Reap the child and catch early exits; the pid file appearing is the
	// readiness signal.
	done := make(chan error, 1)
	go func() { done <- bg.Wait() }()

	for i := 0; i < 30; i++ {
		select {
		case err := <-done:
			if err != nil {
				return fmt.Errorf("warden exited during startup: %w", err)
			}
			return fmt.Errorf("warden exited during startup")
		default:
		}

		time.Sleep(200 * time.Millisecond)
		if pf.IsRunning() {
			out.Success(fmt.Sprintf("Warden started (pid: %d)", bg.Process.Pid))
			out.Status("", fmt.Sprintf("Logs: %s", logging.DefaultLogPath()))
			out.Status("", "Stop with 'indexwarden serve --stop'")
			return nil
		}
	}

	return fmt.Errorf("warden failed to start within timeout")
}

func runServeStop(cmd *cobra.Command) error {
	out := output.New(cmd.OutOrStdout())

	root, err := config.FindArchiveRoot(".")
	if err != nil {
		return err
	}

	pf := async.NewPIDFile(config.PIDPath(root))
	if !pf.IsRunning() {
		out.Status("", "Warden is not running")
		return nil
	}

	pid, err := pf.Read()
	if err != nil {
		return fmt.Errorf("failed to read pid: %w", err)
	}

	if err := pf.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop warden: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !pf.IsRunning() {
			out.Success(fmt.Sprintf("Warden stopped (was pid: %d)", pid))
			return nil
		}
	}

	out.Status("", "Warden not responding, sending SIGKILL...")
	if err := pf.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to kill warden: %w", err)
	}

	out.Success("Warden killed")
	return nil
}
