package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexwarden/internal/audit"
	"github.com/Aman-CERP/indexwarden/internal/config"
)

// TestIntegration_ConfigEditKicksScheduler covers the serve-mode reaction to
// an analyzer change: a config file edit flows through the watcher and kicks
// the audit scheduler, so drift introduced by the new analyzer is found long
// before the next scheduled run.
func TestIntegration_ConfigEditKicksScheduler(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(config.DataDir(root), 0o755))
	configPath := config.ProjectConfigPath(root)
	require.NoError(t, os.WriteFile(configPath,
		[]byte("analyzer:\n  profile: standard\n"), 0o644))

	p := newTestPipeline(t)

	rec := newCaptureRecorder()
	verifier := audit.NewVerifier(p.archive, p.auditArtifacts(), p.eval, p.archive,
		audit.WithRecorder(rec), audit.WithVerifierLogger(discardLogger()))
	sched := audit.NewScheduler(verifier, audit.SchedulerConfig{
		Interval:         24 * time.Hour,
		IterationTimeout: time.Minute,
	}, audit.WithSchedulerLogger(discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	// Given: the unjittered initial run has completed and the next regular
	// run is a day away
	select {
	case <-rec.runs:
	case <-time.After(10 * time.Second):
		t.Fatal("initial audit run never happened")
	}

	// And: a watcher forwarding config changes as kicks, the way serve does
	watcher, err := config.NewWatcher(root, 50*time.Millisecond, discardLogger())
	require.NoError(t, err)
	watcher.Start()
	t.Cleanup(watcher.Stop)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-watcher.Changes():
				sched.Kick()
			}
		}
	}()

	// When: the config file is rewritten
	require.NoError(t, os.WriteFile(configPath,
		[]byte("analyzer:\n  profile: standard\n  stemming: true\n"), 0o644))

	// Then: the edit reaches the scheduler as an early audit run
	select {
	case <-rec.runs:
	case <-time.After(10 * time.Second):
		t.Fatal("config edit did not trigger an audit run")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop on cancellation")
	}
}
