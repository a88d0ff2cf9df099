package async

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackgroundRebuild(t *testing.T) {
	// Given: rebuilder config
	cfg := RebuilderConfig{
		DataDir: t.TempDir(),
	}

	// When: creating rebuilder
	rebuild := NewBackgroundRebuild(cfg)

	// Then: should be initialized correctly
	require.NotNil(t, rebuild)
	assert.NotNil(t, rebuild.Progress())
	assert.False(t, rebuild.IsRunning())
}

func TestBackgroundRebuild_Start_RunsInGoroutine(t *testing.T) {
	// Given: rebuilder with quick task
	cfg := RebuilderConfig{
		DataDir: t.TempDir(),
	}
	rebuild := NewBackgroundRebuild(cfg)

	var started atomic.Bool
	rebuild.RebuildFunc = func(ctx context.Context, progress *RebuildProgress) error {
		started.Store(true)
		return nil
	}

	// When: starting rebuild
	ctx := context.Background()
	rebuild.Start(ctx)

	// Then: should run in background
	assert.True(t, rebuild.IsRunning())

	// Wait for completion
	err := rebuild.Wait()
	require.NoError(t, err)
	assert.True(t, started.Load())
	assert.False(t, rebuild.IsRunning())
}

func TestBackgroundRebuild_Progress_UpdatesDuringRun(t *testing.T) {
	// Given: rebuilder that updates progress
	cfg := RebuilderConfig{
		DataDir: t.TempDir(),
	}
	rebuild := NewBackgroundRebuild(cfg)

	rebuild.RebuildFunc = func(ctx context.Context, progress *RebuildProgress) error {
		progress.SetStage(StageScanning, 100)
		progress.UpdateDocuments(50)
		time.Sleep(10 * time.Millisecond)
		progress.SetStage(StageIndexing, 100)
		progress.UpdateDocuments(100)
		return nil
	}

	// When: running rebuild
	ctx := context.Background()
	rebuild.Start(ctx)

	// Check progress during run
	time.Sleep(5 * time.Millisecond)
	assert.True(t, rebuild.IsRunning())

	// Wait for completion
	err := rebuild.Wait()
	require.NoError(t, err)

	// Then: final progress should show ready
	snap := rebuild.Progress().Snapshot()
	assert.Equal(t, "ready", snap.Status)
}

func TestBackgroundRebuild_Stop_GracefulShutdown(t *testing.T) {
	// Given: rebuilder with long-running task
	cfg := RebuilderConfig{
		DataDir: t.TempDir(),
	}
	rebuild := NewBackgroundRebuild(cfg)

	var stopped atomic.Bool
	rebuild.RebuildFunc = func(ctx context.Context, progress *RebuildProgress) error {
		progress.SetStage(StageIndexing, 1000)
		for i := 0; i < 1000; i++ {
			select {
			case <-ctx.Done():
				stopped.Store(true)
				return ctx.Err()
			case <-time.After(1 * time.Millisecond):
				progress.UpdateDocuments(i)
			}
		}
		return nil
	}

	// When: starting and stopping
	ctx := context.Background()
	rebuild.Start(ctx)
	time.Sleep(10 * time.Millisecond)
	rebuild.Stop()

	// Then: should stop cleanly
	assert.True(t, stopped.Load())
	assert.False(t, rebuild.IsRunning())
}

func TestBackgroundRebuild_Stop_ContextCancellation(t *testing.T) {
	// Given: rebuilder with context
	cfg := RebuilderConfig{
		DataDir: t.TempDir(),
	}
	rebuild := NewBackgroundRebuild(cfg)

	var stopped atomic.Bool
	rebuild.RebuildFunc = func(ctx context.Context, progress *RebuildProgress) error {
		<-ctx.Done()
		stopped.Store(true)
		return ctx.Err()
	}

	// When: context is canceled
	ctx, cancel := context.WithCancel(context.Background())
	rebuild.Start(ctx)
	time.Sleep(5 * time.Millisecond)
	cancel()

	// Wait for shutdown
	_ = rebuild.Wait()

	// Then: should stop on context cancel
	assert.True(t, stopped.Load())
	assert.False(t, rebuild.IsRunning())
}

func TestBackgroundRebuild_Wait_BlocksUntilComplete(t *testing.T) {
	// Given: rebuilder with timed task
	cfg := RebuilderConfig{
		DataDir: t.TempDir(),
	}
	rebuild := NewBackgroundRebuild(cfg)

	rebuild.RebuildFunc = func(ctx context.Context, progress *RebuildProgress) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	}

	// When: waiting for completion
	ctx := context.Background()
	rebuild.Start(ctx)

	start := time.Now()
	err := rebuild.Wait()
	elapsed := time.Since(start)

	// Then: should block until complete
	require.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestBackgroundRebuild_MarkerFile_Created(t *testing.T) {
	// Given: rebuilder
	dataDir := t.TempDir()
	cfg := RebuilderConfig{
		DataDir: dataDir,
	}
	rebuild := NewBackgroundRebuild(cfg)

	var markerExists atomic.Bool
	rebuild.RebuildFunc = func(ctx context.Context, progress *RebuildProgress) error {
		markerPath := filepath.Join(dataDir, "rebuild.lock")
		_, err := os.Stat(markerPath)
		markerExists.Store(err == nil)
		return nil
	}

	// When: running rebuild
	ctx := context.Background()
	rebuild.Start(ctx)
	err := rebuild.Wait()

	// Then: marker file should have been created during run
	require.NoError(t, err)
	assert.True(t, markerExists.Load())

	// Marker file should be removed after completion
	markerPath := filepath.Join(dataDir, "rebuild.lock")
	_, err = os.Stat(markerPath)
	assert.True(t, os.IsNotExist(err))
}

func TestBackgroundRebuild_Error_SetsProgress(t *testing.T) {
	// Given: rebuilder that returns error
	cfg := RebuilderConfig{
		DataDir: t.TempDir(),
	}
	rebuild := NewBackgroundRebuild(cfg)

	expectedErr := "token index write failed"
	rebuild.RebuildFunc = func(ctx context.Context, progress *RebuildProgress) error {
		return &testError{message: expectedErr}
	}

	// When: running rebuild
	ctx := context.Background()
	rebuild.Start(ctx)
	err := rebuild.Wait()

	// Then: error should be set in progress
	require.Error(t, err)
	snap := rebuild.Progress().Snapshot()
	assert.Equal(t, "error", snap.Status)
	assert.Contains(t, snap.ErrorMessage, expectedErr)
}

func TestBackgroundRebuild_Start_IdempotentWhenRunning(t *testing.T) {
	// Given: running rebuilder
	cfg := RebuilderConfig{
		DataDir: t.TempDir(),
	}
	rebuild := NewBackgroundRebuild(cfg)

	var startCount atomic.Int32
	rebuild.RebuildFunc = func(ctx context.Context, progress *RebuildProgress) error {
		startCount.Add(1)
		time.Sleep(50 * time.Millisecond)
		return nil
	}

	// When: starting multiple times
	ctx := context.Background()
	rebuild.Start(ctx)
	rebuild.Start(ctx) // Should be ignored
	rebuild.Start(ctx) // Should be ignored
	_ = rebuild.Wait()

	// Then: should only start once
	assert.Equal(t, int32(1), startCount.Load())
}

func TestHasIncompleteRebuild(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(dir string)
		wantResult bool
	}{
		{
			name:       "no marker file",
			setup:      func(dir string) {},
			wantResult: false,
		},
		{
			name: "marker file exists",
			setup: func(dir string) {
				_ = os.WriteFile(filepath.Join(dir, "rebuild.lock"), []byte("test"), 0644)
			},
			wantResult: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setup(dir)

			result := HasIncompleteRebuild(dir)
			assert.Equal(t, tt.wantResult, result)
		})
	}
}

// testError is a simple error type for testing
type testError struct {
	message string
}

func (e *testError) Error() string {
	return e.message
}
