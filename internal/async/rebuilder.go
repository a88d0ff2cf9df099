package async

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RebuildFunc is the function signature for the actual rebuild work.
type RebuildFunc func(ctx context.Context, progress *RebuildProgress) error

// RebuilderConfig configures the BackgroundRebuild.
type RebuilderConfig struct {
	DataDir string
}

// BackgroundRebuild runs a full rebuild in a background goroutine with
// progress tracking. The serve daemon uses it so a rebuild request does not
// block outbox dispatch.
type BackgroundRebuild struct {
	config   RebuilderConfig
	progress *RebuildProgress

	// RebuildFunc is the actual rebuild function to run.
	// This can be injected for testing.
	RebuildFunc RebuildFunc

	// Lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}

	mu      sync.Mutex
	running bool
	err     error
}

// NewBackgroundRebuild creates a new background rebuild runner.
func NewBackgroundRebuild(cfg RebuilderConfig) *BackgroundRebuild {
	return &BackgroundRebuild{
		config:   cfg,
		progress: NewRebuildProgress(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Progress returns the progress tracker for this rebuild.
func (b *BackgroundRebuild) Progress() *RebuildProgress {
	return b.progress
}

// IsRunning returns true if the rebuild is currently running.
func (b *BackgroundRebuild) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Start begins the rebuild in a background goroutine.
// This is non-blocking and returns immediately.
// Use Wait() to block until completion.
func (b *BackgroundRebuild) Start(ctx context.Context) {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	go b.run(ctx)
}

// run executes the rebuild in the background.
func (b *BackgroundRebuild) run(ctx context.Context) {
	defer close(b.doneCh)
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	// Create merged context that respects both parent and stop channel
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-b.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	// Create marker file so an interrupted rebuild is detectable on restart
	markerPath := filepath.Join(b.config.DataDir, "rebuild.lock")
	if err := os.MkdirAll(b.config.DataDir, 0755); err != nil {
		b.progress.SetError(err.Error())
		b.mu.Lock()
		b.err = err
		b.mu.Unlock()
		return
	}

	if err := os.WriteFile(markerPath, []byte(time.Now().Format(time.RFC3339)), 0644); err != nil {
		b.progress.SetError(err.Error())
		b.mu.Lock()
		b.err = err
		b.mu.Unlock()
		return
	}

	// Ensure marker file is removed on completion
	defer func() { _ = os.Remove(markerPath) }()

	// Run the actual rebuild function
	if b.RebuildFunc != nil {
		if err := b.RebuildFunc(ctx, b.progress); err != nil {
			b.progress.SetError(err.Error())
			b.mu.Lock()
			b.err = err
			b.mu.Unlock()
			return
		}
	}

	// Mark as ready
	b.progress.SetReady()
}

// Stop signals the rebuild to stop and waits for it to finish.
func (b *BackgroundRebuild) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	close(b.stopCh)
	<-b.doneCh
}

// Wait blocks until the rebuild completes and returns any error.
func (b *BackgroundRebuild) Wait() error {
	<-b.doneCh
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// HasIncompleteRebuild checks if a previous rebuild left its marker behind,
// which means it was interrupted before completing.
func HasIncompleteRebuild(dataDir string) bool {
	markerPath := filepath.Join(dataDir, "rebuild.lock")
	_, err := os.Stat(markerPath)
	return err == nil
}
