package async

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGate_StartsOpen(t *testing.T) {
	g := NewGate()

	assert.False(t, g.Paused())

	// AwaitRunning should not block on an open gate
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, g.AwaitRunning(ctx))
}

func TestGate_PauseBlocksAwaitRunning(t *testing.T) {
	g := NewGate()
	g.Pause()

	assert.True(t, g.Paused())

	// AwaitRunning should block until the context expires
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := g.AwaitRunning(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGate_ResumeReleasesBlockedWorkers(t *testing.T) {
	g := NewGate()
	g.Pause()

	var released atomic.Int32
	var wg sync.WaitGroup

	// Several workers block on the paused gate
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.AwaitRunning(context.Background()); err == nil {
				released.Add(1)
			}
		}()
	}

	// Give workers time to block
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), released.Load())

	// When: resuming
	g.Resume()
	wg.Wait()

	// Then: all workers are released
	assert.Equal(t, int32(5), released.Load())
	assert.False(t, g.Paused())
}

func TestGate_PauseResumeIdempotent(t *testing.T) {
	g := NewGate()

	g.Pause()
	g.Pause() // No-op
	assert.True(t, g.Paused())

	g.Resume()
	g.Resume() // No-op, must not panic on double close
	assert.False(t, g.Paused())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, g.AwaitRunning(ctx))
}

func TestGate_RepausableAfterResume(t *testing.T) {
	g := NewGate()

	g.Pause()
	g.Resume()
	g.Pause()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := g.AwaitRunning(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGate_ConcurrentToggles(t *testing.T) {
	g := NewGate()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			g.Pause()
		}()
		go func() {
			defer wg.Done()
			g.Resume()
		}()
	}
	wg.Wait()

	// Leave the gate open so any blocked caller is released
	g.Resume()
	require.NoError(t, g.AwaitRunning(context.Background()))
}
