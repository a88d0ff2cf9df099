package async

import (
	"context"
	"sync"
)

// Gate is a pause switch shared by the outbox dispatcher and the audit
// scheduler. Pausing does not interrupt work already in flight; workers
// block at their next idle point until the gate reopens.
//
// The zero value is not usable; create gates with NewGate.
type Gate struct {
	mu     sync.Mutex
	paused bool
	open   chan struct{} // closed while the gate is open
}

// NewGate creates a gate in the open (running) state.
func NewGate() *Gate {
	g := &Gate{open: make(chan struct{})}
	close(g.open)
	return g
}

// Pause closes the gate. Idempotent.
func (g *Gate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.paused {
		return
	}
	g.paused = true
	g.open = make(chan struct{})
}

// Resume reopens the gate, releasing all blocked workers. Idempotent.
func (g *Gate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.paused {
		return
	}
	g.paused = false
	close(g.open)
}

// Paused reports whether the gate is currently closed.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// AwaitRunning blocks until the gate is open or the context is done.
// Returns the context error on cancellation, nil otherwise.
func (g *Gate) AwaitRunning(ctx context.Context) error {
	g.mu.Lock()
	open := g.open
	g.mu.Unlock()

	select {
	case <-open:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
