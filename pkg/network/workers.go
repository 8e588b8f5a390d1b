package network

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultShutdownGrace bounds how long a released worker group waits for
// its goroutines before cancelling them.
const DefaultShutdownGrace = 500 * time.Millisecond

// workerGroup runs the goroutines serving one generation of channels.
type workerGroup struct {
	generation uint64
	ctx        context.Context
	cancel     context.CancelFunc
	eg         errgroup.Group

	mu       sync.Mutex
	stopping bool
}

func newWorkerGroup(generation uint64) *workerGroup {
	ctx, cancel := context.WithCancel(context.Background())
	return &workerGroup{
		generation: generation,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Go runs fn on the group. fn must return once ctx is cancelled.
func (g *workerGroup) Go(fn func(ctx context.Context)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopping {
		// Stragglers of a drained group are not tracked.
		go fn(g.ctx)
		return
	}
	g.eg.Go(func() error {
		fn(g.ctx)
		return nil
	})
}

// shutdown waits up to grace for running goroutines, then cancels the
// group context. It reports whether the group drained within grace.
func (g *workerGroup) shutdown(grace time.Duration) bool {
	g.mu.Lock()
	g.stopping = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = g.eg.Wait()
		close(done)
	}()

	defer g.cancel()
	select {
	case <-done:
		return true
	case <-time.After(grace):
		return false
	}
}

// WorkerStats is a snapshot of the shared worker group.
type WorkerStats struct {
	// Refs is the number of connect attempts and open channels holding the
	// group.
	Refs int

	// Active reports whether a group currently exists.
	Active bool

	// Generation counts groups created so far.
	Generation uint64

	// Teardowns counts groups released so far.
	Teardowns uint64
}

// groupManager owns the reference-counted worker group of a Service.
type groupManager struct {
	grace   time.Duration
	onEvent func(generation uint64, oldState, newState, reason string)

	mu         sync.Mutex
	refs       int
	group      *workerGroup
	generation uint64
	teardowns  uint64
}

// acquire takes a reference, creating the group if none exists. The
// returned release func is safe to call more than once; only the first
// call drops the reference.
func (m *groupManager) acquire() (*workerGroup, func()) {
	m.mu.Lock()
	m.refs++
	created := false
	if m.group == nil {
		m.generation++
		m.group = newWorkerGroup(m.generation)
		created = true
	}
	g := m.group
	m.mu.Unlock()

	if created {
		m.emit(g.generation, "", "ACTIVE", "first reference")
	}

	var released atomic.Bool
	return g, func() {
		if released.CompareAndSwap(false, true) {
			m.release()
		}
	}
}

func (m *groupManager) release() {
	m.mu.Lock()
	m.refs--
	if m.refs > 0 {
		m.mu.Unlock()
		return
	}
	g := m.group
	m.group = nil
	m.refs = 0
	m.teardowns++
	m.mu.Unlock()

	if g == nil {
		return
	}

	m.emit(g.generation, "ACTIVE", "DRAINING", "last reference released")
	// Released from a group goroutine, so the drain must not block it.
	go func() {
		reason := "drained"
		if !g.shutdown(m.grace) {
			reason = "grace period expired"
		}
		m.emit(g.generation, "DRAINING", "TERMINATED", reason)
	}()
}

func (m *groupManager) stats() WorkerStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return WorkerStats{
		Refs:       m.refs,
		Active:     m.group != nil,
		Generation: m.generation,
		Teardowns:  m.teardowns,
	}
}

func (m *groupManager) emit(generation uint64, oldState, newState, reason string) {
	if m.onEvent != nil {
		m.onEvent(generation, oldState, newState, reason)
	}
}
