package control

import (
	"sync"
	"sync/atomic"
)

// Plane is the pause/exit signal shared by every worker of the system.
// A single Plane is created at startup and handed by pointer to each worker,
// all methods are safe for concurrent use.
type Plane struct {
	exit     atomic.Bool
	exitOnce sync.Once
	done     chan struct{}

	mu      sync.Mutex
	paused  bool
	resumed chan struct{} // closed and replaced on every Resume
}

// New creates a Plane in the running (not paused, no exit) state.
func New() *Plane {
	return &Plane{
		done:    make(chan struct{}),
		resumed: make(chan struct{}),
	}
}

// RequestExit asks every worker to stop at its next checkpoint. It is
// idempotent and also releases workers blocked in CheckPause.
func (p *Plane) RequestExit() {
	p.exitOnce.Do(func() {
		p.exit.Store(true)
		close(p.done)
	})
}

// ExitRequested reports whether RequestExit has been called.
func (p *Plane) ExitRequested() bool {
	return p.exit.Load()
}

// Done returns a channel which is closed once exit has been requested.
func (p *Plane) Done() <-chan struct{} {
	return p.done
}

// Pause makes subsequent CheckPause calls block until Resume.
func (p *Plane) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.paused = true
}

// Resume releases every worker blocked in CheckPause.
func (p *Plane) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.paused {
		return
	}

	p.paused = false
	close(p.resumed)
	p.resumed = make(chan struct{})
}

// Paused reports whether the plane is paused.
func (p *Plane) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.paused
}

// CheckPause is the cooperative safe point of a worker loop. It returns
// immediately unless the plane is paused, in which case it blocks until the
// plane is resumed or exit is requested.
func (p *Plane) CheckPause() {
	p.mu.Lock()
	if !p.paused {
		p.mu.Unlock()
		return
	}
	resumed := p.resumed
	p.mu.Unlock()

	select {
	case <-resumed:
	case <-p.done:
	}
}
