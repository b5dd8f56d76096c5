package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/drone-supervisor/internal/control"
	"github.com/roman-kulish/drone-supervisor/internal/metrics"
)

// ErrAlreadyStarted is returned when Start is called on a pool twice
var ErrAlreadyStarted = errors.New("worker pool already started")

// Worker performs one iteration of a worker loop.
type Worker interface {
	Step(ctx context.Context) error
}

// Factory constructs the worker run by the goroutine with the given index.
// A construction error is fatal to that goroutine only.
type Factory func(ctx context.Context, index int, logger *slog.Logger) (Worker, error)

// Handle identifies one spawned worker.
type Handle struct {
	ID        uuid.UUID
	Pool      string
	Index     int
	StartedAt time.Time
}

// WithLogger sets the logger for the pool and its workers
func WithLogger(logger *slog.Logger) func(*Pool) {
	return func(p *Pool) {
		p.logger = logger.With(slog.String("pool", p.name))
	}
}

// WithInterval sets the pause between two iterations of every worker. The
// pause ends early when exit is requested.
func WithInterval(d time.Duration) func(*Pool) {
	return func(p *Pool) {
		p.interval = d
	}
}

// Pool spawns and supervises identical worker loops. Each loop checks the
// shared control plane before every iteration and only stops once exit has
// been requested or the context is cancelled; a failing iteration is logged
// and the loop carries on.
type Pool struct {
	name     string
	plane    *control.Plane
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	handles map[uuid.UUID]Handle
	wg      sync.WaitGroup
}

// NewPool creates a pool with a discard logger
func NewPool(name string, plane *control.Plane, options ...func(*Pool)) *Pool {
	p := Pool{
		name:    name,
		plane:   plane,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		handles: make(map[uuid.UUID]Handle),
	}

	for _, option := range options {
		option(&p)
	}

	return &p
}

// Name returns the pool name.
func (p *Pool) Name() string {
	return p.name
}

// Start spawns count workers built by factory.
func (p *Pool) Start(ctx context.Context, count int, factory Factory) error {
	if count <= 0 {
		return fmt.Errorf("invalid worker count: %d", count)
	}
	if factory == nil {
		return fmt.Errorf("worker factory is required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true

	for i := 0; i < count; i++ {
		h := Handle{
			ID:        uuid.New(),
			Pool:      p.name,
			Index:     i,
			StartedAt: time.Now(),
		}
		p.handles[h.ID] = h

		p.wg.Add(1)
		go p.run(ctx, h, factory)
	}

	return nil
}

// Join blocks until every spawned worker has terminated. Callers request exit
// on the control plane and drain every queue the workers may block on first.
func (p *Pool) Join() {
	p.wg.Wait()

	p.mu.Lock()
	clear(p.handles)
	p.mu.Unlock()
}

// Handles returns the workers which have not terminated yet.
func (p *Pool) Handles() []Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	handles := make([]Handle, 0, len(p.handles))
	for _, h := range p.handles {
		handles = append(handles, h)
	}
	return handles
}

func (p *Pool) run(ctx context.Context, h Handle, factory Factory) {
	defer p.wg.Done()
	defer p.release(h)

	logger := p.logger.With(slog.Int("worker", h.Index), slog.String("workerID", h.ID.String()))

	w, err := factory(ctx, h.Index, logger)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to create worker: %s", err.Error()))
		return
	}
	if c, ok := w.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				logger.Warn(fmt.Sprintf("closing worker: %s", err.Error()))
			}
		}()
	}

	metrics.IncWorkersRunning(p.name)
	defer metrics.DecWorkersRunning(p.name)

	logger.Debug("worker started")

	for !p.plane.ExitRequested() && ctx.Err() == nil {
		p.plane.CheckPause()
		if p.plane.ExitRequested() {
			break
		}

		if err := w.Step(ctx); err != nil {
			metrics.IncWorkerStepErrors(p.name)
			logger.Error(err.Error())
		}

		// a failed iteration waits for the next tick like a successful one
		if p.interval > 0 {
			p.wait(ctx)
		}
	}

	logger.Debug("worker exiting")
}

func (p *Pool) wait(ctx context.Context) {
	timer := time.NewTimer(p.interval)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-p.plane.Done():
	case <-ctx.Done():
	}
}

func (p *Pool) release(h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.handles, h.ID)
}
