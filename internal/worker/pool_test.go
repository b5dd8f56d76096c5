package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/roman-kulish/drone-supervisor/internal/control"
	"github.com/roman-kulish/drone-supervisor/internal/queue"
)

type stepFunc func(ctx context.Context) error

func (f stepFunc) Step(ctx context.Context) error {
	return f(ctx)
}

type closingWorker struct {
	closed *atomic.Bool
}

func (w closingWorker) Step(context.Context) error {
	time.Sleep(time.Millisecond)
	return nil
}

func (w closingWorker) Close() error {
	w.closed.Store(true)
	return nil
}

func joinWithin(t *testing.T, p *Pool, d time.Duration) {
	t.Helper()

	joined := make(chan struct{})
	go func() {
		p.Join()
		close(joined)
	}()

	select {
	case <-joined:
	case <-time.After(d):
		t.Fatalf("pool %s did not join within %s", p.Name(), d)
	}
}

func TestPool_StartValidation(t *testing.T) {
	p := NewPool("test", control.New())

	if err := p.Start(context.Background(), 0, nil); err == nil {
		t.Error("expected error for zero workers")
	}
	if err := p.Start(context.Background(), 1, nil); err == nil {
		t.Error("expected error for nil factory")
	}
}

func TestPool_StartTwice(t *testing.T) {
	plane := control.New()
	p := NewPool("test", plane)

	factory := func(context.Context, int, *slog.Logger) (Worker, error) {
		return stepFunc(func(context.Context) error {
			time.Sleep(time.Millisecond)
			return nil
		}), nil
	}

	if err := p.Start(context.Background(), 1, factory); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.Start(context.Background(), 1, factory); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}

	plane.RequestExit()
	joinWithin(t, p, time.Second)
}

func TestPool_RunsCountWorkersUntilExit(t *testing.T) {
	plane := control.New()
	p := NewPool("test", plane)

	var steps atomic.Int64
	indexes := make(chan int, 3)
	factory := func(_ context.Context, index int, _ *slog.Logger) (Worker, error) {
		indexes <- index
		return stepFunc(func(context.Context) error {
			steps.Add(1)
			time.Sleep(time.Millisecond)
			return nil
		}), nil
	}

	if err := p.Start(context.Background(), 3, factory); err != nil {
		t.Fatalf("start: %v", err)
	}

	time.Sleep(30 * time.Millisecond)
	if n := len(p.Handles()); n != 3 {
		t.Errorf("expected 3 running handles, got %d", n)
	}

	plane.RequestExit()
	joinWithin(t, p, time.Second)

	if steps.Load() == 0 {
		t.Error("expected workers to iterate")
	}
	if n := len(p.Handles()); n != 0 {
		t.Errorf("expected no handles after join, got %d", n)
	}

	close(indexes)
	seen := map[int]bool{}
	for i := range indexes {
		seen[i] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected 3 distinct worker indexes, got %v", seen)
	}
}

func TestPool_StepErrorDoesNotStopWorker(t *testing.T) {
	plane := control.New()
	p := NewPool("test", plane)

	var steps atomic.Int64
	factory := func(context.Context, int, *slog.Logger) (Worker, error) {
		return stepFunc(func(context.Context) error {
			steps.Add(1)
			time.Sleep(time.Millisecond)
			return errors.New("bad iteration")
		}), nil
	}

	_ = p.Start(context.Background(), 1, factory)
	time.Sleep(30 * time.Millisecond)

	if steps.Load() < 2 {
		t.Errorf("expected worker to keep iterating after errors, got %d steps", steps.Load())
	}

	plane.RequestExit()
	joinWithin(t, p, time.Second)
}

func TestPool_FactoryErrorEndsOnlyThatWorker(t *testing.T) {
	plane := control.New()
	p := NewPool("test", plane)

	var steps atomic.Int64
	factory := func(_ context.Context, index int, _ *slog.Logger) (Worker, error) {
		if index == 0 {
			return nil, errors.New("construction failed")
		}
		return stepFunc(func(context.Context) error {
			steps.Add(1)
			time.Sleep(time.Millisecond)
			return nil
		}), nil
	}

	_ = p.Start(context.Background(), 2, factory)
	time.Sleep(30 * time.Millisecond)

	if n := len(p.Handles()); n != 1 {
		t.Errorf("expected 1 surviving worker, got %d", n)
	}
	if steps.Load() == 0 {
		t.Error("expected the healthy worker to iterate")
	}

	plane.RequestExit()
	joinWithin(t, p, time.Second)
}

func TestPool_PauseStopsIterations(t *testing.T) {
	plane := control.New()
	p := NewPool("test", plane)

	var steps atomic.Int64
	factory := func(context.Context, int, *slog.Logger) (Worker, error) {
		return stepFunc(func(context.Context) error {
			steps.Add(1)
			time.Sleep(time.Millisecond)
			return nil
		}), nil
	}

	_ = p.Start(context.Background(), 1, factory)
	time.Sleep(10 * time.Millisecond)

	plane.Pause()
	time.Sleep(10 * time.Millisecond) // let an in-flight step finish
	before := steps.Load()
	time.Sleep(30 * time.Millisecond)
	if after := steps.Load(); after != before {
		t.Errorf("worker iterated while paused: %d -> %d", before, after)
	}

	plane.Resume()
	time.Sleep(20 * time.Millisecond)
	if steps.Load() == before {
		t.Error("worker did not resume")
	}

	plane.RequestExit()
	joinWithin(t, p, time.Second)
}

func TestPool_IntervalEndsEarlyOnExit(t *testing.T) {
	plane := control.New()
	p := NewPool("test", plane, WithInterval(time.Hour))

	factory := func(context.Context, int, *slog.Logger) (Worker, error) {
		return stepFunc(func(context.Context) error { return nil }), nil
	}

	_ = p.Start(context.Background(), 1, factory)
	time.Sleep(10 * time.Millisecond)

	plane.RequestExit()
	joinWithin(t, p, time.Second)
}

func TestPool_ContextCancelStopsWorkers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPool("test", control.New(), WithInterval(time.Hour))

	factory := func(context.Context, int, *slog.Logger) (Worker, error) {
		return stepFunc(func(context.Context) error { return nil }), nil
	}

	_ = p.Start(ctx, 2, factory)
	cancel()
	joinWithin(t, p, time.Second)
}

func TestPool_ClosesWorkerOnExit(t *testing.T) {
	plane := control.New()
	p := NewPool("test", plane)

	var closed atomic.Bool
	factory := func(context.Context, int, *slog.Logger) (Worker, error) {
		return closingWorker{closed: &closed}, nil
	}

	_ = p.Start(context.Background(), 1, factory)
	time.Sleep(10 * time.Millisecond)
	plane.RequestExit()
	joinWithin(t, p, time.Second)

	if !closed.Load() {
		t.Error("expected worker to be closed")
	}
}

// A producer blocked on a full queue must not prevent the pool from joining
// once exit is requested and the queue is drained.
func TestPool_JoinAfterExitAndDrain(t *testing.T) {
	plane := control.New()
	q, _ := queue.New[int](1)
	p := NewPool("producer", plane)

	factory := func(context.Context, int, *slog.Logger) (Worker, error) {
		return stepFunc(func(context.Context) error {
			if err := q.Push(1, 0); err != nil && !errors.Is(err, queue.ErrClosed) {
				return err
			}
			return nil
		}), nil
	}

	_ = p.Start(context.Background(), 2, factory)
	time.Sleep(20 * time.Millisecond) // both producers end up blocked on the full queue

	plane.RequestExit()
	q.DrainAndClose()
	joinWithin(t, p, time.Second)
}
