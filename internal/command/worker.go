package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roman-kulish/drone-supervisor/internal/queue"
	"github.com/roman-kulish/drone-supervisor/internal/telemetry"
)

const (
	// PopTimeout bounds the wait for a telemetry record
	PopTimeout = 100 * time.Millisecond

	// PushTimeout bounds the wait for space in the command queue
	PushTimeout = time.Second
)

// Worker feeds telemetry records to an Engine and publishes the command
// labels.
type Worker struct {
	engine *Engine
	in     *queue.Queue[telemetry.Data]
	out    *queue.Queue[string]
}

// NewWorker creates a command worker.
func NewWorker(e *Engine, in *queue.Queue[telemetry.Data], out *queue.Queue[string]) (*Worker, error) {
	if e == nil || in == nil || out == nil {
		return nil, fmt.Errorf("engine, telemetry queue and command queue are required")
	}
	return &Worker{engine: e, in: in, out: out}, nil
}

func (w *Worker) Step(ctx context.Context) error {
	t, ok := w.in.Pop(PopTimeout)
	if !ok {
		return nil
	}

	label, ok, err := w.engine.Run(ctx, t)
	if err != nil || !ok {
		return err
	}

	switch err = w.out.Push(label, PushTimeout); {
	case err == nil, errors.Is(err, queue.ErrClosed):
		return nil
	default:
		return fmt.Errorf("publishing command result: %w", err)
	}
}
