package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roman-kulish/drone-supervisor/internal/queue"
)

// PushTimeout bounds the wait for space in the telemetry queue
const PushTimeout = time.Second

// Recorder persists fused telemetry
type Recorder interface {
	RecordTelemetry(ctx context.Context, data Data) error
}

// WithRecorder makes the worker hand every fused record to r.
func WithRecorder(r Recorder) func(*Worker) {
	return func(w *Worker) {
		w.recorder = r
	}
}

// WithWorkerLogger sets the logger for the worker
func WithWorkerLogger(logger *slog.Logger) func(*Worker) {
	return func(w *Worker) {
		w.logger = logger
	}
}

// Worker runs a Fuser and publishes fused records on the telemetry queue.
type Worker struct {
	fuser    *Fuser
	out      *queue.Queue[Data]
	recorder Recorder
	logger   *slog.Logger
}

// NewWorker creates a telemetry worker.
func NewWorker(f *Fuser, out *queue.Queue[Data], options ...func(*Worker)) (*Worker, error) {
	if f == nil || out == nil {
		return nil, fmt.Errorf("fuser and telemetry queue are required")
	}

	w := Worker{
		fuser:  f,
		out:    out,
		logger: f.logger,
	}

	for _, option := range options {
		option(&w)
	}

	return &w, nil
}

func (w *Worker) Step(ctx context.Context) error {
	data, ok, err := w.fuser.Run(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if w.recorder != nil {
		// recording is best effort
		if err := w.recorder.RecordTelemetry(ctx, data); err != nil {
			w.logger.Warn(fmt.Sprintf("recording telemetry: %s", err.Error()))
		}
	}

	switch err = w.out.Push(data, PushTimeout); {
	case err == nil, errors.Is(err, queue.ErrClosed):
		return nil
	default:
		return fmt.Errorf("publishing telemetry: %w", err)
	}
}
