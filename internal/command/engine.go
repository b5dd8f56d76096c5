package command

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roman-kulish/drone-supervisor/internal/link"
	"github.com/roman-kulish/drone-supervisor/internal/metrics"
	"github.com/roman-kulish/drone-supervisor/internal/telemetry"
)

// WithLogger sets the logger for the engine
func WithLogger(logger *slog.Logger) func(*Engine) {
	return func(e *Engine) {
		e.logger = logger
	}
}

// Engine steers the vehicle towards a fixed target.
type Engine struct {
	link   link.Link
	target Position
	logger *slog.Logger
}

// NewEngine creates an engine steering towards target.
func NewEngine(l link.Link, target Position, options ...func(*Engine)) (*Engine, error) {
	if l == nil {
		return nil, fmt.Errorf("link is required")
	}

	e := Engine{
		link:   l,
		target: target,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&e)
	}

	return &e, nil
}

// Target returns the position the engine steers towards.
func (e *Engine) Target() Position {
	return e.target
}

// Run decides on one telemetry record and sends the resulting command. It
// returns the command label, ok is false when no command was needed.
func (e *Engine) Run(_ context.Context, t telemetry.Data) (string, bool, error) {
	d, ok := Decide(e.target, t)
	if !ok {
		return "", false, nil
	}

	var err error
	switch d.Kind {
	case KindAltitude:
		err = e.link.SendAltitudeChange(d.Direction, d.Rate, d.Magnitude)
	case KindYaw:
		err = e.link.SendYawChange(d.Magnitude, d.Rate, d.Direction, true)
	}
	if err != nil {
		return "", false, fmt.Errorf("sending %s command: %w", d.Kind, err)
	}

	metrics.IncCommandsIssued(string(d.Kind))
	e.logger.Debug(d.Label, slog.Uint64("timestamp", uint64(t.Timestamp)))

	return d.Label, true, nil
}
