package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/looplab/fsm"

	"github.com/roman-kulish/drone-supervisor/internal/link"
	"github.com/roman-kulish/drone-supervisor/internal/metrics"
	"github.com/roman-kulish/drone-supervisor/internal/queue"
)

const (
	// MaxMissed is the number of consecutive missed heartbeats after which
	// the link is reported as disconnected
	MaxMissed = 5

	// ReceiveTimeout bounds the wait for one heartbeat
	ReceiveTimeout = time.Second

	// Period is the interval between two heartbeats sent to the vehicle
	Period = time.Second

	// StatusPushTimeout bounds the wait for space in the status queue
	StatusPushTimeout = time.Second

	Connected    Status = "Connected"
	Disconnected Status = "Disconnected"

	stateConnected    = "connected"
	stateDisconnected = "disconnected"

	eventConnect    = "connect"
	eventDisconnect = "disconnect"
)

// Status is the link status reported to the supervisor.
type Status string

func (s Status) String() string {
	return string(s)
}

// Sender sends one liveness probe to the vehicle per step.
type Sender struct {
	link link.Link
}

// NewSender creates a heartbeat sender.
func NewSender(l link.Link) (*Sender, error) {
	if l == nil {
		return nil, fmt.Errorf("link is required")
	}
	return &Sender{link: l}, nil
}

// Step sends a heartbeat. Pacing is left to the worker pool.
func (s *Sender) Step(context.Context) error {
	if err := s.link.SendHeartbeat(); err != nil {
		return fmt.Errorf("sending heartbeat: %w", err)
	}
	return nil
}

// WithMaxMissed overrides the number of missed heartbeats tolerated.
func WithMaxMissed(n uint) func(*Receiver) {
	return func(r *Receiver) {
		r.maxMissed = n
	}
}

// WithReceiveTimeout overrides how long a step waits for a heartbeat.
func WithReceiveTimeout(d time.Duration) func(*Receiver) {
	return func(r *Receiver) {
		r.timeout = d
	}
}

// WithLogger sets the logger for the receiver
func WithLogger(logger *slog.Logger) func(*Receiver) {
	return func(r *Receiver) {
		r.logger = logger
	}
}

// Receiver detects a lost link by counting consecutive missed heartbeats.
//
// The receiver keeps reporting Connected while fewer than maxMissed
// heartbeats in a row were missed, including before the very first
// heartbeat. It reports Disconnected on every step from then on until a
// heartbeat arrives and resets the count.
type Receiver struct {
	link      link.Link
	maxMissed uint
	timeout   time.Duration
	missed    uint
	state     *fsm.FSM
	logger    *slog.Logger
}

// NewReceiver creates a receiver in the disconnected state.
func NewReceiver(l link.Link, options ...func(*Receiver)) (*Receiver, error) {
	if l == nil {
		return nil, fmt.Errorf("link is required")
	}

	r := Receiver{
		link:      l,
		maxMissed: MaxMissed,
		timeout:   ReceiveTimeout,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&r)
	}

	if r.maxMissed == 0 {
		return nil, fmt.Errorf("invalid missed heartbeats threshold: %d", r.maxMissed)
	}

	r.state = fsm.NewFSM(
		stateDisconnected,
		fsm.Events{
			{Name: eventConnect, Src: []string{stateDisconnected}, Dst: stateConnected},
			{Name: eventDisconnect, Src: []string{stateConnected}, Dst: stateDisconnected},
		},
		fsm.Callbacks{
			"enter_" + stateConnected: func(_ context.Context, _ *fsm.Event) {
				metrics.SetLinkConnected(true)
				r.logger.Info(string(Connected))
			},
			"enter_" + stateDisconnected: func(_ context.Context, _ *fsm.Event) {
				metrics.SetLinkConnected(false)
				r.logger.Error(string(Disconnected), slog.Uint64("missed", uint64(r.missed)))
			},
		},
	)

	return &r, nil
}

// Connected reports whether the receiver currently considers the link up.
func (r *Receiver) Connected() bool {
	return r.state.Is(stateConnected)
}

// Missed returns the number of consecutive missed heartbeats.
func (r *Receiver) Missed() uint {
	return r.missed
}

// Run waits for one heartbeat and returns the resulting link status.
func (r *Receiver) Run(ctx context.Context) (Status, error) {
	msg, err := r.link.Receive(ctx, r.timeout, link.ClassHeartbeat)
	if err != nil {
		return "", fmt.Errorf("receiving heartbeat: %w", err)
	}

	if msg != nil {
		r.missed = 0
		metrics.SetHeartbeatMissed(r.missed)

		if !r.Connected() {
			if err = r.state.Event(ctx, eventConnect); err != nil {
				return "", fmt.Errorf("changing link state: %w", err)
			}
		}
		return Connected, nil
	}

	r.missed++
	metrics.SetHeartbeatMissed(r.missed)

	if r.missed < r.maxMissed {
		return Connected, nil
	}

	if r.Connected() {
		if err = r.state.Event(ctx, eventDisconnect); err != nil {
			return "", fmt.Errorf("changing link state: %w", err)
		}
	}
	return Disconnected, nil
}

// ReceiverWorker runs a Receiver and publishes every status on a queue.
type ReceiverWorker struct {
	receiver *Receiver
	status   *queue.Queue[Status]
}

// NewReceiverWorker creates a worker publishing receiver statuses.
func NewReceiverWorker(r *Receiver, status *queue.Queue[Status]) (*ReceiverWorker, error) {
	if r == nil || status == nil {
		return nil, fmt.Errorf("receiver and status queue are required")
	}
	return &ReceiverWorker{receiver: r, status: status}, nil
}

func (w *ReceiverWorker) Step(ctx context.Context) error {
	s, err := w.receiver.Run(ctx)
	if err != nil {
		return err
	}

	switch err = w.status.Push(s, StatusPushTimeout); {
	case err == nil, errors.Is(err, queue.ErrClosed):
		return nil // a closed queue means shutdown is under way
	default:
		return fmt.Errorf("publishing status %s: %w", s, err)
	}
}
