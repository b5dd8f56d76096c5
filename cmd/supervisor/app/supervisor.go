package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/drone-supervisor/internal/command"
	"github.com/roman-kulish/drone-supervisor/internal/control"
	"github.com/roman-kulish/drone-supervisor/internal/heartbeat"
	"github.com/roman-kulish/drone-supervisor/internal/link"
	"github.com/roman-kulish/drone-supervisor/internal/queue"
	"github.com/roman-kulish/drone-supervisor/internal/telemetry"
	"github.com/roman-kulish/drone-supervisor/internal/worker"
)

const (
	// QueueCapacity is the capacity of every queue owned by the supervisor
	QueueCapacity = 10

	// PollInterval is how often the supervisor reads the status and command queues
	PollInterval = 100 * time.Millisecond

	// RunBudget is how long the supervisor runs before shutting down
	RunBudget = 100 * time.Second

	StopBudget       StopReason = "budget elapsed"
	StopCancelled    StopReason = "cancelled"
	StopDisconnected StopReason = "vehicle disconnected"
)

// Target is the fixed navigation target
var Target = command.Position{X: 10, Y: 20, Z: 30}

// ErrAlreadyRun is returned when Run is called on a supervisor twice
var ErrAlreadyRun = errors.New("supervisor already run")

// StopReason tells why the supervisor shut down
type StopReason string

// Recorder persists what the supervisor observes during a flight
type Recorder interface {
	telemetry.Recorder
	RecordCommand(ctx context.Context, label string) error
	RecordStatus(ctx context.Context, status string) error
}

// Summary describes a finished run
type Summary struct {
	Reason   StopReason
	Elapsed  time.Duration
	Statuses int // Status messages read from the status queue
	Commands int // Command results read from the command queue
	Drained  int // Messages discarded by the shutdown drain
}

// WithLogger sets the logger for the supervisor and its workers
func WithLogger(logger *slog.Logger) func(*Supervisor) {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithRecorder makes the supervisor record telemetry, commands and status
// changes of the flight.
func WithRecorder(r Recorder) func(*Supervisor) {
	return func(s *Supervisor) {
		s.recorder = r
	}
}

// WithBudget overrides how long the supervisor runs.
func WithBudget(d time.Duration) func(*Supervisor) {
	return func(s *Supervisor) {
		s.budget = d
	}
}

// WithPollInterval overrides how often the supervisor reads its queues.
func WithPollInterval(d time.Duration) func(*Supervisor) {
	return func(s *Supervisor) {
		s.pollInterval = d
	}
}

// WithTarget overrides the navigation target.
func WithTarget(p command.Position) func(*Supervisor) {
	return func(s *Supervisor) {
		s.target = p
	}
}

// WithReceiverOptions passes options to the heartbeat receiver.
func WithReceiverOptions(options ...func(*heartbeat.Receiver)) func(*Supervisor) {
	return func(s *Supervisor) {
		s.receiverOptions = append(s.receiverOptions, options...)
	}
}

// Supervisor wires the worker pools to the shared link through three queues,
// watches the link status and drives an orderly shutdown.
type Supervisor struct {
	link  link.Link
	plane *control.Plane

	status    *queue.Queue[heartbeat.Status]
	telemetry *queue.Queue[telemetry.Data]
	commands  *queue.Queue[string]
	pools     []*worker.Pool

	target          command.Position
	budget          time.Duration
	pollInterval    time.Duration
	receiverOptions []func(*heartbeat.Receiver)

	recorder   Recorder
	lastStatus heartbeat.Status
	ran        bool

	logger *slog.Logger
}

// NewSupervisor creates a supervisor flying the vehicle reached through l.
func NewSupervisor(l link.Link, options ...func(*Supervisor)) (*Supervisor, error) {
	if l == nil {
		return nil, fmt.Errorf("link is required")
	}

	s := Supervisor{
		link:         l,
		plane:        control.New(),
		target:       Target,
		budget:       RunBudget,
		pollInterval: PollInterval,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	if s.budget <= 0 || s.pollInterval <= 0 {
		return nil, fmt.Errorf("invalid supervisor timing: budget=%s, poll=%s", s.budget, s.pollInterval)
	}

	var err error
	if s.status, err = queue.New[heartbeat.Status](QueueCapacity, queue.WithName("status")); err != nil {
		return nil, fmt.Errorf("creating status queue: %w", err)
	}
	if s.telemetry, err = queue.New[telemetry.Data](QueueCapacity, queue.WithName("telemetry")); err != nil {
		return nil, fmt.Errorf("creating telemetry queue: %w", err)
	}
	if s.commands, err = queue.New[string](QueueCapacity, queue.WithName("command")); err != nil {
		return nil, fmt.Errorf("creating command queue: %w", err)
	}

	return &s, nil
}

// Plane returns the control plane shared with every worker.
func (s *Supervisor) Plane() *control.Plane {
	return s.plane
}

// Run starts the workers and supervises them until the budget elapses, ctx
// is cancelled or the vehicle is reported disconnected. All workers have
// terminated by the time Run returns.
func (s *Supervisor) Run(ctx context.Context) (*Summary, error) {
	if s.ran {
		return nil, ErrAlreadyRun
	}
	s.ran = true

	started := time.Now()
	summary := Summary{}

	if err := s.startPools(ctx); err != nil {
		s.shutdown()
		return nil, err
	}

	s.logger.Info("supervisor started",
		slog.String("budget", humanize.RelTime(started, started.Add(s.budget), "", "from now")),
		slog.String("target", s.target.String()))

	budget := time.NewTimer(s.budget)
	defer budget.Stop()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for summary.Reason == "" {
		select {
		case <-ctx.Done():
			summary.Reason = StopCancelled

		case <-budget.C:
			summary.Reason = StopBudget

		case <-ticker.C:
			if s.poll(ctx, &summary) {
				summary.Reason = StopDisconnected
			}
		}
	}

	s.logger.Info("shutting down", slog.String("reason", string(summary.Reason)))

	summary.Drained = s.shutdown()
	summary.Elapsed = time.Since(started)

	s.logger.Info("supervisor stopped",
		slog.String("reason", string(summary.Reason)),
		slog.String("elapsed", summary.Elapsed.Round(time.Millisecond).String()),
		slog.String("statuses", humanize.Comma(int64(summary.Statuses))),
		slog.String("commands", humanize.Comma(int64(summary.Commands))),
		slog.String("drained", humanize.Comma(int64(summary.Drained))))

	return &summary, nil
}

func (s *Supervisor) startPools(ctx context.Context) error {
	pools := []struct {
		name     string
		interval time.Duration
		factory  worker.Factory
	}{
		{name: "heartbeat-sender", interval: heartbeat.Period, factory: s.newHeartbeatSender},
		{name: "heartbeat-receiver", factory: s.newHeartbeatReceiver},
		{name: "telemetry", factory: s.newTelemetryWorker},
		{name: "command", factory: s.newCommandWorker},
	}

	for _, p := range pools {
		pool := worker.NewPool(p.name, s.plane, worker.WithLogger(s.logger), worker.WithInterval(p.interval))
		if err := pool.Start(ctx, 1, p.factory); err != nil {
			return fmt.Errorf("starting %s pool: %w", p.name, err)
		}
		s.pools = append(s.pools, pool)
	}
	return nil
}

func (s *Supervisor) newHeartbeatSender(context.Context, int, *slog.Logger) (worker.Worker, error) {
	return heartbeat.NewSender(s.link)
}

func (s *Supervisor) newHeartbeatReceiver(_ context.Context, _ int, logger *slog.Logger) (worker.Worker, error) {
	options := append([]func(*heartbeat.Receiver){heartbeat.WithLogger(logger)}, s.receiverOptions...)

	r, err := heartbeat.NewReceiver(s.link, options...)
	if err != nil {
		return nil, err
	}
	return heartbeat.NewReceiverWorker(r, s.status)
}

func (s *Supervisor) newTelemetryWorker(_ context.Context, _ int, logger *slog.Logger) (worker.Worker, error) {
	f, err := telemetry.NewFuser(s.link, telemetry.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	var options []func(*telemetry.Worker)
	if s.recorder != nil {
		options = append(options, telemetry.WithRecorder(s.recorder))
	}
	return telemetry.NewWorker(f, s.telemetry, options...)
}

func (s *Supervisor) newCommandWorker(_ context.Context, _ int, logger *slog.Logger) (worker.Worker, error) {
	e, err := command.NewEngine(s.link, s.target, command.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return command.NewWorker(e, s.telemetry, s.commands)
}

// poll consumes whatever is currently queued and reports whether the vehicle
// was seen disconnected.
func (s *Supervisor) poll(ctx context.Context, summary *Summary) (disconnected bool) {
	for {
		status, ok := s.status.TryPop()
		if !ok {
			break
		}
		summary.Statuses++
		s.handleStatus(ctx, status)

		if status == heartbeat.Disconnected {
			return true
		}
	}

	for {
		label, ok := s.commands.TryPop()
		if !ok {
			break
		}
		summary.Commands++
		s.logger.Info(label)

		if s.recorder != nil {
			if err := s.recorder.RecordCommand(context.WithoutCancel(ctx), label); err != nil {
				s.logger.Warn(fmt.Sprintf("recording command: %s", err.Error()))
			}
		}
	}

	return false
}

func (s *Supervisor) handleStatus(ctx context.Context, status heartbeat.Status) {
	if status == heartbeat.Disconnected {
		s.logger.Error(status.String())
	} else {
		s.logger.Debug(status.String())
	}

	if status == s.lastStatus {
		return
	}
	s.lastStatus = status

	if s.recorder != nil {
		if err := s.recorder.RecordStatus(context.WithoutCancel(ctx), status.String()); err != nil {
			s.logger.Warn(fmt.Sprintf("recording status: %s", err.Error()))
		}
	}
}

// shutdown requests exit, drains every queue so no producer stays blocked on
// a full queue, then joins the pools. It returns the number of discarded
// messages.
func (s *Supervisor) shutdown() int {
	s.plane.RequestExit()

	drained := s.commands.DrainAndClose()
	drained += s.telemetry.DrainAndClose()
	drained += s.status.DrainAndClose()

	for _, pool := range s.pools {
		pool.Join()
		s.logger.Debug("pool joined", slog.String("pool", pool.Name()))
	}

	return drained
}
