package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roman-kulish/drone-supervisor/internal/link"
)

// ReceiveTimeout bounds the wait for one position or attitude sample
const ReceiveTimeout = time.Second

// Data is the fused vehicle state built from the latest position and
// attitude samples
type Data struct {
	Timestamp uint32  // Milliseconds since vehicle boot, the newer of both samples
	X         float64 // X position in meters
	Y         float64 // Y position in meters
	Z         float64 // Z position in meters
	VX        float64 // X speed in m/s
	VY        float64 // Y speed in m/s
	VZ        float64 // Z speed in m/s
	Roll      float64 // Roll angle in radians
	Pitch     float64 // Pitch angle in radians
	Yaw       float64 // Yaw angle in radians
	RollRate  float64 // Roll angular speed in rad/s
	PitchRate float64 // Pitch angular speed in rad/s
	YawRate   float64 // Yaw angular speed in rad/s
}

// SinceBoot returns the timestamp as a duration.
func (d Data) SinceBoot() time.Duration {
	return time.Duration(d.Timestamp) * time.Millisecond
}

// WithLogger sets the logger for the fuser
func WithLogger(logger *slog.Logger) func(*Fuser) {
	return func(f *Fuser) {
		f.logger = logger
	}
}

// WithReceiveTimeout overrides how long a step waits for a sample.
func WithReceiveTimeout(d time.Duration) func(*Fuser) {
	return func(f *Fuser) {
		f.timeout = d
	}
}

// Fuser combines LOCAL_POSITION_NED and ATTITUDE samples into Data. It
// keeps the latest sample of each class and emits a record for every sample
// received once both classes have been seen.
type Fuser struct {
	link     link.Link
	timeout  time.Duration
	position *link.LocalPosition
	attitude *link.Attitude
	logger   *slog.Logger
}

// NewFuser creates a fuser reading from the link.
func NewFuser(l link.Link, options ...func(*Fuser)) (*Fuser, error) {
	if l == nil {
		return nil, fmt.Errorf("link is required")
	}

	f := Fuser{
		link:    l,
		timeout: ReceiveTimeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&f)
	}

	return &f, nil
}

// Run receives one sample. ok is false when nothing arrived in time or one
// of the classes has not been seen yet.
func (f *Fuser) Run(ctx context.Context) (data Data, ok bool, err error) {
	msg, err := f.link.Receive(ctx, f.timeout, link.ClassLocalPosition, link.ClassAttitude)
	if err != nil {
		return data, false, fmt.Errorf("receiving telemetry: %w", err)
	}

	switch m := msg.(type) {
	case nil:
		return data, false, nil
	case link.LocalPosition:
		f.position = &m
	case link.Attitude:
		f.attitude = &m
	default:
		f.logger.Warn(fmt.Sprintf("unexpected message class '%s'", msg.Class()))
		return data, false, nil
	}

	if f.position == nil || f.attitude == nil {
		return data, false, nil
	}

	return fuse(*f.position, *f.attitude), true, nil
}

func fuse(p link.LocalPosition, a link.Attitude) Data {
	return Data{
		Timestamp: max(p.TimeBootMs, a.TimeBootMs),
		X:         p.X,
		Y:         p.Y,
		Z:         p.Z,
		VX:        p.VX,
		VY:        p.VY,
		VZ:        p.VZ,
		Roll:      a.Roll,
		Pitch:     a.Pitch,
		Yaw:       a.Yaw,
		RollRate:  a.RollSpeed,
		PitchRate: a.PitchSpeed,
		YawRate:   a.YawSpeed,
	}
}
