package app

import (
	"math"
	"time"

	"github.com/roman-kulish/drone-supervisor/internal/storage"
)

// Sample is one point of a flight track, in meters
type Sample struct {
	X, Y, Z float64
}

// TrackData is a flight track accumulated from recorded telemetry together
// with what the supervisor logged about the flight.
type TrackData struct {
	Session                      *storage.Session
	Samples                      []Sample
	XMin, XMax                   float64 // North
	YMin, YMax                   float64 // East
	ZMin, ZMax                   float64 // Altitude
	TimestampStart, TimestampEnd time.Time
	Commands                     map[string]int64
	Statuses                     []storage.StatusEvent
}

// NewTrackData creates an empty track. The bounds start at the session
// target so it is always part of the picture.
func NewTrackData(session *storage.Session) *TrackData {
	t := session.Target
	return &TrackData{
		Session:  session,
		XMin:     t.X,
		XMax:     t.X,
		YMin:     t.Y,
		YMax:     t.Y,
		ZMin:     math.MaxFloat64,
		ZMax:     -math.MaxFloat64,
		Samples:  make([]Sample, 0),
		Commands: make(map[string]int64),
	}
}

func (t *TrackData) Update(p *storage.TelemetryPoint) {
	t.XMin = min(t.XMin, p.X)
	t.XMax = max(t.XMax, p.X)
	t.YMin = min(t.YMin, p.Y)
	t.YMax = max(t.YMax, p.Y)
	t.ZMin = min(t.ZMin, p.Z)
	t.ZMax = max(t.ZMax, p.Z)

	if t.TimestampStart.IsZero() || t.TimestampStart.After(p.RecordedAt) {
		t.TimestampStart = p.RecordedAt
	}
	if t.TimestampEnd.IsZero() || t.TimestampEnd.Before(p.RecordedAt) {
		t.TimestampEnd = p.RecordedAt
	}

	t.Samples = append(t.Samples, Sample{X: p.X, Y: p.Y, Z: p.Z})
}

func (t *TrackData) Len() int {
	return len(t.Samples)
}

func (t *TrackData) Duration() time.Duration {
	return t.TimestampEnd.Sub(t.TimestampStart)
}

// CommandCount returns the number of commands issued during the flight.
func (t *TrackData) CommandCount() int64 {
	var n int64
	for _, c := range t.Commands {
		n += c
	}
	return n
}
