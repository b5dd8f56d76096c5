package storage

import (
	"database/sql"
	"time"

	"github.com/roman-kulish/drone-supervisor/internal/telemetry"
)

// Point is a position in the local NED frame, in meters
type Point struct {
	X float64
	Y float64
	Z float64
}

// Session is one supervised flight
type Session struct {
	ID        int64
	StartTime time.Time
	Vehicle   string  // Link endpoint or "simulator"
	Target    Point   // Navigation target of the flight
	Config    *string // Supervisor configuration, if recorded
}

// TelemetryPoint is a fused telemetry record with its wall clock time
type TelemetryPoint struct {
	RecordedAt time.Time
	telemetry.Data
}

// StatusEvent is a link status reported during a flight
type StatusEvent struct {
	RecordedAt time.Time
	Status     string
}

type sessionData struct {
	ID        int64
	StartTime time.Time
	Vehicle   string
	TargetX   float64
	TargetY   float64
	TargetZ   float64
	Config    sql.NullString
}

func (s *sessionData) toSession() *Session {
	sess := Session{
		ID:        s.ID,
		StartTime: s.StartTime,
		Vehicle:   s.Vehicle,
		Target:    Point{X: s.TargetX, Y: s.TargetY, Z: s.TargetZ},
	}
	if s.Config.Valid {
		sess.Config = &s.Config.String
	}
	return &sess
}
