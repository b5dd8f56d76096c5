package command

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roman-kulish/drone-supervisor/internal/telemetry"
)

const (
	// AltitudeDeadzone is the altitude error in meters tolerated before a
	// climb or descent is requested
	AltitudeDeadzone = 0.5

	// ClimbRate is the vertical speed requested for altitude changes, m/s
	ClimbRate = 1.0

	// YawDeadzone is the heading error in degrees tolerated before a turn
	// is requested
	YawDeadzone = 5.0

	// TurnRate is the angular speed requested for yaw changes, deg/s
	TurnRate = 5.0

	// radians to degrees, rounded the same way as a float64 division
	radToDeg = 180 / float64(math.Pi)
)

// Kind is the type of command issued to the vehicle.
type Kind string

const (
	KindAltitude Kind = "altitude"
	KindYaw      Kind = "yaw"
)

// Position is a point in the local NED frame, in meters
type Position struct {
	X float64
	Y float64
	Z float64
}

func (p Position) String() string {
	return fmt.Sprintf("(%g, %g, %g)", p.X, p.Y, p.Z)
}

// Decision describes one command to send to the vehicle.
type Decision struct {
	Kind      Kind
	Direction int     // 1 climbs or turns clockwise, -1 descends or turns counter-clockwise
	Magnitude float64 // Target altitude in meters or heading error in degrees
	Rate      float64 // Climb rate in m/s or turn rate in deg/s
	Label     string  // Result reported to the supervisor
}

// Decide compares the vehicle state with the target. Altitude is corrected
// first, the heading is only looked at once the altitude is within its
// deadzone. ok is false when the vehicle needs no correction.
func Decide(target Position, t telemetry.Data) (d Decision, ok bool) {
	if dz := target.Z - t.Z; math.Abs(dz) > AltitudeDeadzone {
		direction := sign(dz)
		return Decision{
			Kind:      KindAltitude,
			Direction: direction,
			Magnitude: target.Z,
			Rate:      ClimbRate,
			Label:     fmt.Sprintf("CHANGE_ALTITUDE: %d", direction),
		}, true
	}

	desired := math.Atan2(target.Y-t.Y, target.X-t.X)
	errDeg := normalize(desired-t.Yaw) * radToDeg

	if math.Abs(errDeg) > YawDeadzone {
		return Decision{
			Kind:      KindYaw,
			Direction: sign(errDeg),
			Magnitude: math.Abs(errDeg),
			Rate:      TurnRate,
			Label:     "CHANGE YAW: " + formatFloat(errDeg),
		}, true
	}

	return d, false
}

// normalize wraps an angle in radians into (-π, π].
func normalize(a float64) float64 {
	a = math.Remainder(a, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

func sign(v float64) int {
	if v > 0 {
		return 1
	}
	return -1
}

// formatFloat prints the shortest representation of v which reads back to
// the same value, keeping a decimal point on integral values.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
