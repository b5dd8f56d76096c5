package link

import (
	"context"
	"errors"
	"time"
)

const (
	ClassHeartbeat     Class = "HEARTBEAT"
	ClassLocalPosition Class = "LOCAL_POSITION_NED"
	ClassAttitude      Class = "ATTITUDE"
)

var (
	// ErrClosed is returned by operations on a closed link
	ErrClosed = errors.New("link is closed")

	// ErrNoLink is returned by WaitForInitialLink when the vehicle did not show up in time
	ErrNoLink = errors.New("no link to the vehicle")
)

// Class identifies the type of a vehicle message.
type Class string

func (c Class) String() string {
	return string(c)
}

// Message is a decoded message received from the vehicle.
type Message interface {
	Class() Class
}

// Heartbeat is the liveness probe of the vehicle
type Heartbeat struct {
	SystemID uint8
}

func (Heartbeat) Class() Class { return ClassHeartbeat }

// LocalPosition is the vehicle position and velocity in the local NED frame
type LocalPosition struct {
	TimeBootMs uint32  // Timestamp in milliseconds since system boot
	X          float64 // X position in meters
	Y          float64 // Y position in meters
	Z          float64 // Z position in meters
	VX         float64 // X speed in m/s
	VY         float64 // Y speed in m/s
	VZ         float64 // Z speed in m/s
}

func (LocalPosition) Class() Class { return ClassLocalPosition }

// Attitude is the vehicle orientation and angular speed
type Attitude struct {
	TimeBootMs uint32  // Timestamp in milliseconds since system boot
	Roll       float64 // Roll angle in radians
	Pitch      float64 // Pitch angle in radians
	Yaw        float64 // Yaw angle in radians
	RollSpeed  float64 // Roll angular speed in rad/s
	PitchSpeed float64 // Pitch angular speed in rad/s
	YawSpeed   float64 // Yaw angular speed in rad/s
}

func (Attitude) Class() Class { return ClassAttitude }

// Link is the connection to the vehicle shared by every worker.
// Implementations must be safe for concurrent use.
type Link interface {
	// WaitForInitialLink blocks until the vehicle is first heard from or
	// the timeout elapses, in which case ErrNoLink is returned.
	WaitForInitialLink(ctx context.Context, timeout time.Duration) error

	// Receive returns the oldest pending message of any of the given
	// classes, waiting up to timeout. A nil message with a nil error means
	// nothing arrived in time.
	Receive(ctx context.Context, timeout time.Duration, classes ...Class) (Message, error)

	// SendHeartbeat sends a liveness probe to the vehicle.
	SendHeartbeat() error

	// SendAltitudeChange requests a climb (direction 1) or descent
	// (direction -1) at climbRate m/s towards the absolute altitude.
	SendAltitudeChange(direction int, climbRate, altitude float64) error

	// SendYawChange requests a turn of magnitude degrees at turnRate deg/s,
	// clockwise for direction 1 and counter-clockwise for -1.
	SendYawChange(magnitude, turnRate float64, direction int, relative bool) error

	Close() error
}
