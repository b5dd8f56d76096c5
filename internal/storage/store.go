package storage

import (
	"context"

	"github.com/roman-kulish/drone-supervisor/internal/telemetry"
)

// Store provides an interface for the flight recorder. It keeps supervised
// flight sessions together with the fused telemetry, issued commands and
// link status changes observed while they ran. Writes are safe for
// concurrent use.
type Store interface {
	// CreateSession starts recording a new flight and returns its identifier.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - vehicle: Link endpoint the vehicle is reached on
	//   - target: Navigation target of the flight
	//   - config: Optional supervisor configuration. Can be string, []byte, or JSON-serializable object
	CreateSession(ctx context.Context, vehicle string, target Point, config any) (sessionID int64, err error)

	// Session retrieves a flight session by its ID.
	Session(ctx context.Context, id int64) (session *Session, err error)

	// Sessions returns all flight sessions ordered by start time.
	Sessions(ctx context.Context) (sessions []*Session, err error)

	// StoreTelemetry saves one fused telemetry record of a session.
	StoreTelemetry(ctx context.Context, sessionID int64, data telemetry.Data) error

	// StoreCommand saves the label of a command issued to the vehicle.
	StoreCommand(ctx context.Context, sessionID int64, label string) error

	// StoreStatus saves a link status reported by the heartbeat receiver.
	StoreStatus(ctx context.Context, sessionID int64, status string) error

	// Close releases all database connections. It is safe to call Close
	// multiple times.
	Close() error
}
