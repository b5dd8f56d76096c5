package storage

import (
	"context"

	"github.com/roman-kulish/drone-supervisor/internal/telemetry"
)

// Recorder writes the records of one flight session.
type Recorder struct {
	store     Store
	sessionID int64
}

// NewRecorder binds a recorder to an existing session.
func NewRecorder(store Store, sessionID int64) *Recorder {
	return &Recorder{store: store, sessionID: sessionID}
}

// SessionID returns the session the recorder writes to.
func (r *Recorder) SessionID() int64 {
	return r.sessionID
}

func (r *Recorder) RecordTelemetry(ctx context.Context, data telemetry.Data) error {
	return r.store.StoreTelemetry(ctx, r.sessionID, data)
}

func (r *Recorder) RecordCommand(ctx context.Context, label string) error {
	return r.store.StoreCommand(ctx, r.sessionID, label)
}

func (r *Recorder) RecordStatus(ctx context.Context, status string) error {
	return r.store.StoreStatus(ctx, r.sessionID, status)
}
