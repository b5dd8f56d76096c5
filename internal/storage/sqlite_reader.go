package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
)

// ReaderOption configures a SqliteTelemetryReader.
type ReaderOption func(*SqliteTelemetryReader)

// WithTimeRange limits the reader to records stamped between from and to
// milliseconds since vehicle boot, both inclusive.
func WithTimeRange(from, to uint32) ReaderOption {
	return func(r *SqliteTelemetryReader) {
		r.from = from
		r.to = to
	}
}

// SqliteTelemetryReader iterates over the telemetry of a flight session.
// Each reader instance should only be used from a single goroutine.
type SqliteTelemetryReader struct {
	db        *sql.DB
	sessionID int64
	session   *Session

	from uint32
	to   uint32

	current *TelemetryPoint
	rows    *sql.Rows
	err     error
}

func newSqliteTelemetryReader(ctx context.Context, db *sql.DB, sessionID int64, opts ...ReaderOption) (*SqliteTelemetryReader, error) {
	tr := &SqliteTelemetryReader{
		db:        db,
		sessionID: sessionID,
		to:        math.MaxUint32,
	}
	for _, opt := range opts {
		opt(tr)
	}
	if err := tr.init(ctx); err != nil {
		return nil, fmt.Errorf("initializing reader: %w", err)
	}
	return tr, nil
}

func (tr *SqliteTelemetryReader) init(ctx context.Context) error {
	if tr.db == nil {
		return errors.New("database connection required")
	}
	if tr.sessionID <= 0 {
		return errors.New("session ID required")
	}
	if tr.from > tr.to {
		return fmt.Errorf("start time %d is after end time %d", tr.from, tr.to)
	}

	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "loading session", fn: tr.loadSession},
		{msg: "initializing query", fn: tr.initQuery},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (tr *SqliteTelemetryReader) loadSession(ctx context.Context) (err error) {
	stmt, err := tr.db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if tr.session, err = scanSession(stmt.QueryRowContext(ctx, tr.sessionID)); err != nil {
		return fmt.Errorf("querying session: %w", err)
	}
	return
}

func (tr *SqliteTelemetryReader) initQuery(ctx context.Context) (err error) {
	tr.rows, err = tr.db.QueryContext(ctx, selectTelemetrySQL, tr.sessionID, tr.from, tr.to)
	return
}

// Session returns the flight session this reader is accessing.
func (tr *SqliteTelemetryReader) Session() *Session {
	return tr.session
}

// Next advances the reader and reports whether a record is available.
func (tr *SqliteTelemetryReader) Next(ctx context.Context) bool {
	if tr.err != nil || tr.rows == nil {
		return false
	}

	select {
	case <-ctx.Done():
		tr.err = ctx.Err()
		return false
	default:
	}

	if !tr.rows.Next() {
		tr.current = nil
		return false
	}

	var p TelemetryPoint
	tr.err = tr.rows.Scan(
		&p.RecordedAt,
		&p.Timestamp,
		&p.X,
		&p.Y,
		&p.Z,
		&p.VX,
		&p.VY,
		&p.VZ,
		&p.Roll,
		&p.Pitch,
		&p.Yaw,
		&p.RollRate,
		&p.PitchRate,
		&p.YawRate,
	)
	if tr.err != nil {
		tr.err = fmt.Errorf("scanning telemetry: %w", tr.err)
		return false
	}

	tr.current = &p
	return true
}

// Current returns the record read by the last successful Next.
func (tr *SqliteTelemetryReader) Current() *TelemetryPoint {
	return tr.current
}

// Error returns the error which stopped the iteration, if any.
func (tr *SqliteTelemetryReader) Error() error {
	if tr.err != nil {
		return tr.err
	}
	if tr.rows != nil {
		return tr.rows.Err()
	}
	return nil
}

func (tr *SqliteTelemetryReader) Close() error {
	if tr.rows != nil {
		err := tr.rows.Close()
		tr.current = nil
		tr.rows = nil
		return err
	}
	return nil
}
