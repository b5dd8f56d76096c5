package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/drone-supervisor/internal/telemetry"
)

// SqliteStore handles database operations
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("store is closed")

// NewSqliteStore creates a store backed by the Sqlite database at dbPath.
// Connections are opened and the schema is initialized on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		// sqlite has a single writer, telemetry and supervisor share it
		db.SetMaxOpenConns(1)

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateSession(ctx context.Context, vehicle string, target Point, config any) (sessionID int64, err error) {
	configData, err := toConfigData(config)
	if err != nil {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	result, err := stmt.ExecContext(ctx, time.Now().UTC(), vehicle, target.X, target.Y, target.Z, configData)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (session *Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	if session, err = scanSession(stmt.QueryRowContext(ctx, id)); err != nil {
		err = fmt.Errorf("scanning session: %w", err)
	}
	return
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess *Session
		if sess, err = scanSession(rows); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		sessions = append(sessions, sess)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) StoreTelemetry(ctx context.Context, sessionID int64, t telemetry.Data) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertTelemetrySQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	_, err = stmt.ExecContext(
		ctx,
		sessionID,
		time.Now().UTC(),
		t.Timestamp,
		t.X,
		t.Y,
		t.Z,
		t.VX,
		t.VY,
		t.VZ,
		t.Roll,
		t.Pitch,
		t.Yaw,
		t.RollRate,
		t.PitchRate,
		t.YawRate,
	)
	if err != nil {
		return fmt.Errorf("inserting telemetry: %w", err)
	}
	return nil
}

func (s *SqliteStore) StoreCommand(ctx context.Context, sessionID int64, label string) error {
	return s.insertEvent(ctx, insertCommandSQL, sessionID, label)
}

func (s *SqliteStore) StoreStatus(ctx context.Context, sessionID int64, status string) error {
	return s.insertEvent(ctx, insertStatusSQL, sessionID, status)
}

func (s *SqliteStore) insertEvent(ctx context.Context, query string, sessionID int64, value string) error {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	if _, err = db.ExecContext(ctx, query, sessionID, time.Now().UTC(), value); err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

// ReadTelemetry creates a reader iterating over the telemetry of a session
// in vehicle time order.
//
// The returned reader must be closed after use to release database resources.
func (s *SqliteStore) ReadTelemetry(ctx context.Context, sessionID int64, opts ...ReaderOption) (*SqliteTelemetryReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}
	return newSqliteTelemetryReader(ctx, db, sessionID, opts...)
}

// CommandCounts returns how many commands of each kind were issued during a
// session. The kind is the part of the label before the colon.
func (s *SqliteStore) CommandCounts(ctx context.Context, sessionID int64) (counts map[string]int64, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectCommandCountsSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying commands: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	counts = make(map[string]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err = rows.Scan(&kind, &n); err != nil {
			err = fmt.Errorf("scanning command count: %w", err)
			return
		}
		counts[kind] = n
	}
	err = rows.Err()
	return
}

// StatusEvents returns the link status changes of a session in the order
// they were recorded.
func (s *SqliteStore) StatusEvents(ctx context.Context, sessionID int64) (events []StatusEvent, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectStatusEventsSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying status events: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var e StatusEvent
		if err = rows.Scan(&e.RecordedAt, &e.Status); err != nil {
			err = fmt.Errorf("scanning status event: %w", err)
			return
		}
		events = append(events, e)
	}
	err = rows.Err()
	return
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		// no connection may be opened past this point
		s.writeDBOnce.Do(func() {})
		s.readDBOnce.Do(func() {})

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.writeDBErr, s.readDBErr = ErrClosed, ErrClosed
		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
