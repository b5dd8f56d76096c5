package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/roman-kulish/drone-supervisor/internal/telemetry"
)

func newStore(t *testing.T) *SqliteStore {
	t.Helper()

	s := NewSqliteStore(filepath.Join(t.TempDir(), "flight.sqlite"))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createSession(t *testing.T, s *SqliteStore) int64 {
	t.Helper()

	id, err := s.CreateSession(context.Background(), "udp:127.0.0.1:14550", Point{X: 10, Y: 20, Z: 30}, map[string]string{"mode": "test"})
	if err != nil {
		t.Fatalf("failed to create session: %v", err)
	}
	return id
}

func TestSqliteStore_Sessions(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	id := createSession(t, s)
	if _, err := s.CreateSession(ctx, "simulator", Point{}, "raw config"); err != nil {
		t.Fatalf("failed to create second session: %v", err)
	}

	sess, err := s.Session(ctx, id)
	if err != nil {
		t.Fatalf("failed to read session: %v", err)
	}
	if sess.Vehicle != "udp:127.0.0.1:14550" || sess.Target != (Point{X: 10, Y: 20, Z: 30}) {
		t.Errorf("unexpected session: %+v", sess)
	}
	if sess.Config == nil || *sess.Config != `{"mode":"test"}` {
		t.Errorf("unexpected config: %v", sess.Config)
	}
	if sess.StartTime.IsZero() {
		t.Error("start time was not recorded")
	}

	sessions, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("failed to list sessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[1].Config == nil || *sessions[1].Config != "raw config" {
		t.Errorf("unexpected config of the second session: %v", sessions[1].Config)
	}

	if _, err := s.Session(ctx, 42); err == nil {
		t.Error("expected error for unknown session")
	}
}

func TestSqliteStore_TelemetryRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	id := createSession(t, s)

	records := []telemetry.Data{
		{Timestamp: 300, X: 3, Y: 6, Z: 29.5, Yaw: 0.3},
		{Timestamp: 100, X: 1, Y: 2, Z: 28, VZ: 1, Yaw: 0.1, YawRate: 0.01},
		{Timestamp: 200, X: 2, Y: 4, Z: 29, Roll: 0.02, Pitch: -0.01},
	}
	for _, r := range records {
		if err := s.StoreTelemetry(ctx, id, r); err != nil {
			t.Fatalf("failed to store telemetry: %v", err)
		}
	}

	reader, err := s.ReadTelemetry(ctx, id)
	if err != nil {
		t.Fatalf("failed to create reader: %v", err)
	}
	defer reader.Close()

	if reader.Session().ID != id {
		t.Errorf("reader bound to session %d, expected %d", reader.Session().ID, id)
	}

	var got []telemetry.Data
	for reader.Next(ctx) {
		p := reader.Current()
		if p.RecordedAt.IsZero() {
			t.Error("recorded time missing")
		}
		got = append(got, p.Data)
	}
	if err := reader.Error(); err != nil {
		t.Fatalf("reader error: %v", err)
	}

	want := []telemetry.Data{records[1], records[2], records[0]}
	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("record %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}

func TestSqliteStore_ReadTelemetryTimeRange(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	id := createSession(t, s)

	for ts := uint32(0); ts < 10; ts++ {
		if err := s.StoreTelemetry(ctx, id, telemetry.Data{Timestamp: ts * 100}); err != nil {
			t.Fatalf("failed to store telemetry: %v", err)
		}
	}

	reader, err := s.ReadTelemetry(ctx, id, WithTimeRange(200, 500))
	if err != nil {
		t.Fatalf("failed to create reader: %v", err)
	}
	defer reader.Close()

	n := 0
	for reader.Next(ctx) {
		n++
	}
	if n != 4 {
		t.Errorf("expected 4 records in range, got %d", n)
	}

	if _, err := s.ReadTelemetry(ctx, id, WithTimeRange(500, 200)); err == nil {
		t.Error("expected error for inverted range")
	}
}

func TestSqliteStore_CommandsAndStatus(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	id := createSession(t, s)

	for _, label := range []string{"CHANGE_ALTITUDE: 1", "CHANGE_ALTITUDE: 1", "CHANGE YAW: 63.43494882292201"} {
		if err := s.StoreCommand(ctx, id, label); err != nil {
			t.Fatalf("failed to store command: %v", err)
		}
	}

	rec := NewRecorder(s, id)
	for _, status := range []string{"Connected", "Disconnected"} {
		if err := rec.RecordStatus(ctx, status); err != nil {
			t.Fatalf("failed to record status: %v", err)
		}
	}

	counts, err := s.CommandCounts(ctx, id)
	if err != nil {
		t.Fatalf("failed to count commands: %v", err)
	}
	if counts["CHANGE_ALTITUDE"] != 2 || counts["CHANGE YAW"] != 1 || len(counts) != 2 {
		t.Errorf("unexpected command counts: %v", counts)
	}

	events, err := s.StatusEvents(ctx, id)
	if err != nil {
		t.Fatalf("failed to read status events: %v", err)
	}
	if len(events) != 2 || events[0].Status != "Connected" || events[1].Status != "Disconnected" {
		t.Errorf("unexpected status events: %+v", events)
	}
}

func TestRecorder_Telemetry(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	id := createSession(t, s)

	var rec telemetry.Recorder = NewRecorder(s, id)
	if err := rec.RecordTelemetry(ctx, telemetry.Data{Timestamp: 1, Z: 30}); err != nil {
		t.Fatalf("failed to record telemetry: %v", err)
	}
	if err := NewRecorder(s, id).RecordCommand(ctx, "CHANGE_ALTITUDE: -1"); err != nil {
		t.Fatalf("failed to record command: %v", err)
	}

	reader, err := s.ReadTelemetry(ctx, id)
	if err != nil {
		t.Fatalf("failed to create reader: %v", err)
	}
	defer reader.Close()

	if !reader.Next(ctx) || reader.Current().Z != 30 {
		t.Error("expected the recorded telemetry")
	}
}

func TestSqliteStore_Close(t *testing.T) {
	s := newStore(t)
	createSession(t, s)

	if err := s.Close(); err != nil {
		t.Fatalf("failed to close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}

	if _, err := s.CreateSession(context.Background(), "simulator", Point{}, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
