package heartbeat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/roman-kulish/drone-supervisor/internal/link"
	"github.com/roman-kulish/drone-supervisor/internal/queue"
)

// scriptedLink replays a fixed sequence of receive results, true meaning a
// heartbeat arrived. Once the script runs out every receive times out.
type scriptedLink struct {
	mu         sync.Mutex
	script     []bool
	receiveErr error
	sendErr    error
	sent       int
}

func (l *scriptedLink) WaitForInitialLink(context.Context, time.Duration) error { return nil }

func (l *scriptedLink) Receive(_ context.Context, _ time.Duration, _ ...link.Class) (link.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.receiveErr != nil {
		return nil, l.receiveErr
	}
	if len(l.script) == 0 {
		return nil, nil
	}

	got := l.script[0]
	l.script = l.script[1:]
	if got {
		return link.Heartbeat{SystemID: 1}, nil
	}
	return nil, nil
}

func (l *scriptedLink) SendHeartbeat() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sent++
	return l.sendErr
}

func (l *scriptedLink) SendAltitudeChange(int, float64, float64) error { return nil }

func (l *scriptedLink) SendYawChange(float64, float64, int, bool) error { return nil }

func (l *scriptedLink) Close() error { return nil }

func run(t *testing.T, r *Receiver) Status {
	t.Helper()

	s, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func TestNewReceiver_Validation(t *testing.T) {
	if _, err := NewReceiver(nil); err == nil {
		t.Error("expected error for nil link")
	}
	if _, err := NewReceiver(&scriptedLink{}, WithMaxMissed(0)); err == nil {
		t.Error("expected error for zero threshold")
	}
}

func TestReceiver_GraceWindowBeforeFirstHeartbeat(t *testing.T) {
	r, err := NewReceiver(&scriptedLink{})
	if err != nil {
		t.Fatalf("failed to create receiver: %v", err)
	}

	for i := 1; i < MaxMissed; i++ {
		if s := run(t, r); s != Connected {
			t.Fatalf("miss %d: expected %s, got %s", i, Connected, s)
		}
	}

	// never connected, so no transition happens but the status flips
	for i := 0; i < 3; i++ {
		if s := run(t, r); s != Disconnected {
			t.Fatalf("expected %s, got %s", Disconnected, s)
		}
	}
	if r.Connected() {
		t.Error("receiver should not be connected")
	}
	if r.Missed() != MaxMissed+2 {
		t.Errorf("expected %d misses, got %d", MaxMissed+2, r.Missed())
	}
}

func TestReceiver_ConnectThenLose(t *testing.T) {
	l := &scriptedLink{script: []bool{true, false, false, false, false, false, false}}

	r, err := NewReceiver(l)
	if err != nil {
		t.Fatalf("failed to create receiver: %v", err)
	}

	if s := run(t, r); s != Connected || !r.Connected() {
		t.Fatalf("expected connected after a heartbeat, got %s", s)
	}

	want := []Status{Connected, Connected, Connected, Connected, Disconnected, Disconnected}
	for i, w := range want {
		if s := run(t, r); s != w {
			t.Fatalf("miss %d: expected %s, got %s", i+1, w, s)
		}
	}
	if r.Connected() {
		t.Error("receiver should have transitioned to disconnected")
	}
}

func TestReceiver_HeartbeatResetsCount(t *testing.T) {
	l := &scriptedLink{script: []bool{false, false, false, false, true, false, false, false, false}}

	r, err := NewReceiver(l)
	if err != nil {
		t.Fatalf("failed to create receiver: %v", err)
	}

	for i := 0; i < 9; i++ {
		if s := run(t, r); s != Connected {
			t.Fatalf("step %d: expected %s, got %s", i, Connected, s)
		}
	}
	if r.Missed() != 4 {
		t.Errorf("expected 4 misses after the reset, got %d", r.Missed())
	}

	if s := run(t, r); s != Disconnected {
		t.Errorf("expected %s on the fifth miss after the reset, got %s", Disconnected, s)
	}
}

func TestReceiver_Reconnects(t *testing.T) {
	l := &scriptedLink{script: []bool{true, false, false, true}}

	r, err := NewReceiver(l, WithMaxMissed(2))
	if err != nil {
		t.Fatalf("failed to create receiver: %v", err)
	}

	want := []Status{Connected, Connected, Disconnected, Connected}
	for i, w := range want {
		if s := run(t, r); s != w {
			t.Fatalf("step %d: expected %s, got %s", i, w, s)
		}
	}
	if !r.Connected() || r.Missed() != 0 {
		t.Errorf("expected reconnected state, got connected=%t missed=%d", r.Connected(), r.Missed())
	}
}

func TestReceiver_ReceiveError(t *testing.T) {
	r, err := NewReceiver(&scriptedLink{receiveErr: link.ErrClosed})
	if err != nil {
		t.Fatalf("failed to create receiver: %v", err)
	}

	if _, err := r.Run(context.Background()); !errors.Is(err, link.ErrClosed) {
		t.Errorf("expected link.ErrClosed, got %v", err)
	}
	if r.Missed() != 0 {
		t.Error("a receive error must not count as a miss")
	}
}

func TestSender(t *testing.T) {
	if _, err := NewSender(nil); err == nil {
		t.Error("expected error for nil link")
	}

	l := &scriptedLink{}
	s, err := NewSender(l)
	if err != nil {
		t.Fatalf("failed to create sender: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := s.Step(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if l.sent != 3 {
		t.Errorf("expected 3 heartbeats, got %d", l.sent)
	}

	l.sendErr = link.ErrClosed
	if err := s.Step(context.Background()); !errors.Is(err, link.ErrClosed) {
		t.Errorf("expected wrapped link.ErrClosed, got %v", err)
	}
}

func TestReceiverWorker_PublishesStatus(t *testing.T) {
	r, err := NewReceiver(&scriptedLink{script: []bool{true}}, WithMaxMissed(1))
	if err != nil {
		t.Fatalf("failed to create receiver: %v", err)
	}

	q, err := queue.New[Status](10)
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}

	if _, err := NewReceiverWorker(r, nil); err == nil {
		t.Error("expected error for nil queue")
	}

	w, err := NewReceiverWorker(r, q)
	if err != nil {
		t.Fatalf("failed to create worker: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := w.Step(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	for _, want := range []Status{Connected, Disconnected} {
		got, ok := q.TryPop()
		if !ok || got != want {
			t.Errorf("expected %s, got %s (ok=%t)", want, got, ok)
		}
	}

	// publishing into a drained queue is part of a normal shutdown
	q.DrainAndClose()
	if err := w.Step(context.Background()); err != nil {
		t.Errorf("expected no error on a closed queue, got %v", err)
	}
}
