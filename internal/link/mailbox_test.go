package link

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMailbox_InvalidCapacity(t *testing.T) {
	if _, err := NewMailbox(0); err == nil {
		t.Error("expected error for zero capacity")
	}
}

func TestMailbox_FiltersByClass(t *testing.T) {
	m, _ := NewMailbox(4)

	m.Put(Heartbeat{SystemID: 1})
	m.Put(LocalPosition{TimeBootMs: 10})
	m.Put(Attitude{TimeBootMs: 20})

	msg, err := m.Get(context.Background(), time.Second, ClassAttitude, ClassLocalPosition)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, ok := msg.(LocalPosition); !ok {
		t.Fatalf("expected the older LocalPosition first, got %T", msg)
	}

	msg, _ = m.Get(context.Background(), time.Second, ClassAttitude, ClassLocalPosition)
	if _, ok := msg.(Attitude); !ok {
		t.Fatalf("expected Attitude, got %T", msg)
	}

	// the heartbeat is still waiting for its own consumer
	msg, _ = m.Get(context.Background(), time.Second, ClassHeartbeat)
	if hb, ok := msg.(Heartbeat); !ok || hb.SystemID != 1 {
		t.Fatalf("expected Heartbeat, got %#v", msg)
	}
}

func TestMailbox_TimeoutReturnsNil(t *testing.T) {
	m, _ := NewMailbox(4)
	m.Put(Attitude{})

	msg, err := m.Get(context.Background(), 20*time.Millisecond, ClassHeartbeat)
	if err != nil || msg != nil {
		t.Fatalf("expected nil message and error, got %v, %v", msg, err)
	}
}

func TestMailbox_WakesWaiter(t *testing.T) {
	m, _ := NewMailbox(4)

	got := make(chan Message, 1)
	go func() {
		msg, _ := m.Get(context.Background(), time.Second, ClassHeartbeat)
		got <- msg
	}()

	time.Sleep(10 * time.Millisecond)
	m.Put(Attitude{})
	m.Put(Heartbeat{SystemID: 3})

	select {
	case msg := <-got:
		if hb, ok := msg.(Heartbeat); !ok || hb.SystemID != 3 {
			t.Errorf("expected heartbeat from system 3, got %#v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
}

func TestMailbox_DropsOldestWhenFull(t *testing.T) {
	m, _ := NewMailbox(2)

	for i := uint32(1); i <= 3; i++ {
		m.Put(Attitude{TimeBootMs: i})
	}

	if m.Dropped() != 1 {
		t.Errorf("expected 1 dropped message, got %d", m.Dropped())
	}

	msg, _ := m.Get(context.Background(), time.Second, ClassAttitude)
	if a := msg.(Attitude); a.TimeBootMs != 2 {
		t.Errorf("expected oldest remaining message 2, got %d", a.TimeBootMs)
	}
}

func TestMailbox_Close(t *testing.T) {
	m, _ := NewMailbox(2)

	errs := make(chan error, 1)
	go func() {
		_, err := m.Get(context.Background(), time.Minute, ClassHeartbeat)
		errs <- err
	}()

	time.Sleep(10 * time.Millisecond)
	m.Close()
	m.Close()
	m.Put(Heartbeat{})

	select {
	case err := <-errs:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by Close")
	}
}

func TestMailbox_ContextCancel(t *testing.T) {
	m, _ := NewMailbox(2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.Get(ctx, time.Minute, ClassHeartbeat); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
