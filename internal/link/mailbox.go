package link

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const defaultMailboxCapacity = 64

type envelope struct {
	seq uint64
	msg Message
}

// Mailbox demultiplexes the messages received from the vehicle per class so
// that workers interested in different classes never consume each other's
// messages. Each class keeps at most capacity messages, the oldest message of
// a class is dropped when a new one arrives to a full slot.
type Mailbox struct {
	capacity int

	mu      sync.Mutex
	seq     uint64
	pending map[Class][]envelope
	dropped uint64
	closed  bool
	arrived chan struct{} // closed and replaced on every Put
}

// NewMailbox creates a mailbox keeping up to capacity messages per class.
func NewMailbox(capacity int) (*Mailbox, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid mailbox capacity: %d", capacity)
	}
	return &Mailbox{
		capacity: capacity,
		pending:  make(map[Class][]envelope),
		arrived:  make(chan struct{}),
	}, nil
}

// Put stores msg, it is a no-op once the mailbox is closed.
func (m *Mailbox) Put(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	class := msg.Class()
	slot := m.pending[class]
	if len(slot) >= m.capacity {
		slot = slot[1:]
		m.dropped++
	}

	m.seq++
	m.pending[class] = append(slot, envelope{seq: m.seq, msg: msg})

	close(m.arrived)
	m.arrived = make(chan struct{})
}

// Get returns the oldest pending message of any of the classes, waiting up
// to timeout. It returns nil on timeout and ErrClosed once the mailbox is
// closed.
func (m *Mailbox) Get(ctx context.Context, timeout time.Duration, classes ...Class) (Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrClosed
		}

		if msg := m.take(classes); msg != nil {
			m.mu.Unlock()
			return msg, nil
		}

		wait := m.arrived
		m.mu.Unlock()

		select {
		case <-wait:
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Dropped returns the number of messages discarded because their class slot was full.
func (m *Mailbox) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.dropped
}

// Close releases every waiter and discards pending messages.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.closed = true
	clear(m.pending)
	close(m.arrived)
}

// take removes the message with the lowest sequence number among the
// classes, m.mu must be held.
func (m *Mailbox) take(classes []Class) Message {
	var (
		best  Class
		found bool
		seq   uint64
	)

	for _, class := range classes {
		slot := m.pending[class]
		if len(slot) == 0 {
			continue
		}
		if !found || slot[0].seq < seq {
			best, seq, found = class, slot[0].seq, true
		}
	}

	if !found {
		return nil
	}

	slot := m.pending[best]
	msg := slot[0].msg
	m.pending[best] = slot[1:]
	return msg
}
