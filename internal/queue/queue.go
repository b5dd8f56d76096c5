package queue

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/roman-kulish/drone-supervisor/internal/metrics"
)

var (
	// ErrTimeout is returned by Push when the queue stayed full for the whole timeout
	ErrTimeout = errors.New("queue push timed out")

	// ErrClosed is returned by Push once the queue has been drained and closed
	ErrClosed = errors.New("queue is closed")
)

// WithName labels the queue in metrics and log output.
func WithName(name string) func(*options) {
	return func(o *options) {
		o.name = name
	}
}

type options struct {
	name string
}

// Queue is a fixed capacity FIFO safe for concurrent producers and consumers.
// Items are stored by value, so a consumer never aliases a producer's data
// unless T itself holds references.
//
// Waiters park on broadcast channels which are closed and replaced whenever
// the queue state changes, this lets Push and Pop combine a wait with a
// timeout in a single select.
type Queue[T any] struct {
	name     string
	capacity int

	mu       sync.Mutex
	items    []T
	head     int
	size     int
	closed   bool
	notFull  chan struct{}
	notEmpty chan struct{}
}

// New creates a queue holding at most capacity items.
func New[T any](capacity int, opts ...func(*options)) (*Queue[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid queue capacity: %d", capacity)
	}

	o := options{name: "queue"}
	for _, opt := range opts {
		opt(&o)
	}

	return &Queue[T]{
		name:     o.name,
		capacity: capacity,
		items:    make([]T, capacity),
		notFull:  make(chan struct{}),
		notEmpty: make(chan struct{}),
	}, nil
}

// Name returns the queue label.
func (q *Queue[T]) Name() string {
	return q.name
}

// Push appends item to the tail of the queue. When the queue is full it waits
// up to timeout for space, a timeout <= 0 waits until space frees or the queue
// is closed. Returns ErrTimeout or ErrClosed when the item was not queued.
func (q *Queue[T]) Push(item T, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrClosed
		}

		if q.size < q.capacity {
			q.items[(q.head+q.size)%q.capacity] = item
			q.size++
			broadcast(&q.notEmpty)
			depth := q.size
			q.mu.Unlock()

			metrics.SetQueueDepth(q.name, depth)
			return nil
		}

		wait := q.notFull
		q.mu.Unlock()

		select {
		case <-wait:
		case <-expired:
			metrics.IncQueuePushTimeout(q.name)
			return ErrTimeout
		}
	}
}

// Pop removes the item at the head of the queue. When the queue is empty it
// waits up to timeout for an item, a timeout <= 0 waits until an item arrives
// or the queue is closed. ok is false when nothing was received, which is an
// expected outcome rather than an error.
func (q *Queue[T]) Pop(timeout time.Duration) (item T, ok bool) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return item, false
		}

		if q.size > 0 {
			item = q.take()
			depth := q.size
			q.mu.Unlock()

			metrics.SetQueueDepth(q.name, depth)
			return item, true
		}

		wait := q.notEmpty
		q.mu.Unlock()

		select {
		case <-wait:
		case <-expired:
			return item, false
		}
	}
}

// TryPop removes the head item without waiting.
func (q *Queue[T]) TryPop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.size == 0 {
		return item, false
	}

	item = q.take()
	metrics.SetQueueDepth(q.name, q.size)
	return item, true
}

// IsEmpty reports whether the queue holds no items.
func (q *Queue[T]) IsEmpty() bool {
	return q.Len() == 0
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.size
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return q.capacity
}

// DrainAndClose is the shutdown protocol of the queue. It closes the queue so
// that every blocked and future Push returns ErrClosed and every blocked and
// future Pop returns empty, then discards all queued items. It returns the
// number of discarded items and is safe to call more than once.
//
// Callers request exit on the control plane first, so that producers stop at
// their next checkpoint, and join the workers afterwards.
func (q *Queue[T]) DrainAndClose() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		broadcast(&q.notFull)
		broadcast(&q.notEmpty)
	}

	drained := 0
	for q.size > 0 {
		q.take()
		drained++
	}

	metrics.SetQueueDepth(q.name, 0)
	metrics.AddQueueDrained(q.name, drained)
	return drained
}

// take pops the head item, q.mu must be held and the queue must not be empty.
func (q *Queue[T]) take() T {
	var zero T

	item := q.items[q.head]
	q.items[q.head] = zero
	q.head = (q.head + 1) % q.capacity
	q.size--
	broadcast(&q.notFull)
	return item
}

func broadcast(ch *chan struct{}) {
	close(*ch)
	*ch = make(chan struct{})
}
