package telemetry

import (
	"sync"

	"github.com/eapache/queue"
)

// Queue is an unbounded FIFO safe for concurrent use. Push never blocks or
// drops; the ring underneath grows and shrinks with the backlog.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   *queue.Queue
	closed bool

	pushed int64
	popped int64
	peak   int
}

// QueueStats reports queue activity.
type QueueStats struct {
	Len    int
	Peak   int // largest backlog seen
	Pushed int64
	Popped int64
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{ring: queue.New()}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends v. It returns false once the queue is closed.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.ring.Add(v)
	q.pushed++
	if n := q.ring.Length(); n > q.peak {
		q.peak = n
	}

	q.cond.Signal()
	return true
}

// Pop blocks until an item is available. It returns false when the queue is
// closed and empty.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.ring.Length() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.ring.Length() == 0 {
		var zero T
		return zero, false
	}
	return q.take(), true
}

// tryPop removes the oldest item without blocking.
func (q *Queue[T]) tryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ring.Length() == 0 {
		var zero T
		return zero, false
	}
	return q.take(), true
}

// Drain removes up to max items (all when max <= 0) in FIFO order.
func (q *Queue[T]) Drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.ring.Length()
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]T, n)
	for i := range out {
		out[i] = q.take()
	}
	return out
}

// Close stops further pushes and wakes blocked Pop calls. Items already
// queued can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Len:    q.ring.Length(),
		Peak:   q.peak,
		Pushed: q.pushed,
		Popped: q.popped,
	}
}

// take removes the head item. Caller holds mu and has checked the queue is
// not empty.
func (q *Queue[T]) take() T {
	q.popped++
	return q.ring.Remove().(T)
}
