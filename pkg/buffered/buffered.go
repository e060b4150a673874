package buffered

import (
	"sync"

	"github.com/i5heu/GoBlockingQueue/pkg/boundedqueue"
)

// BufferedQueue implements the closable queue contract on top of a
// buffered Go channel. The channel itself is never closed; shutdown is
// signalled through done, and settled is closed once no send can still
// land in the channel.
type BufferedQueue[T any] struct {
	ch chan T

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
	done     chan struct{}
	settled  chan struct{}
}

func New[T any](bufferSize uint64) *BufferedQueue[T] {
	// Enforce minimum capacity of 1 to ensure proper bounded buffer semantics.
	// A zero-capacity Go channel is an unbuffered synchronization primitive,
	// not a zero-capacity buffer, which would cause unexpected behavior.
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &BufferedQueue[T]{
		ch:      make(chan T, bufferSize),
		done:    make(chan struct{}),
		settled: make(chan struct{}),
	}
}

// enter registers a sender. It fails once the queue is closed, so the
// WaitGroup never sees Add after Close started waiting on it.
func (q *BufferedQueue[T]) enter() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.inflight.Add(1)
	return true
}

// Push blocks until val is buffered or the queue is closed.
func (q *BufferedQueue[T]) Push(val T) error {
	if !q.enter() {
		return boundedqueue.ErrClosed
	}
	defer q.inflight.Done()

	select {
	case q.ch <- val:
		return nil
	case <-q.done:
		return boundedqueue.ErrClosed
	}
}

// TryPush reports false with a nil error when the buffer is full.
func (q *BufferedQueue[T]) TryPush(val T) (bool, error) {
	if !q.enter() {
		return false, boundedqueue.ErrClosed
	}
	defer q.inflight.Done()

	select {
	case q.ch <- val:
		return true, nil
	default:
		return false, nil
	}
}

// Pop blocks until an element is available. After Close it keeps
// draining and returns ErrClosed once the buffer is empty.
func (q *BufferedQueue[T]) Pop() (T, error) {
	select {
	case val := <-q.ch:
		return val, nil
	case <-q.settled:
		return q.drainOne()
	}
}

// TryPop returns ErrClosed only when the queue is closed and empty.
func (q *BufferedQueue[T]) TryPop() (T, bool, error) {
	select {
	case val := <-q.ch:
		return val, true, nil
	default:
	}
	select {
	case <-q.settled:
		val, err := q.drainOne()
		return val, err == nil, err
	default:
		var zero T
		return zero, false, nil
	}
}

// drainOne is only valid after settled is closed: the channel can no
// longer grow, so an empty channel means end of stream.
func (q *BufferedQueue[T]) drainOne() (T, error) {
	select {
	case val := <-q.ch:
		return val, nil
	default:
		var zero T
		return zero, boundedqueue.ErrClosed
	}
}

// Close rejects new pushes and returns once every in-flight send has
// either landed or given up, so the buffer can no longer grow.
// Calling it again waits for the same point.
func (q *BufferedQueue[T]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.settled
		return
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	// Blocked senders select on done, so this wait is bounded.
	q.inflight.Wait()
	close(q.settled)
}

// Closed reports whether Close has been called.
func (q *BufferedQueue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Cap returns the channel capacity.
func (q *BufferedQueue[T]) Cap() uint64 {
	return uint64(cap(q.ch))
}

func (q *BufferedQueue[T]) FreeSlots() uint64 {
	return uint64(cap(q.ch) - len(q.ch))
}

func (q *BufferedQueue[T]) UsedSlots() uint64 {
	return uint64(len(q.ch))
}
