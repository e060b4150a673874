// Package boundedqueue provides a blocking, closable MPMC FIFO queue with an
// optional capacity bound.
package boundedqueue

import (
	"errors"
	"math"
	"sync"
)

// Unbounded is the capacity value that lets the queue grow without limit.
const Unbounded uint64 = 0

// initialUnboundedSlots is the ring size an unbounded queue starts with.
const initialUnboundedSlots = 16

// ErrClosed is returned by Push once the queue has been closed, and by Pop
// once the queue has been closed and every remaining element was drained.
var ErrClosed = errors.New("boundedqueue: queue is closed")

// BoundedBlockingQueue is a mutex/condition-variable MPMC FIFO queue.
// Push blocks while the queue is full, Pop blocks while it is empty, and
// Close wakes every waiter so consumers can drain and then stop.
type BoundedBlockingQueue[T any] struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	buffer   []T
	head     uint64
	count    uint64
	capacity uint64 // 0 means unbounded
	closed   bool
}

// New creates a queue holding at most capacity elements.
// A capacity of Unbounded (0) creates a queue without an upper bound.
func New[T any](capacity uint64) *BoundedBlockingQueue[T] {
	slots := capacity
	if capacity == Unbounded {
		slots = initialUnboundedSlots
	}
	q := &BoundedBlockingQueue[T]{
		buffer:   make([]T, slots),
		capacity: capacity,
	}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// NewUnbounded is shorthand for New[T](Unbounded).
func NewUnbounded[T any]() *BoundedBlockingQueue[T] {
	return New[T](Unbounded)
}

// Push appends item to the tail of the queue. If the queue is bounded and
// full, Push blocks until a slot frees up or the queue is closed.
func (q *BoundedBlockingQueue[T]) Push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for !q.closed && q.full() {
		q.notFull.Wait()
	}
	if q.closed {
		return ErrClosed
	}
	q.append(item)
	return nil
}

// TryPush is the non-blocking form of Push. It reports false with a nil
// error when the queue is full.
func (q *BoundedBlockingQueue[T]) TryPush(item T) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, ErrClosed
	}
	if q.full() {
		return false, nil
	}
	q.append(item)
	return true, nil
}

// Pop removes and returns the head of the queue, blocking while the queue
// is empty and open. Remaining elements are still returned after Close;
// ErrClosed is only reported once the queue is both closed and empty.
func (q *BoundedBlockingQueue[T]) Pop() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if q.count == 0 {
		var zero T
		return zero, ErrClosed
	}
	return q.remove(), nil
}

// TryPop is the non-blocking form of Pop. An empty open queue yields the
// zero value, false and a nil error.
func (q *BoundedBlockingQueue[T]) TryPop() (T, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		if q.closed {
			return zero, false, ErrClosed
		}
		return zero, false, nil
	}
	return q.remove(), true, nil
}

// Close marks the queue closed and wakes all blocked producers and
// consumers. Calling Close more than once has no further effect.
func (q *BoundedBlockingQueue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
}

// Closed reports whether Close has been called.
func (q *BoundedBlockingQueue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Cap returns the configured capacity, or Unbounded.
func (q *BoundedBlockingQueue[T]) Cap() uint64 {
	return q.capacity
}

// UsedSlots returns how many elements are currently queued.
func (q *BoundedBlockingQueue[T]) UsedSlots() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// FreeSlots returns how many more elements can be pushed before Push
// blocks. Unbounded queues always report math.MaxUint64.
func (q *BoundedBlockingQueue[T]) FreeSlots() uint64 {
	if q.capacity == Unbounded {
		return math.MaxUint64
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity - q.count
}

// full must be called with q.mu held.
func (q *BoundedBlockingQueue[T]) full() bool {
	return q.capacity != Unbounded && q.count == q.capacity
}

// append must be called with q.mu held and the queue not full.
func (q *BoundedBlockingQueue[T]) append(item T) {
	if q.count == uint64(len(q.buffer)) {
		q.grow()
	}
	tail := (q.head + q.count) % uint64(len(q.buffer))
	q.buffer[tail] = item
	q.count++
	q.notEmpty.Signal()
}

// remove must be called with q.mu held and q.count > 0.
func (q *BoundedBlockingQueue[T]) remove() T {
	var zero T
	item := q.buffer[q.head]
	q.buffer[q.head] = zero // drop the reference so the slot can be reused
	q.head = (q.head + 1) % uint64(len(q.buffer))
	q.count--
	q.notFull.Signal()
	return item
}

// grow doubles the ring of an unbounded queue, unwrapping it so the head
// lands at index 0.
func (q *BoundedBlockingQueue[T]) grow() {
	size := uint64(len(q.buffer))
	next := make([]T, size*2)
	n := copy(next, q.buffer[q.head:])
	copy(next[n:], q.buffer[:q.head])
	q.buffer = next
	q.head = 0
}
