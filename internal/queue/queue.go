package queue

// QueueValidationInterface is a *type constraint* that ensures any type Q has
// these methods. We never store Q in a runtime interface—
// we only use QueueValidationInterface at compile time to ensure matching signatures.
type QueueValidationInterface[T any] interface {
	// Push adds an element to the queue and blocks if the queue is full.
	// It returns boundedqueue.ErrClosed once the queue is closed.
	Push(T) error

	// Pop removes and returns the oldest element, blocking while the queue is empty.
	// After Close it keeps returning elements until the queue is drained, then ErrClosed.
	Pop() (T, error)

	// TryPush adds an element without blocking; false with a nil error means full.
	TryPush(T) (bool, error)

	// TryPop removes the oldest element without blocking; false with a nil error means empty.
	TryPop() (T, bool, error)

	// Close stops accepting new elements and wakes every blocked caller.
	Close()

	// FreeSlots returns how many more elements can be enqueued before the queue is full.
	FreeSlots() uint64

	// UsedSlots returns how many elements are currently queued.
	UsedSlots() uint64
}
