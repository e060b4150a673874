package testbench

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/i5heu/GoBlockingQueue/internal/queue"
	"github.com/i5heu/GoBlockingQueue/pkg/boundedqueue"
)

// Config is only about concurrency: how many producers, how many consumers.
type Config struct {
	NumProducers int `yaml:"producers"`
	NumConsumers int `yaml:"consumers"`
}

// normalized returns cfg with at least one producer and one consumer. A run
// without consumers would block its producers forever on a bounded queue.
func (cfg Config) normalized() Config {
	if cfg.NumProducers < 1 {
		cfg.NumProducers = 1
	}
	if cfg.NumConsumers < 1 {
		cfg.NumConsumers = 1
	}
	return cfg
}

// TaskSource hands out task ids 1..total. One source belongs to one run and
// is passed to every producer of that run.
type TaskSource struct {
	mu        sync.Mutex
	next      int
	remaining int
}

// NewTaskSource creates a source for total tasks.
func NewTaskSource(total int) *TaskSource {
	if total < 0 {
		total = 0
	}
	return &TaskSource{next: 1, remaining: total}
}

// Next returns the next task id, or false once the supply is exhausted.
func (s *TaskSource) Next() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remaining <= 0 {
		return 0, false
	}
	id := s.next
	s.next++
	s.remaining--
	return id, true
}

// Remaining returns how many ids have not been handed out yet.
func (s *TaskSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Collector records every value consumers take off the queue.
type Collector[T any] struct {
	mu     sync.Mutex
	values []T
}

func (c *Collector[T]) Add(v T) {
	c.mu.Lock()
	c.values = append(c.values, v)
	c.mu.Unlock()
}

// Values returns a copy of everything collected so far.
func (c *Collector[T]) Values() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.values))
	copy(out, c.values)
	return out
}

func (c *Collector[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

// Produce pushes one generated value per task id until src is exhausted or
// the queue rejects a push because it was closed. It returns how many
// values were accepted.
func Produce[T any, Q queue.QueueValidationInterface[T]](q Q, src *TaskSource, valueGenerator func(int) T) (int, error) {
	pushed := 0
	for {
		id, ok := src.Next()
		if !ok {
			return pushed, nil
		}
		if err := q.Push(valueGenerator(id)); err != nil {
			return pushed, err
		}
		pushed++
	}
}

// Consume pops until the queue reports end of stream. Every value is
// handed to sink when sink is non-nil. It returns how many values were
// popped.
func Consume[T any, Q queue.QueueValidationInterface[T]](q Q, sink *Collector[T]) int {
	popped := 0
	for {
		v, err := q.Pop()
		if errors.Is(err, boundedqueue.ErrClosed) {
			return popped
		}
		if sink != nil {
			sink.Add(v)
		}
		popped++
	}
}

// TaskResult is the outcome of RunTaskTest.
type TaskResult[T any] struct {
	Produced int64
	Consumed int64
	Elapsed  time.Duration
	Values   []T
	// Rejected counts producers that stopped early because the queue was
	// closed underneath them.
	Rejected int64
}

// RunTaskTest moves numTasks generated values from cfg.NumProducers
// producers to cfg.NumConsumers consumers. The queue is closed exactly once,
// after the last producer returns, so every consumer terminates.
func RunTaskTest[T any, Q queue.QueueValidationInterface[T]](
	q Q,
	cfg Config,
	numTasks int,
	valueGenerator func(int) T,
) TaskResult[T] {
	cfg = cfg.normalized()
	src := NewTaskSource(numTasks)
	sink := &Collector[T]{}

	var produced, consumed, rejected int64
	start := time.Now()

	var prodWg sync.WaitGroup
	prodWg.Add(cfg.NumProducers)
	for i := 0; i < cfg.NumProducers; i++ {
		go func() {
			defer prodWg.Done()
			n, err := Produce[T](q, src, valueGenerator)
			atomic.AddInt64(&produced, int64(n))
			if err != nil {
				atomic.AddInt64(&rejected, 1)
			}
		}()
	}

	var consWg sync.WaitGroup
	consWg.Add(cfg.NumConsumers)
	for i := 0; i < cfg.NumConsumers; i++ {
		go func() {
			defer consWg.Done()
			atomic.AddInt64(&consumed, int64(Consume[T](q, sink)))
		}()
	}

	prodWg.Wait()
	q.Close()
	consWg.Wait()

	return TaskResult[T]{
		Produced: atomic.LoadInt64(&produced),
		Consumed: atomic.LoadInt64(&consumed),
		Elapsed:  time.Since(start),
		Values:   sink.Values(),
		Rejected: atomic.LoadInt64(&rejected),
	}
}

// RunTimedTest spawns producers and consumers that run for the specified
// duration, measuring how many messages are actually enqueued/dequeued
// in that window. Once the context expires, producers stop, the queue is
// closed and consumers drain any remaining messages until end of stream.
// Returns the total messages enqueued, total consumed, and the actual elapsed time.
func RunTimedTest[T any, Q queue.QueueValidationInterface[T]](
	q Q,
	cfg Config,
	testDuration time.Duration,
	valueGenerator func(int) T,
) (producedCount int64, consumedCount int64, elapsed time.Duration) {

	cfg = cfg.normalized()

	// Create a context that will cancel after testDuration.
	ctx, cancel := context.WithTimeout(context.Background(), testDuration)
	defer cancel()

	var totalProduced int64
	var totalConsumed int64

	start := time.Now()

	var msgIndex int64
	var prodWg sync.WaitGroup
	prodWg.Add(cfg.NumProducers)

	// productionDone will be set to 1 when test duration expires.
	var productionDone int32 = 0

	// Launch a goroutine that waits for the test duration to expire and then
	// signals production is done.
	go func() {
		<-ctx.Done()
		atomic.StoreInt32(&productionDone, 1)
	}()

	// Spawn producers.
	for i := 0; i < cfg.NumProducers; i++ {
		go func() {
			defer prodWg.Done()
			for atomic.LoadInt32(&productionDone) == 0 {
				idx := atomic.AddInt64(&msgIndex, 1) - 1
				if err := q.Push(valueGenerator(int(idx))); err != nil {
					return
				}
				atomic.AddInt64(&totalProduced, 1)
			}
		}()
	}

	// Spawn consumers. They stop only on end of stream.
	var consWg sync.WaitGroup
	consWg.Add(cfg.NumConsumers)
	for i := 0; i < cfg.NumConsumers; i++ {
		go func() {
			defer consWg.Done()
			atomic.AddInt64(&totalConsumed, int64(Consume[T](q, nil)))
		}()
	}

	// Wait for the context to expire.
	<-ctx.Done()

	// Producers blocked on a full queue need consumers to make room, which
	// they keep doing until Close.
	prodWg.Wait()
	q.Close()
	consWg.Wait()

	elapsed = time.Since(start)
	producedCount = atomic.LoadInt64(&totalProduced)
	consumedCount = atomic.LoadInt64(&totalConsumed)
	return producedCount, consumedCount, elapsed
}
