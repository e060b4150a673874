package queue_test

import (
	"testing"

	"github.com/i5heu/GoBlockingQueue/internal/queue"
	"github.com/i5heu/GoBlockingQueue/pkg/boundedqueue"
	"github.com/i5heu/GoBlockingQueue/pkg/buffered"
	"github.com/stretchr/testify/assert"
)

// Compile-time checks that every implementation satisfies the contract.
var (
	_ queue.QueueValidationInterface[int]     = (*boundedqueue.BoundedBlockingQueue[int])(nil)
	_ queue.QueueValidationInterface[*string] = (*buffered.BufferedQueue[*string])(nil)
)

func TestImplementationsShareContract(t *testing.T) {
	impls := map[string]queue.QueueValidationInterface[int]{
		"boundedqueue": boundedqueue.New[int](2),
		"buffered":     buffered.New[int](2),
	}
	for name, q := range impls {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, q.Push(7))
			assert.Equal(t, uint64(1), q.UsedSlots())
			v, err := q.Pop()
			assert.NoError(t, err)
			assert.Equal(t, 7, v)
			q.Close()
			assert.Error(t, q.Push(8))
		})
	}
}
