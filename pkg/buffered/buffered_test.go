package buffered

import (
	"sync"
	"testing"
	"time"

	"github.com/i5heu/GoBlockingQueue/pkg/boundedqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinimumCapacity(t *testing.T) {
	q := New[int](0)
	assert.Equal(t, uint64(1), q.Cap())

	ok, err := q.TryPush(1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = q.TryPush(2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCloseDrainsThenReportsClosed(t *testing.T) {
	q := New[int](4)
	require.NoError(t, q.Push(1))
	require.NoError(t, q.Push(2))
	q.Close()
	q.Close()
	assert.True(t, q.Closed())

	assert.ErrorIs(t, q.Push(3), boundedqueue.ErrClosed)

	for want := 1; want <= 2; want++ {
		v, err := q.Pop()
		require.NoError(t, err)
		assert.Equal(t, want, v)
	}
	_, err := q.Pop()
	assert.ErrorIs(t, err, boundedqueue.ErrClosed)
}

func TestCloseReleasesBlockedPush(t *testing.T) {
	q := New[int](1)
	require.NoError(t, q.Push(1))

	errCh := make(chan error, 1)
	go func() { errCh <- q.Push(2) }()

	select {
	case <-errCh:
		t.Fatal("Push on a full queue returned early")
	case <-time.After(50 * time.Millisecond):
	}
	q.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, boundedqueue.ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not release the blocked Push")
	}
	v, err := q.Pop()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestConcurrentCloseKeepsAcceptedItems(t *testing.T) {
	for round := 0; round < 50; round++ {
		q := New[int](2)
		var accepted sync.Map
		var wg sync.WaitGroup
		for p := 0; p < 4; p++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				for i := 0; ; i++ {
					v := p*1_000_000 + i
					if q.Push(v) != nil {
						return
					}
					accepted.Store(v, true)
				}
			}(p)
		}

		popped := make(map[int]bool)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				v, err := q.Pop()
				if err != nil {
					return
				}
				popped[v] = true
			}
		}()

		time.Sleep(time.Millisecond)
		q.Close()
		wg.Wait()
		<-done

		accepted.Range(func(k, _ any) bool {
			assert.True(t, popped[k.(int)], "round %d: accepted %d never popped", round, k)
			return true
		})
	}
}

func TestTryPopAfterCloseReportsClosed(t *testing.T) {
	q := New[int](4)
	q.Close()
	for i := 0; i < 1000; i++ {
		v, ok, err := q.TryPop()
		require.ErrorIs(t, err, boundedqueue.ErrClosed, "attempt %d", i)
		assert.False(t, ok)
		assert.Zero(t, v)
	}
}

func TestTryPopDrainsBeforeReportingClosed(t *testing.T) {
	for round := 0; round < 200; round++ {
		q := New[int](4)
		require.NoError(t, q.Push(1))
		require.NoError(t, q.Push(2))
		q.Close()

		for want := 1; want <= 2; want++ {
			v, ok, err := q.TryPop()
			require.NoError(t, err, "round %d", round)
			require.True(t, ok, "round %d", round)
			assert.Equal(t, want, v)
		}
		_, ok, err := q.TryPop()
		require.ErrorIs(t, err, boundedqueue.ErrClosed, "round %d", round)
		assert.False(t, ok)
	}
}

func TestCloseWaitsForBlockedPush(t *testing.T) {
	q := New[int](1)
	require.NoError(t, q.Push(1))

	errCh := make(chan error, 1)
	go func() { errCh <- q.Push(2) }()
	time.Sleep(20 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		q.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return while a Push was blocked")
	}
	assert.ErrorIs(t, <-errCh, boundedqueue.ErrClosed)

	v, ok, err := q.TryPop()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, v)
	_, _, err = q.TryPop()
	assert.ErrorIs(t, err, boundedqueue.ErrClosed)
}
