package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[int](0)
	for i := 0; i < 10; i++ {
		q.Put(i)
	}
	require.Equal(t, 10, q.Len())

	for i := 0; i < 10; i++ {
		v, ok := q.Get(context.Background(), time.Second)
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_GetTimeout(t *testing.T) {
	q := New[string](0)

	start := time.Now()
	_, ok := q.Get(context.Background(), 50*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	_, ok = q.Get(context.Background(), 0)
	assert.False(t, ok)
}

func TestQueue_GetWakesOnPut(t *testing.T) {
	q := New[int](0)

	got := make(chan int, 1)
	go func() {
		v, ok := q.Get(context.Background(), 5*time.Second)
		if ok {
			got <- v
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Put(42)

	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer was not woken by Put")
	}
}

func TestQueue_GetCancelled(t *testing.T) {
	q := New[int](0)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := q.Get(ctx, time.Minute)
		assert.False(t, ok)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Get did not return after cancel")
	}
}

func TestQueue_BoundedBackpressure(t *testing.T) {
	q := New[int](2)
	q.Put(1)
	q.Put(2)

	require.ErrorIs(t, q.TryPut(3), ErrFull)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, q.PutContext(ctx, 3), context.DeadlineExceeded)

	unblocked := make(chan struct{})
	go func() {
		q.Put(3)
		close(unblocked)
	}()

	select {
	case <-unblocked:
		t.Fatal("Put on a full queue should block")
	case <-time.After(30 * time.Millisecond):
	}

	v, ok := q.Get(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, 1, v)

	select {
	case <-unblocked:
	case <-time.After(2 * time.Second):
		t.Fatal("Put was not released after Get")
	}
	assert.Equal(t, 2, q.Len())
}

func TestQueue_Join(t *testing.T) {
	q := New[int](0)
	for i := 0; i < 5; i++ {
		q.Put(i)
	}

	var processed sync.WaitGroup
	processed.Add(5)
	go func() {
		for i := 0; i < 5; i++ {
			if _, ok := q.Get(context.Background(), time.Second); ok {
				time.Sleep(5 * time.Millisecond)
				processed.Done()
				assert.NoError(t, q.TaskDone())
			}
		}
	}()

	joined := make(chan struct{})
	go func() {
		q.Join()
		close(joined)
	}()

	select {
	case <-joined:
	case <-time.After(3 * time.Second):
		t.Fatal("Join did not return")
	}
	processed.Wait()
	assert.Equal(t, 0, q.Unfinished())
	assert.ErrorIs(t, q.TaskDone(), ErrTaskDone)
}

func TestQueue_ConcurrentConsumers(t *testing.T) {
	q := New[int](0)
	const n = 200

	var mu sync.Mutex
	seen := make(map[int]bool)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, ok := q.Get(context.Background(), 100*time.Millisecond)
				if !ok {
					return
				}
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < n; i++ {
		q.Put(i)
	}
	wg.Wait()

	assert.Len(t, seen, n)
}
