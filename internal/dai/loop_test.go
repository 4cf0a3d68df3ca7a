package dai

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsTasksInOrder(t *testing.T) {
	loop := NewLoop(0)
	defer loop.Close()

	var (
		mu    sync.Mutex
		order []int
	)
	for i := range 10 {
		require.True(t, loop.Post(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}
	require.NoError(t, loop.Do(context.Background(), func() {}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestLoopExecuting(t *testing.T) {
	loop := NewLoop(0)
	defer loop.Close()

	var inside bool
	require.NoError(t, loop.Do(context.Background(), func() { inside = loop.Executing() }))
	assert.True(t, inside)
	assert.False(t, loop.Executing())
}

func TestLoopClose(t *testing.T) {
	loop := NewLoop(0)
	loop.Close()
	loop.Close()

	assert.False(t, loop.Post(func() {}))
	assert.ErrorIs(t, loop.Do(context.Background(), func() {}), ErrLoopClosed)
}

func TestLoopDoHonoursContext(t *testing.T) {
	loop := NewLoop(1)
	defer loop.Close()

	block := make(chan struct{})
	defer close(block)
	require.True(t, loop.Post(func() { <-block }))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := loop.Do(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLoopExecutingIgnoresOtherGoroutines(t *testing.T) {
	loop := NewLoop(0)
	defer loop.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	require.True(t, loop.Post(func() {
		close(started)
		<-release
	}))
	<-started
	assert.False(t, loop.Executing(), "a task is running, but not on this goroutine")
	close(release)

	var inside, other bool
	require.NoError(t, loop.Do(context.Background(), func() {
		inside = loop.Executing()
		done := make(chan struct{})
		go func() {
			defer close(done)
			other = loop.Executing()
		}()
		<-done
	}))
	assert.True(t, inside)
	assert.False(t, other)
}
