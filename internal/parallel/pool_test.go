package parallel

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStaticWorkerPoolRunsAllSubmittedTasks(t *testing.T) {
	pool := NewStaticWorkerPool(4)
	defer pool.Shutdown()

	var completed int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		err := pool.Submit(context.Background(), func() {
			defer wg.Done()
			atomic.AddInt64(&completed, 1)
		})
		require.NoError(t, err)
	}
	wg.Wait()
	require.Equal(t, int64(20), completed)
}

func TestStaticWorkerPoolDefaultsWorkerCountWhenNonPositive(t *testing.T) {
	pool := NewStaticWorkerPool(0)
	defer pool.Shutdown()
	require.Greater(t, pool.GetWorkerCount(), 0)
}

func TestStaticWorkerPoolRejectsSubmitAfterShutdown(t *testing.T) {
	pool := NewStaticWorkerPool(2)
	pool.Shutdown()
	err := pool.Submit(context.Background(), func() {})
	require.ErrorIs(t, err, ErrPoolShutdown)
}

func TestStaticWorkerPoolSubmitRespectsContextCancellation(t *testing.T) {
	pool := NewStaticWorkerPool(1)
	defer pool.Shutdown()

	block := make(chan struct{})
	defer close(block)

	// One task occupies the sole worker; the queue buffer (2x workers)
	// absorbs two more before Submit would have to wait for room.
	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Submit(context.Background(), func() { <-block }))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Submit(ctx, func() { <-block })
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
