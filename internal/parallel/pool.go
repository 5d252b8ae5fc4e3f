// Package parallel provides a bounded worker pool for fanning
// independent SMT cluster solves out across goroutines.
package parallel

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// ErrPoolShutdown is returned when trying to submit tasks to a shutdown pool.
var ErrPoolShutdown = fmt.Errorf("worker pool has been shutdown")

// StaticWorkerPool is a fixed-size worker pool without dynamic scaling:
// every cluster solve submitted to it is independent of every other
// (no shared variables by construction), so a static pool with no
// scaling heuristics is enough.
type StaticWorkerPool struct {
	maxWorkers   int
	taskChan     chan func()
	workerWg     sync.WaitGroup
	shutdownChan chan struct{}
	once         sync.Once
}

// NewStaticWorkerPool creates a new static worker pool with fixed size.
func NewStaticWorkerPool(maxWorkers int) *StaticWorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU()
	}

	pool := &StaticWorkerPool{
		maxWorkers:   maxWorkers,
		taskChan:     make(chan func(), maxWorkers*2),
		shutdownChan: make(chan struct{}),
	}

	for i := 0; i < maxWorkers; i++ {
		pool.workerWg.Add(1)
		go pool.worker()
	}

	return pool
}

// worker is the main worker loop for the static pool.
func (swp *StaticWorkerPool) worker() {
	defer swp.workerWg.Done()

	for {
		select {
		case task := <-swp.taskChan:
			if task != nil {
				task()
			}
		case <-swp.shutdownChan:
			return
		}
	}
}

// Submit submits a task to the static worker pool.
func (swp *StaticWorkerPool) Submit(ctx context.Context, task func()) error {
	select {
	case <-swp.shutdownChan:
		return ErrPoolShutdown
	default:
	}
	select {
	case swp.taskChan <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-swp.shutdownChan:
		return ErrPoolShutdown
	}
}

// Shutdown shuts down the static worker pool, waiting for in-flight
// tasks to finish.
func (swp *StaticWorkerPool) Shutdown() {
	swp.once.Do(func() {
		close(swp.shutdownChan)
		close(swp.taskChan)
		swp.workerWg.Wait()
	})
}

// GetWorkerCount returns the number of workers.
func (swp *StaticWorkerPool) GetWorkerCount() int {
	return swp.maxWorkers
}

// GetQueueDepth returns the current queue depth.
func (swp *StaticWorkerPool) GetQueueDepth() int {
	return len(swp.taskChan)
}

// GetMaxWorkers returns the maximum workers (same as current for a
// static pool).
func (swp *StaticWorkerPool) GetMaxWorkers() int {
	return swp.maxWorkers
}
