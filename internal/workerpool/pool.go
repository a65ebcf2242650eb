// Package workerpool provides the bounded-parallelism fan-out used by the
// ingestion orchestrator (C6, one worker per chunk task) and the training
// orchestrator (C8, one worker per horizon), mirroring the teacher's
// worker-pool-over-channels shape in engine/internal/pipeline without the
// streaming-stage machinery this spec doesn't need.
package workerpool

import "sync"

// Run executes one task per item in tasks with at most width goroutines
// in flight at once, and returns all results in the same order as tasks.
// Each task must be safe to call concurrently with the others.
func Run[T any, R any](width int, tasks []T, fn func(T) R) []R {
	if width < 1 {
		width = 1
	}
	results := make([]R, len(tasks))
	sem := make(chan struct{}, width)
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, task T) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = fn(task)
		}(i, task)
	}
	wg.Wait()
	return results
}
