// Package worker provides the bounded-concurrency primitives used to fan
// out per-patient analysis against the external reasoning service.
package worker

import (
	"context"
	"sync"
)

// Task is one unit of per-patient work. Tasks record their own results;
// the pool only bounds concurrency and waits for completion.
type Task func(ctx context.Context)

// Pool runs tasks with a fixed concurrency limit. Every submitted task
// runs to completion (or observes ctx cancellation) before Run returns.
type Pool struct {
	limit int
}

// NewPool creates a pool with the given concurrency limit.
func NewPool(limit int) *Pool {
	if limit <= 0 {
		limit = 1
	}
	return &Pool{limit: limit}
}

// Run executes all tasks, at most limit at a time, and waits for them all.
// Tasks started after ctx is cancelled are expected to check ctx
// themselves and return quickly.
func (p *Pool) Run(ctx context.Context, tasks []Task) {
	if len(tasks) == 0 {
		return
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, p.limit)

	for _, task := range tasks {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			t(ctx)
		}(task)
	}

	wg.Wait()
}
