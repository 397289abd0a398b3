// Package pool runs independent tasks on a fixed number of workers and
// joins them in completion order.
package pool

import (
	"context"
	"sync"

	"github.com/litmuschaos/stretch-dr-go/pkg/log"
	"golang.org/x/sync/semaphore"
)

// DefaultWorkers is the worker count used by the fault scenarios
const DefaultWorkers = 5

// Task is a unit of work submitted to the pool
type Task func(ctx context.Context) error

// Pool bounds concurrency with a weighted semaphore. Tasks start as soon as a
// worker is free; they are never cancelled by the pool.
type Pool struct {
	sem     *semaphore.Weighted
	results chan error
	wg      sync.WaitGroup

	mu      sync.Mutex
	pending int
}

// New returns a pool with the given number of workers
func New(workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pool{
		sem:     semaphore.NewWeighted(int64(workers)),
		results: make(chan error),
	}
}

// Submit schedules the task, it does not block on worker availability
func (p *Pool) Submit(ctx context.Context, task Task) {
	p.mu.Lock()
	p.pending++
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		// acquisition only fails on a done context, the task is then reported with that error
		if err := p.sem.Acquire(ctx, 1); err != nil {
			p.results <- err
			return
		}
		err := task(ctx)
		p.sem.Release(1)
		p.results <- err
	}()
}

// Join consumes results in completion order. It returns the first error as
// soon as it is observed, otherwise nil once every task has resolved.
// Tasks still running after an early return keep running to completion.
func (p *Pool) Join() error {
	p.mu.Lock()
	remaining := p.pending
	p.pending = 0
	p.mu.Unlock()

	for remaining > 0 {
		err := <-p.results
		remaining--
		if err != nil {
			go p.drain(remaining)
			return err
		}
	}
	return nil
}

// Wait blocks until every submitted task has returned, it must follow Join
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) drain(remaining int) {
	for ; remaining > 0; remaining-- {
		if err := <-p.results; err != nil {
			log.Warnf("[Pool]: task failed after the join returned, err: %v", err)
		}
	}
}
