package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// Pool manages a pool of workers that execute jobs concurrently.
// Submit must not be called after Close.
type Pool struct {
	workers    int
	jobQueue   chan Job
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
}

// NewPool creates a new worker pool bound to ctx
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan Job, workers*2),
		results:    make(chan Result, workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start starts the worker goroutines
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			result := job.Execute(p.ctx)
			select {
			case p.results <- result:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit queues a job. It returns false if the pool was cancelled.
func (p *Pool) Submit(job Job) bool {
	if p.ctx.Err() != nil {
		return false
	}
	select {
	case <-p.ctx.Done():
		return false
	case p.jobQueue <- job:
		return true
	}
}

// Close signals that no more jobs will be submitted.
// Results is closed once every worker has exited.
func (p *Pool) Close() {
	close(p.jobQueue)
	go func() {
		p.wg.Wait()
		p.closeResults()
	}()
}

// Results streams job results as they complete
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Shutdown cancels outstanding work and waits for workers to exit
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.wg.Wait()
	p.closeResults()
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}

type indexedJob[T any] struct {
	index int
	fn    func(ctx context.Context, i int) T
}

func (j *indexedJob[T]) Execute(ctx context.Context) Result {
	return indexedResult[T]{index: j.index, value: j.fn(ctx, j.index)}
}

type indexedResult[T any] struct {
	index int
	value T
}

func (r indexedResult[T]) GetError() error { return nil }

// Map runs fn for every index in [0, n) on a pool of workers and returns
// the values in index order, independent of completion order.
// If ctx is cancelled the partially filled slice is returned with ctx.Err().
func Map[T any](ctx context.Context, workers, n int, fn func(ctx context.Context, i int) T) ([]T, error) {
	out := make([]T, n)
	if n == 0 {
		return out, nil
	}
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			out[i] = fn(ctx, i)
		}
		return out, nil
	}

	pool := NewPool(ctx, workers)
	defer pool.cancelFunc()
	pool.Start()

	go func() {
		for i := 0; i < n; i++ {
			if !pool.Submit(&indexedJob[T]{index: i, fn: fn}) {
				break
			}
		}
		pool.Close()
	}()

	for result := range pool.Results() {
		r := result.(indexedResult[T])
		out[r.index] = r.value
	}

	return out, ctx.Err()
}
