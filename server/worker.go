package server

import (
	"context"
	"fmt"
)

// runRequest represents a unit of work to be executed on the worker goroutine.
type runRequest struct {
	fn   func() (any, error)
	done chan runResult
}

// runResult holds the return value from a worker job.
type runResult struct {
	value any
	err   error
}

// Worker serializes program executions through a single goroutine. Each
// run gets a fresh VM; the worker only bounds how many run at once.
type Worker struct {
	requests chan runRequest
	quit     chan struct{}
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker() *Worker {
	w := &Worker{
		requests: make(chan runRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs a job, recovering from panics.
func (w *Worker) execute(fn func() (any, error)) runResult {
	var result runResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = fmt.Errorf("%v", r)
			}
		}()
		result.value, result.err = fn()
	}()
	return result
}

// Do submits a job and blocks until it completes or ctx is done. A job
// that was already queued still runs; its result is discarded.
func (w *Worker) Do(ctx context.Context, fn func() (any, error)) (any, error) {
	req := runRequest{
		fn:   fn,
		done: make(chan runResult, 1),
	}
	select {
	case w.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-w.quit:
		return nil, fmt.Errorf("server: worker stopped")
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop shuts down the worker goroutine.
func (w *Worker) Stop() {
	close(w.quit)
}
