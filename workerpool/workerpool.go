// Package workerpool runs CPU-bound tasks on a fixed set of goroutines, apart
// from the goroutines that accept requests.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned when submitting to a closed pool
var ErrClosed = errors.New("workerpool: closed")

// ErrTaskPanic marks tasks that panicked
var ErrTaskPanic = errors.New("workerpool: task panicked")

// PanicError carries the value and stack of a panicking task
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("workerpool: task panicked: %v", e.Value)
}

func (e *PanicError) Is(target error) bool { return target == ErrTaskPanic }

// Pool manages a fixed pool of goroutines
type Pool struct {
	numWorkers int
	workCh     chan func()
	stopCh     chan struct{}
	wg         sync.WaitGroup
	closed     atomic.Bool
	submitMu   sync.RWMutex
}

// New creates a pool with numWorkers goroutines; numWorkers <= 0 uses GOMAXPROCS
func New(numWorkers int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.GOMAXPROCS(0)
	}

	p := &Pool{
		numWorkers: numWorkers,
		workCh:     make(chan func(), numWorkers*2),
		stopCh:     make(chan struct{}),
	}

	p.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go p.worker()
	}
	return p
}

// Size returns the number of workers
func (p *Pool) Size() int { return p.numWorkers }

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			// Drain remaining work before exiting
			for {
				select {
				case task, ok := <-p.workCh:
					if !ok {
						return
					}
					task()
				default:
					return
				}
			}
		case task, ok := <-p.workCh:
			if !ok {
				return
			}
			task()
		}
	}
}

// Submit enqueues task, blocking while the queue is full
func (p *Pool) Submit(ctx context.Context, task func()) error {
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()

	if p.closed.Load() {
		return ErrClosed
	}

	select {
	case p.workCh <- task:
		return nil
	case <-p.stopCh:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work, runs what is queued and waits for the workers
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}

	p.submitMu.Lock()
	close(p.stopCh)
	close(p.workCh)
	p.submitMu.Unlock()

	p.wg.Wait()
}

type result[T any] struct {
	val T
	err error
}

// Do runs fn on the pool and waits for its result or for ctx to end.
//
// When ctx ends first, Do returns ctx.Err() and the eventual result of fn is
// dropped. A task whose ctx has ended before a worker picks it up is not run.
// A panic in fn is returned as a *PanicError
func Do[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var zero T
	resCh := make(chan result[T], 1)

	task := func() {
		if ctx.Err() != nil {
			resCh <- result[T]{err: ctx.Err()}
			return
		}
		defer func() {
			if r := recover(); r != nil {
				resCh <- result[T]{err: &PanicError{Value: r, Stack: debug.Stack()}}
			}
		}()
		v, err := fn()
		resCh <- result[T]{val: v, err: err}
	}

	if err := p.Submit(ctx, task); err != nil {
		return zero, err
	}

	select {
	case res := <-resCh:
		return res.val, res.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
