// Package loop provides the single-goroutine event loop the preview
// controller runs on. Handlers and continuations are posted as closures and
// executed one at a time in posting order.
package loop

import (
	"context"
	"sync"
)

// Loop runs posted functions sequentially on one goroutine.
type Loop struct {
	mu      sync.Mutex
	pending []func()
	closed  bool

	wake chan struct{}
	done chan struct{}
}

func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post queues fn for execution. It reports false once the loop has stopped.
// Post never blocks and is safe to call from the loop itself.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Call posts fn and waits for it to run. It must not be called from the
// loop goroutine. It returns false if the loop stopped before fn ran.
func (l *Loop) Call(fn func()) bool {
	ran := make(chan struct{})
	if !l.Post(func() {
		fn()
		close(ran)
	}) {
		return false
	}

	select {
	case <-ran:
		return true
	case <-l.done:
		return false
	}
}

// Done is closed after Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Run executes posted functions until ctx is cancelled. Work still queued
// at that point is discarded.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.closed = true
			l.pending = nil
			l.mu.Unlock()
			return ctx.Err()

		case <-l.wake:
			for {
				l.mu.Lock()
				if len(l.pending) == 0 {
					l.mu.Unlock()
					break
				}
				batch := l.pending
				l.pending = nil
				l.mu.Unlock()

				for _, fn := range batch {
					if ctx.Err() != nil {
						break
					}
					fn()
				}
			}
		}
	}
}
