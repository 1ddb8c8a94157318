// Package loop provides the serial completion-callback executor that all
// asynchronous file, resource, and cache completions are marshaled onto.
//
// A Loop runs a single goroutine that executes posted callbacks one at a
// time, in order. This gives the pipeline its run-to-completion model: no
// two callbacks for the same job ever run concurrently, so job state needs
// no locking. Blocking work (the worker protocol exchanges) happens off
// the loop and posts its result back.
package loop

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrStopped is returned by Post after the loop has been stopped.
var ErrStopped = errors.New("loop: stopped")

// DefaultQueueSize is the default capacity of the pending-callback queue.
const DefaultQueueSize = 128

// Loop is a single-goroutine serial executor for completion callbacks.
type Loop struct {
	tasks  chan func()
	stopCh chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	stopped bool
}

// Option configures a Loop.
type Option func(*Loop)

// WithQueueSize sets the capacity of the pending-callback queue.
func WithQueueSize(n int) Option {
	return func(l *Loop) { l.tasks = make(chan func(), n) }
}

// WithLogger sets the logger for the loop.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) { l.logger = logger }
}

// New creates a Loop. Call Start before posting.
func New(opts ...Option) *Loop {
	l := &Loop{
		tasks:  make(chan func(), DefaultQueueSize),
		stopCh: make(chan struct{}),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start launches the loop goroutine. It returns immediately.
// Starting an already-started loop is a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running || l.stopped {
		return
	}
	l.running = true

	l.wg.Add(1)
	go l.run()
}

// Stop drains already-posted callbacks and stops the loop goroutine.
// If the context expires first, remaining callbacks are abandoned.
// Post returns ErrStopped after Stop has been called.
func (l *Loop) Stop(ctx context.Context) error {
	l.mu.Lock()
	if !l.running {
		l.stopped = true
		l.mu.Unlock()
		return nil
	}
	l.running = false
	l.stopped = true
	l.mu.Unlock()

	close(l.stopCh)

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		l.logger.Warn("loop shutdown timed out, abandoning pending callbacks")
		return ctx.Err()
	}
}

// Post schedules fn to run on the loop goroutine. Callbacks run in the
// order they were posted. Post blocks only when the queue is full.
func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrStopped
	}
	l.mu.Unlock()

	select {
	case l.tasks <- fn:
		return nil
	case <-l.stopCh:
		return ErrStopped
	}
}

// run executes callbacks until the loop is stopped, then drains whatever
// is already queued.
func (l *Loop) run() {
	defer l.wg.Done()

	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-l.stopCh:
			for {
				select {
				case fn := <-l.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}
