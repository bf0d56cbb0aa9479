// Package loop provides the single-goroutine executor the broker and the
// relay workers run on.
//
// All state owned by a Loop user is touched only from functions posted to
// that Loop, so it needs no locking of its own.
package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrStopped is returned when work is submitted to a stopped loop.
	ErrStopped = errors.New("loop: stopped")

	// ErrRunning is returned when Run is called on a loop that is already
	// running.
	ErrRunning = errors.New("loop: already running")
)

// Loop executes posted functions one at a time in submission order.
//
// Thread safety: Post, Call and Stop are safe for concurrent use. Run must
// be called once.
type Loop struct {
	// mu guards queue.
	mu    sync.Mutex
	queue []func()

	// wake has capacity one and is signalled whenever queue becomes
	// non-empty.
	wake chan struct{}

	// done is closed by Stop.
	done     chan struct{}
	stopOnce sync.Once

	// running is set while Run executes.
	running atomic.Bool

	// stopped is set once Run has returned or Stop was called; no more work
	// is accepted afterwards.
	stopped atomic.Bool
}

// New creates an idle loop. Work may be posted before Run starts; it
// executes once Run is called.
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post queues fn. It never blocks. It returns false if the loop has
// stopped and fn was dropped.
func (l *Loop) Post(fn func()) bool {
	if fn == nil {
		return true
	}
	l.mu.Lock()
	if l.stopped.Load() {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Call runs fn on the loop and waits for it to finish. It must not be
// called from the loop goroutine itself.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes queued work until ctx is cancelled or Stop is called.
// Work still queued at that point is drained before Run returns.
// Cancellation is a clean exit and yields a nil error.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)

	for {
		l.runPending()
		select {
		case <-ctx.Done():
			l.shutdown()
			return nil
		case <-l.done:
			l.shutdown()
			return nil
		case <-l.wake:
		}
	}
}

// Running reports whether Run is executing.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// Stop makes Run return after draining queued work.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// runPending takes the current queue and executes it. Work posted while
// executing lands in a fresh queue and runs on the next pass.
func (l *Loop) runPending() {
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			fn()
		}
	}
}

func (l *Loop) shutdown() {
	l.markStopped()
	l.runPending()
	l.Stop()
}

// markStopped refuses further Post calls. Work already queued still runs
// if Run drains it.
func (l *Loop) markStopped() {
	l.mu.Lock()
	l.stopped.Store(true)
	l.mu.Unlock()
}
