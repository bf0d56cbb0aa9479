package loop

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Worker is a Loop on a dedicated goroutine that starts lazily on first
// use and stops through Shutdown.
//
// Start-up is a handshake: the first Post blocks until the goroutine is
// running, after which work is passed only through the loop queue.
type Worker struct {
	name string

	startOnce sync.Once
	loop      *Loop
	group     *errgroup.Group
	cancel    context.CancelFunc
	started   bool

	mu sync.Mutex
}

// NewWorker creates a worker that has not started yet.
func NewWorker(name string) *Worker {
	return &Worker{name: name, loop: New()}
}

// Name returns the worker name.
func (w *Worker) Name() string { return w.name }

// Post queues fn on the worker, starting the goroutine on first use.
// It returns false after Shutdown.
func (w *Worker) Post(fn func()) bool {
	w.ensureStarted()
	return w.loop.Post(fn)
}

// Call runs fn on the worker and waits for it.
func (w *Worker) Call(ctx context.Context, fn func()) error {
	w.ensureStarted()
	return w.loop.Call(ctx, fn)
}

// Started reports whether the goroutine was started.
func (w *Worker) Started() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.started
}

func (w *Worker) ensureStarted() {
	w.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		g, gctx := errgroup.WithContext(ctx)
		ready := make(chan struct{})

		g.Go(func() error {
			close(ready)
			return w.loop.Run(gctx)
		})
		<-ready

		w.mu.Lock()
		w.group = g
		w.cancel = cancel
		w.started = true
		w.mu.Unlock()
	})
}

// Shutdown stops the worker after queued work has drained and waits for
// the goroutine to exit or ctx to expire. A worker that never started is
// marked stopped and returns immediately.
func (w *Worker) Shutdown(ctx context.Context) error {
	// Prevent a later Post from starting the goroutine.
	w.startOnce.Do(func() {})

	w.mu.Lock()
	g, cancel := w.group, w.cancel
	w.mu.Unlock()

	if g == nil {
		w.loop.markStopped()
		w.loop.Stop()
		return nil
	}

	w.loop.Stop()
	errc := make(chan error, 1)
	go func() {
		errc <- g.Wait()
		cancel()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
