// Package worker drains the record queue into the dataset writer.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/diamond/internal/adapters/mq/queue"
	"github.com/okian/diamond/pkg/logger"
	"github.com/okian/diamond/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultFlushEvery = 1024
)

// Record abstracts what workers read off the queue.
type Record = queue.Record

// Writer persists records.
type Writer interface {
	Write(ctx context.Context, r *Record) error
	Flush(ctx context.Context) error
}

// Queue defines how workers receive records.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Record
}

// Worker moves records from a queue to a writer.
type Worker interface {
	// Run starts the worker loop until the queue is drained or ctx is canceled.
	Run(ctx context.Context)

	// Shutdown waits for Run to return.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker. It keeps draining after a write error so
// producers never block on a dead consumer; the first error is kept for Err.
type InMemoryWorker struct {
	queue      Queue
	writer     Writer
	name       string
	flushEvery int

	mu      sync.Mutex
	written int64
	failed  int64
	handled int64
	err     error
	notify  chan struct{}

	done chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, w Writer, opts ...Option) *InMemoryWorker {
	wk := &InMemoryWorker{
		queue:      q,
		writer:     w,
		name:       "writer",
		flushEvery: defaultFlushEvery,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(wk)
	}
	if wk.logger == nil {
		wk.logger = logger.Get().Named(wk.name)
	}
	return wk
}

// Run implements Worker.Run.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	pending := 0
	for r := range w.queue.Dequeue(ctx) {
		w.process(ctx, &r)
		pending++
		if pending >= w.flushEvery {
			w.flush(ctx)
			pending = 0
		}
	}
	w.flush(ctx)

	written, failed := w.Counts()
	w.logger.Info(ctx, "record writer drained",
		logger.Int64("written", written),
		logger.Int64("failed", failed),
	)
}

func (w *InMemoryWorker) process(ctx context.Context, r *Record) {
	err := w.writer.Write(ctx, r)
	if err != nil {
		w.fail(ctx, fmt.Errorf("write %s: %w", r.PlayID, err))
	}
	w.mu.Lock()
	if err == nil {
		w.written++
	}
	w.handled++
	if w.notify != nil {
		close(w.notify)
		w.notify = nil
	}
	w.mu.Unlock()
}

// Sync blocks until the first n records taken off the queue have been
// handed to the writer, then flushes it. It returns the first write error
// seen so far. A checkpoint commits a layer only after Sync, so a crash can
// never leave a committed layer without its records on disk.
func (w *InMemoryWorker) Sync(ctx context.Context, n int64) error {
	for {
		w.mu.Lock()
		if w.handled >= n {
			w.mu.Unlock()
			break
		}
		if w.notify == nil {
			w.notify = make(chan struct{})
		}
		ch := w.notify
		w.mu.Unlock()

		select {
		case <-ch:
		case <-w.done:
			w.mu.Lock()
			handled := w.handled
			w.mu.Unlock()
			if handled < n {
				return fmt.Errorf("%w: %d of %d records handled", ErrStopped, handled, n)
			}
		case <-ctx.Done():
			return fmt.Errorf("sync: %w", ctx.Err())
		}
	}
	if err := w.writer.Flush(ctx); err != nil {
		w.fail(ctx, fmt.Errorf("flush: %w", err))
	}
	return w.Err()
}

func (w *InMemoryWorker) flush(ctx context.Context) {
	if err := w.writer.Flush(ctx); err != nil {
		w.fail(ctx, fmt.Errorf("flush: %w", err))
	}
}

func (w *InMemoryWorker) fail(ctx context.Context, err error) {
	metrics.RecordRecordWriteError()
	metrics.RecordErrorByComponent("worker", "write_error")

	w.mu.Lock()
	w.failed++
	first := w.err == nil
	if first {
		w.err = err
	}
	w.mu.Unlock()

	if first {
		w.logger.Error(ctx, "record write failed", logger.Error(err))
	}
}

// Counts returns how many records were written and how many failed.
func (w *InMemoryWorker) Counts() (written, failed int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written, w.failed
}

// Err returns the first write error, if any.
func (w *InMemoryWorker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// Shutdown implements Worker.Shutdown. Close the queue first so Run can
// drain and return.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.done:
		return w.Err()
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Drain is a helper that waits up to timeout for the worker to finish.
func Drain(w Worker, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return w.Shutdown(ctx)
}
