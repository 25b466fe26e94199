// Package queue carries evaluation records from the evaluator to the dataset
// writer.
//
// The queue is bounded. Emit blocks while it is full, so a slow writer slows
// evaluation down instead of losing records.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/diamond/internal/domain/evaluator"
	"github.com/okian/diamond/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultCapacity = 4096
)

// Record is the payload type flowing through the queue.
type Record = evaluator.Record

// Queue provides blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Emit adds a record, waiting for space. It fails once the queue is
	// closed or ctx is done.
	Emit(ctx context.Context, r Record) error

	// Dequeue returns a channel that will receive records as they become available.
	// The channel will be closed when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Record

	// Len returns the current number of queued records.
	Len(ctx context.Context) int

	// Close stops accepting records. Queued records stay readable.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

var (
	_ Queue          = (*InMemoryQueue)(nil)
	_ evaluator.Sink = (*InMemoryQueue)(nil)
)

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	records  chan Record
	capacity int

	mu     sync.RWMutex
	done   chan struct{}
	once   sync.Once
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultCapacity,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.records = make(chan Record, q.capacity)

	metrics.UpdateRecordQueueSize(0)
	return q
}

// Emit implements Queue.Emit and evaluator.Sink.
func (q *InMemoryQueue) Emit(ctx context.Context, r Record) error { //nolint:gocritic // hugeParam: records are passed by value for channel semantics
	start := time.Now()

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}

	select {
	case q.records <- r:
		metrics.RecordRecordEmitted()
		metrics.UpdateRecordQueueSize(len(q.records))
		metrics.RecordRecordQueueLatency(float64(time.Since(start).Milliseconds()))
		return nil
	case <-q.done:
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	case <-ctx.Done():
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return fmt.Errorf("emit %s: %w", r.PlayID, ctx.Err())
	}
}

// Dequeue returns a channel that will receive records as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Record {
	out := make(chan Record)
	go func() {
		defer close(out)
		for r := range q.records {
			select {
			case out <- r:
				metrics.UpdateRecordQueueSize(len(q.records))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued records.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	size := len(q.records)
	metrics.UpdateRecordQueueSize(size)
	return size
}

// Close implements Queue.Close. Blocked emitters are released first, then
// the channel is closed under the write lock.
func (q *InMemoryQueue) Close() error {
	q.once.Do(func() {
		close(q.done)
		q.mu.Lock()
		defer q.mu.Unlock()
		close(q.records)
		q.closed = true
	})
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
