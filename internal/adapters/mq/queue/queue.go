// Package queue holds pending season build jobs for the pipeline workers.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/joshphelan/nba-player-similarity/pkg/metrics"
)

const defaultQueueCapacity = 64

// Job asks a worker to build one season.
type Job struct {
	ID     string
	RunID  string
	Season string
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job. It fails with ErrFull or ErrClosed instead of blocking.
	Enqueue(ctx context.Context, j Job) error

	// Dequeue returns a channel of pending jobs, closed once the queue is
	// closed and drained or ctx is done.
	Dequeue(ctx context.Context) <-chan Job

	// Len returns the number of pending jobs.
	Len() int

	// Close stops accepting jobs. Pending jobs are still delivered.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)
	metrics.UpdateJobQueue(0, q.capacity)
	return q
}

// Enqueue adds a job to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordJobRejected("closed")
		return fmt.Errorf("enqueue %s: %w", j.Season, ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordJobRejected("context_cancelled")
		return fmt.Errorf("enqueue %s: %w", j.Season, err)
	}

	select {
	case q.jobs <- j:
		metrics.RecordJobEnqueued()
		metrics.UpdateJobQueue(len(q.jobs), q.capacity)
		return nil
	default:
		metrics.RecordJobRejected("queue_full")
		return fmt.Errorf("enqueue %s: %w", j.Season, ErrFull)
	}
}

// Dequeue returns a channel that will receive jobs as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Job {
	out := make(chan Job)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case j, ok := <-q.jobs:
				if !ok {
					return
				}
				select {
				case out <- j:
					metrics.UpdateJobQueue(len(q.jobs), q.capacity)
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Len returns the number of pending jobs.
func (q *InMemoryQueue) Len() int {
	return len(q.jobs)
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
