// Package worker runs season build jobs from a queue on a fixed set of goroutines.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/joshphelan/nba-player-similarity/internal/adapters/mq/queue"
	"github.com/joshphelan/nba-player-similarity/pkg/logger"
	"github.com/joshphelan/nba-player-similarity/pkg/metrics"
)

// Job outcomes, used as metric labels.
const (
	outcomeOK     = "ok"
	outcomeFailed = "failed"
)

// Handler processes one job.
type Handler interface {
	Handle(ctx context.Context, job queue.Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job queue.Job) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, job queue.Job) error { return f(ctx, job) }

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Result reports how one job went.
type Result struct {
	Job    queue.Job
	Worker string
	Err    error
	Took   time.Duration
}

// Worker processes jobs until its queue drains or it is stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after the job in hand.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for processing jobs.
type InMemoryWorker struct {
	queue   Queue
	handler Handler
	results chan<- Result
	name    string

	// Shutdown control
	stopOnce sync.Once
	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker that reports each job on results.
func NewInMemoryWorker(q Queue, h Handler, results chan<- Result, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		handler:  h,
		results:  results,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			res := w.process(ctx, job)
			select {
			case w.results <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, job queue.Job) Result {
	start := time.Now()
	w.logger.Debug(ctx, "job started", logger.String("job", job.ID), logger.String("season", job.Season))

	err := w.handler.Handle(ctx, job)
	res := Result{Job: job, Worker: w.name, Err: err, Took: time.Since(start)}
	if err != nil {
		metrics.ObserveJob(outcomeFailed, res.Took)
		metrics.RecordErrorByType("job_failed", "high")
		w.logger.Error(ctx, "job failed",
			logger.String("job", job.ID),
			logger.String("season", job.Season),
			logger.Error(err),
		)
		res.Err = fmt.Errorf("job %s: %w", job.Season, err)
		return res
	}
	metrics.ObserveJob(outcomeOK, res.Took)
	w.logger.Debug(ctx, "job finished",
		logger.String("job", job.ID),
		logger.Duration("took", res.Took),
	)
	return res
}

// Pool manages multiple workers sharing one queue and one results channel.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	results chan Result
	wg      sync.WaitGroup
	logger  logger.Logger
}

// NewPool creates a new worker pool. A non-positive count uses one worker per CPU.
func NewPool(workerCount int, q Queue, h Handler, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		results: make(chan Result, workerCount),
		logger:  logger.Get().Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	for i := 0; i < workerCount; i++ {
		name := "worker-" + strconv.Itoa(i)
		p.workers[i] = NewInMemoryWorker(q, h, p.results,
			WithName(name),
			WithLogger(p.logger.Named(name)),
		)
	}
	return p
}

// Start starts all workers. Results is closed once every worker has stopped.
func (p *Pool) Start(ctx context.Context) {
	metrics.UpdateWorkersActive(len(p.workers))
	for _, w := range p.workers {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.Run(ctx)
		}()
	}
	go func() {
		p.wg.Wait()
		metrics.UpdateWorkersActive(0)
		close(p.results)
	}()
}

// Results delivers one Result per processed job.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Shutdown closes the queue and stops every worker after the job in hand.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	var firstErr error
	for i, w := range p.workers {
		if err := w.Shutdown(ctx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
