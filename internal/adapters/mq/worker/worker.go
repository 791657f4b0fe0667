// Package worker persists queued record submissions.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pointercrate/demonlist/internal/domain/model"
	"github.com/pointercrate/demonlist/pkg/logger"
	"github.com/pointercrate/demonlist/pkg/metrics"
)

// Default worker configuration constants.
const (
	poolShutdownTimeout = 30 * time.Second
)

// Persister stores a submission as a record.
type Persister interface {
	CreateRecord(ctx context.Context, sub model.Submission) (model.Record, error)
}

// Queue defines how workers receive submissions.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Submission
}

// FailureHook is called when a submission could not be persisted.
type FailureHook func(ctx context.Context, sub model.Submission, err error)

// InMemoryWorker drains a Queue into a Persister.
type InMemoryWorker struct {
	queue     Queue
	store     Persister
	name      string
	onFailure FailureHook

	processed *atomic.Int64
	failed    *atomic.Int64

	done   chan struct{}
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, store Persister, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     queue,
		store:     store,
		name:      "worker",
		processed: new(atomic.Int64),
		failed:    new(atomic.Int64),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run processes submissions until the queue is drained after Close or
// ctx is canceled.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for sub := range w.queue.Dequeue(ctx) {
		if err := w.process(ctx, sub); err != nil {
			w.logger.Error(ctx, "error persisting submission", logger.Error(err))
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, sub model.Submission) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	rec, err := w.store.CreateRecord(ctx, sub)
	if err != nil {
		w.failed.Add(1)
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "persist_error")
		metrics.RecordErrorByType("persist_error", "high")
		if w.onFailure != nil {
			w.onFailure(ctx, sub, err)
		}
		return fmt.Errorf("persist submission %s: %w", sub.ID, err)
	}

	w.processed.Add(1)
	metrics.RecordSubmissionPersisted()
	w.logger.Debug(ctx, "submission persisted",
		logger.String("submission_id", sub.ID),
		logger.Int64("record_id", rec.ID))
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	processed atomic.Int64
	failed    atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc

	logger logger.Logger
}

// NewPool creates a new worker pool. Worker options apply to every worker.
func NewPool(workerCount int, queue Queue, store Persister, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		w := NewInMemoryWorker(queue, store, append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)...)
		w.processed = &pool.processed
		w.failed = &pool.failed
		pool.workers[i] = w
	}

	return pool
}

// Start starts all workers in the pool. Workers keep ctx's values but not
// its cancellation: they stop only through Shutdown, so submissions queued
// before a signal are still persisted.
func (p *Pool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	for _, w := range p.workers {
		go w.Run(runCtx)
	}
	metrics.UpdateWorkerActiveCount(len(p.workers))
}

// Processed returns the number of submissions persisted so far.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Failed returns the number of submissions that could not be persisted.
func (p *Pool) Failed() int64 { return p.failed.Load() }

// Shutdown closes the queue, lets workers drain it, and then cancels any
// worker still running when ctx or the pool timeout expires.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	p.mu.Lock()
	started := p.cancel != nil
	p.mu.Unlock()
	if !started {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut bool
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut = true
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
		if timedOut {
			break
		}
	}

	p.mu.Lock()
	p.cancel()
	p.mu.Unlock()

	// Workers exit promptly once their context is canceled.
	for _, w := range p.workers {
		<-w.done
	}
	metrics.UpdateWorkerActiveCount(0)

	if timedOut {
		return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
	}
	return nil
}
