// Package workqueue runs blocking tasks (HTTP calls, file downloads) on a
// fixed pool of workers so the event loop never waits on I/O.
package workqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

var (
	ErrQueueFull = errors.New("work queue is full")
	ErrClosed    = errors.New("work queue is closed")
)

// Queue is a bounded task queue drained by a fixed number of workers.
type Queue struct {
	tasks   chan func()
	workers int
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// New creates a queue holding at most capacity pending tasks.
func New(workers, capacity int, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		tasks:   make(chan func(), max(capacity, 1)),
		workers: max(workers, 1),
		logger:  logger.With("component", "workqueue"),
	}
}

// Submit enqueues task without blocking.
func (q *Queue) Submit(task func()) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrClosed
	}

	select {
	case q.tasks <- task:
		return nil
	default:
		q.logger.Warn("Work queue is full, rejecting task", "capacity", cap(q.tasks))
		return ErrQueueFull
	}
}

// Run starts the workers and blocks until ctx is cancelled. Tasks still
// pending at that point are dropped and further submissions fail with ErrClosed.
func (q *Queue) Run(ctx context.Context) error {
	q.logger.Info("Starting work queue", "workers", q.workers, "capacity", cap(q.tasks))

	g, gCtx := errgroup.WithContext(ctx)
	for i := range q.workers {
		g.Go(func() error {
			return q.work(gCtx, i)
		})
	}

	err := g.Wait()
	_ = q.Shutdown()

	q.logger.Info("Work queue stopped", "dropped", len(q.tasks))
	return err
}

// Shutdown rejects further submissions.
func (q *Queue) Shutdown() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return nil
}

func (q *Queue) work(ctx context.Context, id int) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case task := <-q.tasks:
			if err := q.execute(task); err != nil {
				q.logger.Error("Task panicked", "worker", id, "error", err)
			}
		}
	}
}

func (q *Queue) execute(task func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	task()
	return nil
}
