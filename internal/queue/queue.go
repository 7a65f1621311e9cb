// Package queue provides the per-guild serializing task runner: one worker
// goroutine draining a FIFO, with a watchdog so a stuck task cannot stall
// the guild forever.
package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultTimeout is the per-task watchdog.
	DefaultTimeout = 10 * time.Second
	// DefaultCapacity bounds the pending-task buffer; enqueues past it are
	// dropped rather than blocking the caller.
	DefaultCapacity = 256
)

type Task func(ctx context.Context)

type item struct {
	run  Task
	done chan struct{}
}

// Queue runs tasks one at a time in enqueue order. A task runs until it
// finishes or the watchdog elapses; either way the queue advances. The
// watchdog cancels the task's context, so an abandoned task sees
// cancellation rather than being forcibly stopped.
type Queue struct {
	name    string
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	tasks  chan item
	closed bool
	done   chan struct{}
}

func New(name string, timeout time.Duration, logger *zap.Logger) *Queue {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	q := &Queue{
		name:    name,
		timeout: timeout,
		logger:  logger,
		tasks:   make(chan item, DefaultCapacity),
		done:    make(chan struct{}),
	}
	go q.work()
	return q
}

// Enqueue appends a task and returns a handle that closes when the task
// finishes or times out. Returns false when the queue is closed or full;
// the task will not run.
func (q *Queue) Enqueue(task Task) (<-chan struct{}, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, false
	}

	it := item{run: task, done: make(chan struct{})}
	select {
	case q.tasks <- it:
		return it.done, true
	default:
		q.logger.Warn("queue full, dropping task", zap.String("queue", q.name))
		return nil, false
	}
}

// Close stops the queue. Pending tasks are dropped without running; a task
// already executing finishes (or times out) normally.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	<-q.done
}

func (q *Queue) work() {
	defer close(q.done)

	for it := range q.tasks {
		if q.isClosed() {
			close(it.done)
			continue
		}
		q.runOne(it)
	}
}

func (q *Queue) runOne(it item) {
	defer close(it.done)

	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		it.run(ctx)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		q.logger.Warn("task watchdog elapsed, advancing queue",
			zap.String("queue", q.name),
			zap.Duration("timeout", q.timeout))
	}
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
