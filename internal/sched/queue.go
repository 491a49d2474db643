package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultTickLimit bounds a single Flush call.
// A driver that keeps rescheduling itself forever would otherwise hang the caller.
const DefaultTickLimit = 100000

// Task is a deferred callback. The error a task returns is handed back
// verbatim to whoever ran it (Step, Flush) or logged (Run).
type Task func() error

// Scheduler defers tasks to a later tick.
type Scheduler interface {
	Schedule(t Task)
}

// Queue is a FIFO task queue drained one task per tick.
//
// Thread-safety: Schedule may be called from any goroutine, but tasks are
// only ever run by the goroutine calling Step, Flush or Run, and callers
// must not run those concurrently with each other.
type Queue struct {
	mu     sync.Mutex
	tasks  []Task
	closed bool
	signal chan struct{} // buffered, size 1

	ticks     int64
	tickLimit int
	logger    *slog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithTickLimit sets the maximum number of ticks a single Flush may run.
func WithTickLimit(n int) Option {
	return func(q *Queue) {
		q.tickLimit = n
	}
}

// WithLogger sets the logger used for task failures in Run.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = l
	}
}

// NewQueue creates an empty queue.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		tasks:     make([]Task, 0, 16),
		signal:    make(chan struct{}, 1),
		tickLimit: DefaultTickLimit,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

var _ Scheduler = (*Queue)(nil)

// Schedule appends t to the back of the queue.
// Tasks scheduled after Close are dropped.
func (q *Queue) Schedule(t Task) {
	if t == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.logger.Debug("task dropped: queue closed")
		return
	}

	q.tasks = append(q.tasks, t)

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pop removes the front task, or returns nil if the queue is empty.
func (q *Queue) pop() Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil
	}

	t := q.tasks[0]
	q.tasks[0] = nil // release the closure for GC

	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
	}

	q.ticks++
	return t
}

// Step runs exactly one task, if any is queued.
// It reports whether a task ran and returns that task's error.
func (q *Queue) Step() (bool, error) {
	t := q.pop()
	if t == nil {
		return false, nil
	}
	return true, t()
}

// Flush runs tasks until the queue is empty, including tasks scheduled
// while flushing. It stops at the first task error and returns it verbatim;
// the remaining tasks stay queued and a later Flush resumes with them.
func (q *Queue) Flush() error {
	ran := 0
	for {
		if q.tickLimit > 0 && ran >= q.tickLimit && q.Len() > 0 {
			return &TickLimitError{Limit: q.tickLimit, Pending: q.Len()}
		}

		ok, err := q.Step()
		if !ok {
			return nil
		}
		ran++
		if err != nil {
			return err
		}
	}
}

// Run drains the queue as tasks arrive until ctx is cancelled or the queue
// is closed and empty. Task errors are logged and the loop continues.
//
// Must be called from exactly one goroutine.
func (q *Queue) Run(ctx context.Context) error {
	for {
		ok, err := q.Step()
		if ok {
			if err != nil {
				q.logger.Error("task failed", "tick", q.Ticks(), "error", err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.signal:
			if q.isClosed() && q.Len() == 0 {
				return nil
			}
		}
	}
}

// Close stops the queue from accepting tasks and wakes Run.
// Tasks already queued can still be drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Ticks returns the number of tasks started so far.
func (q *Queue) Ticks() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ticks
}

// TickLimitError is returned by Flush when the tick budget runs out while
// tasks are still queued.
type TickLimitError struct {
	Limit   int // ticks allowed per flush
	Pending int // tasks still queued
}

func (e *TickLimitError) Error() string {
	return fmt.Sprintf("tick limit exceeded (%d ticks, %d tasks pending)", e.Limit, e.Pending)
}
