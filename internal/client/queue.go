package client

import (
	"context"
	"sync"
)

// taskQueue runs tasks one at a time, in the order they were pushed, on a
// single goroutine. Push never blocks, so tasks may push more tasks.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool

	signal chan struct{}
	done   chan struct{}
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

// Push appends a task. Tasks pushed after Close are dropped.
func (q *taskQueue) Push(task func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
	q.wake()
}

// Do pushes task and waits for it to run. It must not be called from a task.
func (q *taskQueue) Do(ctx context.Context, task func()) error {
	ran := make(chan struct{})
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrStopped
	}
	q.tasks = append(q.tasks, func() {
		defer close(ran)
		task()
	})
	q.mu.Unlock()
	q.wake()

	select {
	case <-ran:
		return nil
	case <-q.done:
		select {
		case <-ran:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of tasks waiting to run.
func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close drains the remaining tasks and stops the goroutine.
func (q *taskQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
	<-q.done
}

func (q *taskQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *taskQueue) run() {
	defer close(q.done)

	for {
		q.mu.Lock()
		for len(q.tasks) == 0 {
			if q.closed {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			<-q.signal
			q.mu.Lock()
		}
		task := q.tasks[0]
		q.tasks[0] = nil
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		task()
	}
}
