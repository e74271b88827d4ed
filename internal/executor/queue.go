package executor

import "time"

// TaskQueue is a bounded FIFO of tasks which refuses tasks while the executor can still
// grow, so that new workers are preferred to queuing.
type TaskQueue struct {
	ch     chan Task
	parent *Executor
}

func NewTaskQueue(capacity int) *TaskQueue {
	return &TaskQueue{
		ch: make(chan Task, capacity),
	}
}

// Offer queues the task unless the executor has fewer workers than the tasks submitted
// to it and is still allowed to spawn more. Returns false if the task wasn't queued.
func (q *TaskQueue) Offer(task Task) bool {
	if q.parent == nil {
		return q.put(task)
	}

	poolSize := q.parent.PoolSize()
	switch {
	case poolSize >= q.parent.max:
		return q.put(task)
	case q.parent.Submitted() <= int64(poolSize):
		// there are idle workers, they'll pick the task up
		return q.put(task)
	default:
		// a new worker serves the task sooner
		return false
	}
}

// Force queues the task, waiting at most timeout for a free slot.
func (q *TaskQueue) Force(task Task, timeout time.Duration) bool {
	if q.put(task) {
		return true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case q.ch <- task:
		return true
	case <-timer.C:
		return false
	}
}

// Poll returns the next task, waiting at most timeout. The second return value is false
// if either nothing arrived in time or the queue is closed.
func (q *TaskQueue) Poll(timeout time.Duration) (Task, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case task, ok := <-q.ch:
		return task, ok
	case <-timer.C:
		return nil, false
	}
}

func (q *TaskQueue) Len() int {
	return len(q.ch)
}

func (q *TaskQueue) Cap() int {
	return cap(q.ch)
}

func (q *TaskQueue) put(task Task) bool {
	select {
	case q.ch <- task:
		return true
	default:
		return false
	}
}

func (q *TaskQueue) close() {
	close(q.ch)
}
