// Package executor implements the worker pool processing connections.
package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/indigo-web/connector/config"
	"github.com/rs/zerolog"
)

// ErrRejected is returned when neither a worker nor a queue slot could be found for a task.
var ErrRejected = errors.New("task rejected: executor is saturated or shut down")

type Task func()

// Executor runs tasks on a pool of goroutines. Up to Core workers live forever, the rest
// retire after staying idle for KeepAlive. A task goes to a new worker while there are fewer
// workers than submitted tasks and the pool may still grow, otherwise it is queued.
type Executor struct {
	core, max    int
	keepAlive    time.Duration
	forceTimeout time.Duration
	queue        *TaskQueue
	log          zerolog.Logger

	mu         sync.Mutex
	workers    int
	generation context.Context
	renew      context.CancelFunc

	// closing guards the queue against being closed while a task is being put into it.
	closing  sync.RWMutex
	shutdown atomic.Bool

	submitted atomic.Int64
	active    atomic.Int64
	completed atomic.Int64
	wg        sync.WaitGroup
}

func New(cfg config.Workers, log zerolog.Logger) *Executor {
	e := &Executor{
		core:         cfg.Core,
		max:          cfg.Max,
		keepAlive:    cfg.KeepAlive,
		forceTimeout: cfg.ForceTimeout,
		queue:        NewTaskQueue(cfg.QueueSize),
		log:          log.With().Str("component", "executor").Logger(),
	}
	e.queue.parent = e
	e.generation, e.renew = context.WithCancel(context.Background())

	return e
}

// Execute schedules the task. The error is ErrRejected if the pool is saturated for longer
// than the force timeout or is shut down.
func (e *Executor) Execute(task Task) error {
	e.closing.RLock()
	defer e.closing.RUnlock()

	if e.shutdown.Load() {
		return ErrRejected
	}

	e.submitted.Add(1)

	if e.addWorker(task, true) {
		return nil
	}

	if e.queue.Offer(task) {
		if e.PoolSize() == 0 {
			// core may be zero, the task must not get stuck in the queue
			e.addWorker(nil, false)
		}

		return nil
	}

	if e.addWorker(task, false) {
		return nil
	}

	if e.queue.Force(task, e.forceTimeout) {
		return nil
	}

	e.submitted.Add(-1)
	e.log.Warn().
		Int("workers", e.PoolSize()).
		Int("queued", e.queue.Len()).
		Msg("task rejected")

	return ErrRejected
}

// RenewWorkers makes every worker exit once it's done with its current task and be replaced
// by a fresh one. Tasks are never interrupted.
func (e *Executor) RenewWorkers() {
	e.mu.Lock()
	e.renew()
	e.generation, e.renew = context.WithCancel(context.Background())
	e.mu.Unlock()
}

// Shutdown stops accepting new tasks and waits until the queued ones are done or the
// context is over.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.closing.Lock()
	if !e.shutdown.Swap(true) {
		e.queue.close()
	}
	e.closing.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PoolSize returns the current number of workers.
func (e *Executor) PoolSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.workers
}

// Submitted returns the number of tasks accepted but not finished yet, including queued ones.
func (e *Executor) Submitted() int64 {
	return e.submitted.Load()
}

// Active returns the number of tasks being run right now.
func (e *Executor) Active() int64 {
	return e.active.Load()
}

func (e *Executor) Completed() int64 {
	return e.completed.Load()
}

func (e *Executor) QueueLength() int {
	return e.queue.Len()
}

func (e *Executor) addWorker(first Task, core bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	limit := e.max
	if core {
		limit = e.core
	}

	if e.workers >= limit {
		return false
	}

	e.workers++
	e.wg.Add(1)
	go e.worker(first, e.generation)

	return true
}

// replace spawns a worker of the current generation in place of an exiting one.
func (e *Executor) replace() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.wg.Add(1)
	go e.worker(nil, e.generation)
}

// retire decrements the workers counter if the pool is above its core size.
func (e *Executor) retire() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.workers <= e.core {
		return false
	}

	e.workers--
	return true
}

func (e *Executor) exit() {
	e.mu.Lock()
	e.workers--
	e.mu.Unlock()
}

func (e *Executor) worker(task Task, generation context.Context) {
	defer e.wg.Done()

	for {
		if task != nil {
			e.run(task)
			task = nil
		}

		if generation.Err() != nil {
			e.replace()
			return
		}

		var ok bool
		if e.PoolSize() > e.core {
			task, ok = e.queue.Poll(e.keepAlive)
			if !ok {
				if e.shutdown.Load() {
					e.exit()
					return
				}

				if e.retire() {
					return
				}
			}

			continue
		}

		select {
		case task, ok = <-e.queue.ch:
			if !ok {
				e.exit()
				return
			}
		case <-generation.Done():
		}
	}
}

func (e *Executor) run(task Task) {
	e.active.Add(1)
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("task panicked")
		}

		e.active.Add(-1)
		e.submitted.Add(-1)
		e.completed.Add(1)
	}()

	task()
}
