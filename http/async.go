package http

import (
	"context"
	"sync"
	"time"
)

// AsyncContext is a handle on a request suspended off the worker goroutine. Every method
// changing the async state takes the context the action is requested from: the one passed
// into the application by the engine when called from within it, or any other otherwise.
type AsyncContext struct {
	request   *Request
	mu        sync.Mutex
	listeners []AsyncListener
}

func (a *AsyncContext) Request() *Request {
	return a.request
}

func (a *AsyncContext) Response() *Response {
	return a.request.response
}

// AddListener registers a listener of the current async cycle.
func (a *AsyncContext) AddListener(l AsyncListener) {
	a.mu.Lock()
	a.listeners = append(a.listeners, l)
	a.mu.Unlock()
}

// Complete finishes the response and ends the async cycle.
func (a *AsyncContext) Complete(ctx context.Context) error {
	return a.request.Action(ctx, ActionAsyncComplete, nil)
}

// Dispatch ends the async cycle by passing the request to the application once more.
func (a *AsyncContext) Dispatch(ctx context.Context) error {
	return a.request.Action(ctx, ActionAsyncDispatch, nil)
}

// Error fails the async cycle.
func (a *AsyncContext) Error(ctx context.Context, err error) error {
	return a.request.Action(ctx, ActionAsyncError, err)
}

// Run executes the task on the worker pool on behalf of the request.
func (a *AsyncContext) Run(ctx context.Context, task func()) error {
	return a.request.Action(ctx, ActionAsyncRun, task)
}

// SetTimeout overrides the default async timeout. Zero or negative values disable it.
func (a *AsyncContext) SetTimeout(timeout time.Duration) error {
	return a.request.Action(context.Background(), ActionAsyncSetTimeout, timeout)
}

// FireOnComplete notifies the listeners and forgets them.
func (a *AsyncContext) FireOnComplete() {
	for _, l := range a.drain() {
		l.OnComplete(a)
	}
}

// FireOnTimeout notifies the listeners about the timeout. They may complete or dispatch
// the request in response.
func (a *AsyncContext) FireOnTimeout(ctx context.Context) {
	for _, l := range a.snapshot() {
		l.OnTimeout(ctx, a)
	}
}

// FireOnError notifies the listeners about the error.
func (a *AsyncContext) FireOnError(ctx context.Context, err error) {
	for _, l := range a.snapshot() {
		l.OnError(ctx, a, err)
	}
}

func (a *AsyncContext) snapshot() []AsyncListener {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]AsyncListener(nil), a.listeners...)
}

func (a *AsyncContext) drain() []AsyncListener {
	a.mu.Lock()
	defer a.mu.Unlock()
	listeners := a.listeners
	a.listeners = nil
	return listeners
}
