// Package async implements the state machine behind suspending a request off the worker
// goroutine and resuming it later by completion, dispatch, timeout or error.
package async

import (
	"errors"
	"fmt"
	"sync"

	"github.com/indigo-web/connector/internal/timer"
	"github.com/indigo-web/connector/transport"
)

// ErrInvalidState reports an operation not allowed in the current state. It always means a
// bug in the caller.
var ErrInvalidState = errors.New("invalid async state")

// Context is the application-visible side of an async cycle.
type Context interface {
	FireOnComplete()
}

// Machine is safe for concurrent use.
type Machine struct {
	mu             sync.Mutex
	state          State
	ctx            Context
	generation     uint64
	lastAsyncStart int64
	clear          func()
	now            func() int64
}

// New returns a machine in the Dispatched state. clearListeners is called whenever the
// non-blocking read and write listeners must be dropped.
func New(clearListeners func()) *Machine {
	if clearListeners == nil {
		clearListeners = func() {}
	}

	return &Machine{
		clear: clearListeners,
		now:   timer.Millis,
	}
}

func (m *Machine) apply(event Event) (Transition, error) {
	t := Lookup(m.state, event)
	if !t.Valid {
		return t, fmt.Errorf("%w: cannot %s in %s", ErrInvalidState, event, m.state)
	}

	if t.ClearListeners {
		m.clear()
	}

	m.state = t.Next
	return t, nil
}

// AsyncStart begins a new async cycle and a new generation.
func (m *Machine) AsyncStart(ctx Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.apply(EvStart); err != nil {
		return err
	}

	m.generation++
	m.ctx = ctx
	m.lastAsyncStart = m.now()

	return nil
}

// AsyncComplete returns true if the connection must be dispatched to a worker in order to
// complete the cycle.
func (m *Machine) AsyncComplete(onContainer bool) (bool, error) {
	event := EvComplete
	if !onContainer {
		event = EvCompleteOffContainer
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.apply(event)
	return t.Result, err
}

// AsyncDispatch returns true if the connection must be dispatched to a worker in order to
// run the dispatch.
func (m *Machine) AsyncDispatch(onContainer bool) (bool, error) {
	event := EvDispatch
	if !onContainer {
		event = EvDispatchOffContainer
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.apply(event)
	return t.Result, err
}

// AsyncTimeout returns true if the timeout must be acted upon. False means the cycle was
// already resolved by the application.
func (m *Machine) AsyncTimeout() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.apply(EvTimeout)
	return t.Result, err
}

// AsyncError moves into an error state. The returned value is true if the caller is off
// the container and therefore the error must be processed by a redispatch.
func (m *Machine) AsyncError(onContainer bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	// error is valid from every state
	_, _ = m.apply(EvError)
	return !onContainer
}

// AsyncPostProcess is called when the worker leaves the processor while async.
func (m *Machine) AsyncPostProcess() (transport.SocketState, error) {
	m.mu.Lock()
	t, err := m.apply(EvPostProcess)
	ctx := m.ctx
	m.mu.Unlock()

	if err != nil {
		return transport.Closed, err
	}

	if t.FireComplete && ctx != nil {
		ctx.FireOnComplete()
	}

	return t.Socket, nil
}

// AsyncOperation marks that a non-blocking read or write is being processed.
func (m *Machine) AsyncOperation() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.apply(EvOperation)
	return err
}

// AsyncRun validates that a task may be run on behalf of the async request now.
func (m *Machine) AsyncRun() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.apply(EvRun)
	return err
}

// Recycle resets the machine, unless it wasn't used since the last recycle. The generation
// is preserved.
func (m *Machine) Recycle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastAsyncStart == 0 {
		return
	}

	m.ctx = nil
	m.state = Dispatched
	m.lastAsyncStart = 0
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) IsAsync() bool {
	return m.State().IsAsync()
}

func (m *Machine) IsAsyncStarted() bool {
	return m.State().IsStarted()
}

func (m *Machine) IsAsyncDispatching() bool {
	return m.State().IsDispatching()
}

func (m *Machine) IsCompleting() bool {
	return m.State().IsCompleting()
}

func (m *Machine) IsAsyncTimingOut() bool {
	return m.State() == TimingOut
}

func (m *Machine) IsAsyncError() bool {
	return m.State() == Error
}

// IsAvailable reports whether the application may still act on the async cycle.
func (m *Machine) IsAvailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx == nil {
		return false
	}

	s := m.state
	return s.IsStarted() && !s.IsCompleting() && !s.IsDispatching()
}

// Generation identifies the current async cycle.
func (m *Machine) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// LastAsyncStart returns the unix-time in milliseconds the current cycle was started at,
// or zero.
func (m *Machine) LastAsyncStart() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAsyncStart
}
