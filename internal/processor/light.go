package processor

import (
	"slices"
	"sync"

	"github.com/indigo-web/connector/transport"
)

// Protocol is implemented by concrete processors and driven by Light.
type Protocol interface {
	Service(conn *transport.Conn) (transport.SocketState, error)
	Dispatch(event transport.SocketEvent) (transport.SocketState, error)
	AsyncPostProcess() (transport.SocketState, error)
	IsAsync() bool
	IsUpgrade() bool
	LogAccess(conn *transport.Conn)
}

// Light implements the dispatch loop shared by processors and keeps the queue of pending
// non-blocking notifications.
type Light struct {
	mu         sync.Mutex
	dispatches []DispatchType
}

// AddDispatch queues the notification. Queuing the same type twice is no-op.
func (l *Light) AddDispatch(d DispatchType) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !slices.Contains(l.dispatches, d) {
		l.dispatches = append(l.dispatches, d)
	}
}

// TakeDispatches returns the queued notifications in their order and clears the queue.
func (l *Light) TakeDispatches() []DispatchType {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.dispatches) == 0 {
		return nil
	}

	dispatches := l.dispatches
	l.dispatches = nil
	return dispatches
}

func (l *Light) ClearDispatches() {
	l.mu.Lock()
	l.dispatches = nil
	l.mu.Unlock()
}

// Process runs the event through the protocol and loops while async processing produces
// more work: an ended async cycle or queued notifications.
func (l *Light) Process(p Protocol, conn *transport.Conn, event transport.SocketEvent) (
	state transport.SocketState, err error,
) {
	state = transport.Closed
	var dispatches []DispatchType

	for {
		switch {
		case len(dispatches) > 0:
			next := dispatches[0]
			dispatches = dispatches[1:]
			if state, err = p.Dispatch(next.Event()); err != nil {
				return transport.Closed, err
			}

			if len(dispatches) == 0 {
				if state, err = checkForPipelinedData(p, conn, state); err != nil {
					return transport.Closed, err
				}
			}
		case event == transport.Disconnect:
			// nothing to do, the processor is about to be recycled
		case p.IsAsync() || p.IsUpgrade() || state == transport.AsyncEnd:
			if state, err = p.Dispatch(event); err != nil {
				return transport.Closed, err
			}

			if state, err = checkForPipelinedData(p, conn, state); err != nil {
				return transport.Closed, err
			}
		case event == transport.OpenWrite:
			// a write notification left over from async processing
			state = transport.Long
		case event == transport.OpenRead:
			if state, err = p.Service(conn); err != nil {
				return transport.Closed, err
			}
		case event == transport.ConnectFail:
			p.LogAccess(conn)
		default:
			state = transport.Closed
		}

		if state != transport.Closed && p.IsAsync() {
			if state, err = p.AsyncPostProcess(); err != nil {
				return transport.Closed, err
			}
		}

		if len(dispatches) == 0 {
			dispatches = l.TakeDispatches()
		}

		if !(state == transport.AsyncEnd || (len(dispatches) > 0 && state != transport.Closed)) {
			return state, nil
		}
	}
}

// checkForPipelinedData serves the next request right away if the connection got back
// into the regular mode, as the request may already be buffered.
func checkForPipelinedData(p Protocol, conn *transport.Conn, state transport.SocketState) (
	transport.SocketState, error,
) {
	if state == transport.Open {
		return p.Service(conn)
	}

	return state, nil
}
