package dummy

import (
	"sync"

	"github.com/indigo-web/connector/transport"
)

var _ transport.Dispatcher = new(Dispatcher)

type Event struct {
	Key      uint64
	Event    transport.SocketEvent
	Dispatch bool
}

// Dispatcher journals every scheduling request instead of executing it.
type Dispatcher struct {
	mu           sync.Mutex
	Events       []Event
	ReadInterest int
	// Refuse makes ProcessSocket report the event as rejected.
	Refuse bool
}

func (d *Dispatcher) ProcessSocket(conn *transport.Conn, event transport.SocketEvent, dispatch bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Refuse {
		return false
	}

	d.Events = append(d.Events, Event{Key: conn.Key(), Event: event, Dispatch: dispatch})
	return true
}

func (d *Dispatcher) RegisterReadInterest(*transport.Conn) {
	d.mu.Lock()
	d.ReadInterest++
	d.mu.Unlock()
}

// Journal returns a copy of the scheduled events.
func (d *Dispatcher) Journal() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.Events...)
}

func (d *Dispatcher) ReadInterests() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ReadInterest
}
