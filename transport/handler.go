package transport

// Handler drives a connection through the protocol. It is called by a worker goroutine and
// returns the state the connection must be left in.
type Handler interface {
	Process(conn *Conn, event SocketEvent) SocketState
	// Release is called once the connection is closed.
	Release(conn *Conn)
	// Pause is broadcast when the endpoint stops accepting new connections.
	Pause()
}

// Dispatcher schedules processing of a connection. It is implemented by the endpoint.
type Dispatcher interface {
	// ProcessSocket submits the event. If dispatch is false, the event is processed by the
	// calling goroutine. It returns false if the event could not be scheduled.
	ProcessSocket(conn *Conn, event SocketEvent, dispatch bool) bool
	// RegisterReadInterest makes the dispatcher deliver OpenRead as soon as the connection
	// becomes readable.
	RegisterReadInterest(conn *Conn)
}
