package transport

// SocketEvent is what caused a connection to be handed over to the handler.
type SocketEvent uint8

const (
	// OpenRead means data is available for reading.
	OpenRead SocketEvent = iota
	// OpenWrite means the connection can accept more data.
	OpenWrite
	// Stop is delivered when the endpoint is going down.
	Stop
	// Timeout is delivered by the async timeout sweeper.
	Timeout
	// Disconnect means the peer went away.
	Disconnect
	// Error means an I/O error occurred outside the processor.
	Error
	// ConnectFail means the connection could not be fully established.
	ConnectFail
)

var eventNames = [...]string{
	OpenRead:    "OPEN_READ",
	OpenWrite:   "OPEN_WRITE",
	Stop:        "STOP",
	Timeout:     "TIMEOUT",
	Disconnect:  "DISCONNECT",
	Error:       "ERROR",
	ConnectFail: "CONNECT_FAIL",
}

func (e SocketEvent) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}

	return "UNKNOWN"
}

// SocketState is what the handler wants to happen to the connection after processing.
type SocketState uint8

const (
	// Open means the connection is idle and waits for the next request.
	Open SocketState = iota
	// Closed means the connection must be closed.
	Closed
	// Long means the connection is kept while waiting for more data or an async event.
	Long
	// AsyncEnd means the async processing is over and the dispatch loop must run once more.
	AsyncEnd
	// Sendfile means a file transfer is in progress.
	Sendfile
	// Upgrading means the processor must be replaced by an upgrade processor.
	Upgrading
	// Upgraded means the connection is served by an upgrade processor.
	Upgraded
	// Suspended means the connection is left untouched.
	Suspended
)

var stateNames = [...]string{
	Open:      "OPEN",
	Closed:    "CLOSED",
	Long:      "LONG",
	AsyncEnd:  "ASYNC_END",
	Sendfile:  "SENDFILE",
	Upgrading: "UPGRADING",
	Upgraded:  "UPGRADED",
	Suspended: "SUSPENDED",
}

func (s SocketState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}

	return "UNKNOWN"
}
