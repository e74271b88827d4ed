// Package processor holds the protocol-independent parts of a connection processor: the
// dispatch loop, the error state and the processor serving upgraded connections.
package processor

import (
	"github.com/indigo-web/connector/http"
	"github.com/indigo-web/connector/transport"
)

// Processor drives a single connection at a time.
type Processor interface {
	// Process handles the event. Errors are unrecoverable for the connection.
	Process(conn *transport.Conn, event transport.SocketEvent) (transport.SocketState, error)
	Conn() *transport.Conn
	SetConn(conn *transport.Conn)
	IsAsync() bool
	IsUpgrade() bool
	UpgradeToken() http.UpgradeToken
	// TimeoutAsync fires the async timeout if it's due at the moment now (unix millis).
	// Negative now forces the timeout.
	TimeoutAsync(now int64)
	// CheckAsyncTimeoutGeneration tells whether the timeout being processed was issued
	// for the current async cycle.
	CheckAsyncTimeoutGeneration() bool
	Pause()
	Recycle()
}

// DispatchType is a pending non-blocking notification.
type DispatchType uint8

const (
	NonBlockingRead DispatchType = iota
	NonBlockingWrite
)

// Event returns the socket event the notification is processed as.
func (d DispatchType) Event() transport.SocketEvent {
	if d == NonBlockingWrite {
		return transport.OpenWrite
	}

	return transport.OpenRead
}
