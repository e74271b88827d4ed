package transport

import (
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/indigo-web/connector/config"
	"github.com/indigo-web/connector/internal/timer"
)

// Conn wraps an accepted connection together with everything the engine keeps per socket:
// the read buffer, data pushed back by the parser, I/O timeouts and the dispatcher that
// schedules its processing.
type Conn struct {
	key        uint64
	conn       net.Conn
	buff       []byte
	pending    []byte
	protocol   string
	dispatcher Dispatcher

	readTimeout   atomic.Int64
	writeTimeout  time.Duration
	keepAlive     time.Duration
	keepAliveLeft int

	// mu is held while the connection is being processed.
	mu       sync.Mutex
	awaiting atomic.Bool
	closed   atomic.Bool
}

func NewConn(key uint64, conn net.Conn, cfg config.NET, dispatcher Dispatcher) *Conn {
	c := &Conn{
		key:           key,
		conn:          conn,
		buff:          make([]byte, cfg.ReadBufferSize),
		dispatcher:    dispatcher,
		writeTimeout:  cfg.WriteTimeout,
		keepAlive:     cfg.KeepAliveTimeout,
		keepAliveLeft: cfg.MaxKeepAliveRequests,
	}
	c.readTimeout.Store(int64(cfg.ConnectionTimeout))

	return c
}

// Key uniquely identifies the connection within its endpoint.
func (c *Conn) Key() uint64 {
	return c.key
}

// Read reads data into the internal buffer and returns a piece of it back. Data preserved
// via Pushback is returned first. Timeouts are also handled automatically.
func (c *Conn) Read() ([]byte, error) {
	if len(c.pending) > 0 {
		pending := c.pending
		c.pending = nil

		return pending, nil
	}

	return c.read(c.ReadTimeout())
}

func (c *Conn) read(timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		if err := c.conn.SetReadDeadline(timer.Now().Add(timeout)); err != nil {
			return nil, err
		}
	}

	n, err := c.conn.Read(c.buff)
	return c.buff[:n], err
}

// Pending returns data (if any) preserved via Pushback.
func (c *Conn) Pending() []byte {
	return c.pending
}

// Pushback preserves a chunk of data from previous read for the next read.
func (c *Conn) Pushback(b []byte) {
	c.pending = b
}

// Write writes data into the underlying connection.
func (c *Conn) Write(b []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(timer.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}

	return c.conn.Write(b)
}

// SetReadTimeout changes the timeout applied to subsequent reads, including the wait for
// readability. Zero disables the timeout.
func (c *Conn) SetReadTimeout(timeout time.Duration) {
	c.readTimeout.Store(int64(timeout))
}

func (c *Conn) ReadTimeout() time.Duration {
	return time.Duration(c.readTimeout.Load())
}

// KeepAliveTimeout is the configured idle timeout between requests.
func (c *Conn) KeepAliveTimeout() time.Duration {
	return c.keepAlive
}

// DecrementKeepAlive counts a request served over the connection and returns how many
// more are allowed. Negative values mean there's no limit.
func (c *Conn) DecrementKeepAlive() int {
	if c.keepAliveLeft < 0 {
		return -1
	}

	if c.keepAliveLeft > 0 {
		c.keepAliveLeft--
	}

	return c.keepAliveLeft
}

// NegotiatedProtocol returns the protocol agreed on via ALPN. It is always empty for
// plain-text connections and before the handshake is done.
func (c *Conn) NegotiatedProtocol() string {
	if len(c.protocol) == 0 {
		if tlsConn, ok := c.conn.(*tls.Conn); ok {
			c.protocol = tlsConn.ConnectionState().NegotiatedProtocol
		}
	}

	return c.protocol
}

// ProcessSocket hands the event over to the dispatcher. It returns false if the dispatcher
// refused it.
func (c *Conn) ProcessSocket(event SocketEvent, dispatch bool) bool {
	if c.dispatcher == nil || c.closed.Load() {
		return false
	}

	return c.dispatcher.ProcessSocket(c, event, dispatch)
}

// RegisterReadInterest asks the dispatcher to deliver OpenRead when data arrives.
func (c *Conn) RegisterReadInterest() {
	if c.dispatcher != nil && !c.closed.Load() {
		c.dispatcher.RegisterReadInterest(c)
	}
}

// Conn unwraps the underlying net.Conn.
func (c *Conn) Conn() net.Conn {
	return c.conn
}

// Remote returns the remote address of the connection.
func (c *Conn) Remote() net.Addr {
	return c.conn.RemoteAddr()
}

// IsClosed reports whether Close was already called.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Close closes the connection. Subsequent calls are no-op.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	return c.conn.Close()
}
