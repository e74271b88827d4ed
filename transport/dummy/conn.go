package dummy

import (
	"io"
	"net"
	"sync"
	"time"
)

// Conn is a net.Conn returning pre-defined chunks on reads and journaling everything
// written into it.
type Conn struct {
	mu     sync.Mutex
	data   [][]byte
	closed bool
	nop    bool
	Data   []byte
}

func NewConn(data ...[]byte) *Conn {
	return &Conn{data: data}
}

// Read returns the next pre-defined chunk. Once they are over, io.EOF is returned.
func (c *Conn) Read(b []byte) (n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || len(c.data) == 0 {
		return 0, io.EOF
	}

	n = copy(b, c.data[0])
	if n < len(c.data[0]) {
		c.data[0] = c.data[0][n:]
	} else {
		c.data = c.data[1:]
	}

	return n, nil
}

// Feed appends chunks to be returned by subsequent reads.
func (c *Conn) Feed(data ...[]byte) *Conn {
	c.mu.Lock()
	c.data = append(c.data, data...)
	c.mu.Unlock()
	return c
}

func (c *Conn) Write(b []byte) (n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, net.ErrClosed
	}

	if !c.nop {
		c.Data = append(c.Data, b...)
	}

	return len(b), nil
}

// Written returns a copy of the journaled data and resets the journal.
func (c *Conn) Written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	data := c.Data
	c.Data = nil
	return data
}

func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8080}
}

func (c *Conn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 54321}
}

func (c *Conn) SetDeadline(time.Time) error {
	return nil
}

func (c *Conn) SetReadDeadline(time.Time) error {
	return nil
}

func (c *Conn) SetWriteDeadline(time.Time) error {
	return nil
}

func (c *Conn) Nop() *Conn {
	c.nop = true
	return c
}
