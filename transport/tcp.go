package transport

import (
	"errors"
	"net"
	"os"
	"time"
)

type listener interface {
	net.Listener
	SetDeadline(t time.Time) error
}

// TCP is a listener, whose Accept is periodically interrupted, so the caller gets a chance
// to notice it must stop.
type TCP struct {
	l         listener
	interrupt time.Duration
}

func bindTCP(addr string) (*net.TCPListener, error) {
	tcpaddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}

	return net.ListenTCP("tcp", tcpaddr)
}

// BindTCP starts listening on the address. Port 0 picks a random free port.
func BindTCP(addr string, interrupt time.Duration) (*TCP, error) {
	l, err := bindTCP(addr)
	if err != nil {
		return nil, err
	}

	return &TCP{l: l, interrupt: interrupt}, nil
}

// Accept waits for a connection at most for the interrupt period. If none arrives, both
// returned values are nil.
func (t *TCP) Accept() (net.Conn, error) {
	if t.interrupt > 0 {
		if err := t.l.SetDeadline(time.Now().Add(t.interrupt)); err != nil {
			return nil, err
		}
	}

	conn, err := t.l.Accept()
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, nil
		}

		return nil, err
	}

	return conn, nil
}

func (t *TCP) Addr() net.Addr {
	return t.l.Addr()
}

// Port returns the port the listener is bound to.
func (t *TCP) Port() int {
	if addr, ok := t.l.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}

	return 0
}

func (t *TCP) Close() error {
	return t.l.Close()
}
