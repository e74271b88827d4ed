package http1

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"
)

var (
	errPanic         = errors.New("application panicked")
	errConnection    = errors.New("connection failed")
	errDispatch      = errors.New("application couldn't handle the dispatch")
	errUnknownAction = errors.New("unknown action")
	errBadParam      = errors.New("unexpected action parameter")
	errIOBlocked     = errors.New("response can't be written anymore")
)

// isIOError tells whether the error came from the connection itself rather than from
// the application or the protocol.
func isIOError(err error) bool {
	if err == nil {
		return false
	}

	var opErr *net.OpError

	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.As(err, &opErr)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
}
