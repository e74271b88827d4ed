package http1

import (
	"errors"
	"strconv"

	"github.com/indigo-web/connector/config"
	"github.com/indigo-web/connector/http/status"
	"github.com/indigo-web/connector/transport"
)

const crlf = "\r\n"

var errFinished = errors.New("response is already finished")

// continueResponse acknowledges Expect: 100-continue.
var continueResponse = []byte("HTTP/1.1 100 \r\n\r\n")

// OutputBuffer serializes the response: the status line and headers into a fixed-size
// buffer, which is flushed once, the body through the chain of active filters.
type OutputBuffer struct {
	conn      *transport.Conn
	headers   []byte
	buff      []byte
	filters   []OutputFilter
	socket    socketSink
	committed bool
	finished  bool
	err       error
	// commit is called on the first write, if headers weren't sent yet. finished is set
	// when nothing more is going to be written.
	commit func(finished bool) error
	// onError is called on every failed socket write.
	onError func(error)
}

func NewOutputBuffer(cfg *config.Config) *OutputBuffer {
	o := &OutputBuffer{
		headers: make([]byte, 0, cfg.Headers.MaxResponseSize),
		buff:    make([]byte, 0, cfg.NET.WriteBufferSize),
	}
	o.socket.out = o

	return o
}

func (o *OutputBuffer) SetConn(conn *transport.Conn) {
	o.conn = conn
}

// OnCommit sets the callback preparing and sending headers once the body is written
// before an explicit commit.
func (o *OutputBuffer) OnCommit(commit func(finished bool) error) {
	o.commit = commit
}

// OnError sets the callback notified about socket write errors.
func (o *OutputBuffer) OnError(cb func(error)) {
	o.onError = cb
}

// SendStatus writes the status line. The reason phrase is always omitted.
func (o *OutputBuffer) SendStatus(code status.Code) error {
	o.headers = append(o.headers[:0], "HTTP/1.1 "...)
	if str := status.StringCode(code); len(str) > 0 {
		o.headers = append(o.headers, str...)
	} else {
		o.headers = strconv.AppendUint(o.headers, uint64(code), 10)
	}

	return o.appendHeaders(" " + crlf)
}

// SendHeader writes a header field line. Control characters but TAB are stripped.
func (o *OutputBuffer) SendHeader(name, value string) error {
	if len(o.headers)+len(name)+len(value)+len(": ")+len(crlf) > cap(o.headers) {
		return status.ErrHeadersTooLarge
	}

	o.headers = appendSanitized(o.headers, name)
	o.headers = append(o.headers, ':', ' ')
	o.headers = appendSanitized(o.headers, value)
	o.headers = append(o.headers, crlf...)
	return nil
}

// EndHeaders terminates the header block and passes it down to the socket buffer.
func (o *OutputBuffer) EndHeaders() error {
	if err := o.appendHeaders(crlf); err != nil {
		return err
	}

	o.committed = true
	_, err := o.socket.Write(o.headers)
	return err
}

func (o *OutputBuffer) appendHeaders(s string) error {
	if len(o.headers)+len(s) > cap(o.headers) {
		return status.ErrHeadersTooLarge
	}

	o.headers = append(o.headers, s...)
	return nil
}

// AddActiveFilter puts the filter in front of the previously added ones.
func (o *OutputBuffer) AddActiveFilter(filter OutputFilter) {
	filter.SetNext(o.head())
	o.filters = append(o.filters, filter)
}

func (o *OutputBuffer) head() Sink {
	if len(o.filters) == 0 {
		return &o.socket
	}

	return o.filters[len(o.filters)-1]
}

// Committed tells whether the headers were already sent.
func (o *OutputBuffer) Committed() bool {
	return o.committed
}

// Finished tells whether End was already called for the current response.
func (o *OutputBuffer) Finished() bool {
	return o.finished
}

// Write writes the body, committing the response first if needed.
func (o *OutputBuffer) Write(b []byte) (int, error) {
	if o.err != nil {
		return 0, o.err
	}

	if o.finished {
		return 0, errFinished
	}

	if !o.committed {
		if err := o.commit(false); err != nil {
			return 0, err
		}
	}

	return o.head().Write(b)
}

// Flush sends everything buffered so far out.
func (o *OutputBuffer) Flush() error {
	if o.err != nil {
		return o.err
	}

	if !o.committed {
		if err := o.commit(false); err != nil {
			return err
		}
	}

	return o.socket.flush()
}

// End finishes the body. It's no-op if already called.
func (o *OutputBuffer) End() error {
	if o.finished {
		return o.err
	}

	if !o.committed {
		if err := o.commit(true); err != nil {
			return err
		}
	}

	o.finished = true
	if o.err != nil {
		return o.err
	}

	return o.head().End()
}

// Ack writes the interim response straight into the connection.
func (o *OutputBuffer) Ack() error {
	if o.committed {
		return nil
	}

	return o.writeConn(continueResponse)
}

func (o *OutputBuffer) writeConn(b []byte) error {
	if o.err != nil {
		return o.err
	}

	if _, err := o.conn.Write(b); err != nil {
		o.err = err
		if o.onError != nil {
			o.onError(err)
		}

		return err
	}

	return nil
}

// NextRequest resets the per-response state.
func (o *OutputBuffer) NextRequest() {
	for _, filter := range o.filters {
		filter.Recycle()
	}

	o.filters = o.filters[:0]
	o.headers = o.headers[:0]
	o.buff = o.buff[:0]
	o.committed = false
	o.finished = false
}

// Recycle prepares the buffer for another connection.
func (o *OutputBuffer) Recycle() {
	o.NextRequest()
	o.err = nil
	o.conn = nil
}

// socketSink is the last stage, buffering data before it's written into the connection.
type socketSink struct {
	out *OutputBuffer
}

func (s *socketSink) Write(b []byte) (int, error) {
	o := s.out
	if len(o.buff)+len(b) > cap(o.buff) {
		if err := s.flush(); err != nil {
			return 0, err
		}

		if len(b) >= cap(o.buff) {
			if err := o.writeConn(b); err != nil {
				return 0, err
			}

			return len(b), nil
		}
	}

	o.buff = append(o.buff, b...)
	return len(b), nil
}

func (s *socketSink) End() error {
	return s.flush()
}

func (s *socketSink) flush() error {
	o := s.out
	if len(o.buff) == 0 {
		return nil
	}

	err := o.writeConn(o.buff)
	o.buff = o.buff[:0]
	return err
}

func appendSanitized(dst []byte, s string) []byte {
	for i := 0; i < len(s); i++ {
		if char := s[i]; (char >= 0x20 && char != 0x7f) || char == '\t' {
			dst = append(dst, char)
		}
	}

	return dst
}
