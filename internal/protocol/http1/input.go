package http1

import (
	"github.com/indigo-web/connector/config"
	"github.com/indigo-web/connector/http"
	"github.com/indigo-web/connector/http/method"
	"github.com/indigo-web/connector/internal/timer"
	"github.com/indigo-web/connector/transport"
)

// InputBuffer reads requests from the connection: the request line and headers eagerly,
// the body on demand.
type InputBuffer struct {
	cfg     *config.Config
	conn    *transport.Conn
	request *http.Request
	parser  *Parser
	chunked *chunkedParser
	body    body

	// expected is unset for bodiless methods. Their framed bytes, if any, are still
	// consumed, but only to keep the connection in sync.
	expected bool
}

func NewInputBuffer(cfg *config.Config, request *http.Request) *InputBuffer {
	return &InputBuffer{
		cfg:     cfg,
		request: request,
		parser:  NewParser(cfg, request),
		chunked: newChunkedParser(cfg, request.Trailers),
	}
}

func (i *InputBuffer) SetConn(conn *transport.Conn) {
	i.conn = conn
}

// Started tells whether a part of the next request was already consumed.
func (i *InputBuffer) Started() bool {
	return i.parser.Started()
}

// ParseRequest reads until the header block is complete. When keptAlive is set, only
// the data already buffered is considered to begin a request: if there's none, false is
// returned, and it's up to the caller to wait for more.
func (i *InputBuffer) ParseRequest(keptAlive bool) (bool, error) {
	if keptAlive && len(i.conn.Pending()) == 0 && !i.parser.Started() {
		return false, nil
	}

	for {
		data, err := i.conn.Read()
		if err != nil {
			return false, err
		}

		if !i.parser.Started() {
			i.request.Received = timer.Now()
		}

		done, extra, err := i.parser.Parse(data)
		if err != nil {
			return false, err
		}

		if done {
			i.conn.Pushback(extra)
			break
		}
	}

	i.body.init(i.conn, i.request, i.chunked)
	i.expected = i.body.present() && !method.Bodiless(i.request.Method)
	if i.expected {
		i.request.Body.Bind(&i.body)
	} else {
		i.request.Body.Bind(nil)
	}

	return true, nil
}

// HasBody tells whether the current request carries a body the application may read.
func (i *InputBuffer) HasBody() bool {
	return i.expected
}

// Framed tells whether the request announced a body, regardless of whether the
// application may read it.
func (i *InputBuffer) Framed() bool {
	return i.body.present()
}

// OnFirstRead registers the callback invoked right before the body is read for the
// first time.
func (i *InputBuffer) OnFirstRead(cb func() error) {
	if !i.body.done {
		i.body.ack = cb
	}
}

// Acknowledged drops the first-read callback, as its job is already done.
func (i *InputBuffer) Acknowledged() {
	i.body.ack = nil
}

// EndRequest discards the unread rest of the body. False means the connection can't
// be reused, as the rest is too large, malformed or still not sent by the client.
func (i *InputBuffer) EndRequest() bool {
	return i.body.swallow(i.cfg.Body.MaxSwallowSize)
}

// CanSwallow tells whether EndRequest has a chance to succeed without reading from the
// connection more than allowed.
func (i *InputBuffer) CanSwallow() bool {
	b := &i.body
	return b.done || (b.ack == nil && (b.isChunked || b.left <= i.cfg.Body.MaxSwallowSize))
}

// NextRequest prepares the buffer for the next request on the same connection.
func (i *InputBuffer) NextRequest() {
	i.parser.Reset()
	i.chunked.Recycle()
	i.body = body{}
	i.expected = false
}

// Recycle prepares the buffer for another connection.
func (i *InputBuffer) Recycle() {
	i.NextRequest()
	i.conn = nil
}
