package http1

import (
	"errors"
	"io"

	"github.com/indigo-web/connector/http"
	"github.com/indigo-web/connector/transport"
)

var _ http.Retriever = new(body)

// body pulls the request body from the connection lazily, either bounded by Content-Length
// or chunk-encoded.
type body struct {
	conn      *transport.Conn
	chunked   *chunkedParser
	isChunked bool
	left      int64
	done      bool
	// ack is called before the first read, if set.
	ack func() error
}

func (b *body) init(conn *transport.Conn, request *http.Request, chunked *chunkedParser) {
	*b = body{
		conn:      conn,
		chunked:   chunked,
		isChunked: request.Chunked,
		left:      max(request.ContentLength, 0),
		done:      !request.Chunked && request.ContentLength <= 0,
	}
}

// present tells whether the request has a body at all.
func (b *body) present() bool {
	return b.isChunked || b.left > 0
}

func (b *body) Retrieve() ([]byte, error) {
	if b.done {
		return nil, io.EOF
	}

	if b.ack != nil {
		ack := b.ack
		b.ack = nil
		if err := ack(); err != nil {
			return nil, err
		}
	}

	if b.isChunked {
		return b.readChunked()
	}

	return b.readIdentity()
}

func (b *body) readIdentity() ([]byte, error) {
	data, err := b.conn.Read()
	if err != nil {
		return nil, unexpected(err)
	}

	if int64(len(data)) >= b.left {
		piece, extra := data[:b.left], data[b.left:]
		b.conn.Pushback(extra)
		b.left = 0
		b.done = true

		return piece, io.EOF
	}

	b.left -= int64(len(data))
	return data, nil
}

func (b *body) readChunked() ([]byte, error) {
	for {
		data, err := b.conn.Read()
		if err != nil {
			return nil, unexpected(err)
		}

		chunk, extra, err := b.chunked.Parse(data)
		b.conn.Pushback(extra)

		switch err {
		case nil:
			if len(chunk) > 0 {
				return chunk, nil
			}
		case io.EOF:
			b.done = true
			return chunk, io.EOF
		default:
			b.done = true
			return nil, err
		}
	}
}

// swallow discards the rest of the body, unless there's more than limit bytes of it.
func (b *body) swallow(limit int64) bool {
	if b.done {
		return true
	}

	if !b.isChunked && b.left > limit {
		return false
	}

	// the client is still waiting for the permission to send the body
	if b.ack != nil {
		return false
	}

	var swallowed int64
	for {
		piece, err := b.Retrieve()
		if swallowed += int64(len(piece)); swallowed > limit {
			return false
		}

		switch err {
		case nil:
		case io.EOF:
			return true
		default:
			return false
		}
	}
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}

	return err
}
