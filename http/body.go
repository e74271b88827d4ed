package http

import (
	"errors"
	"io"

	"github.com/indigo-web/connector/http/status"
	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/utils/uf"
	json "github.com/json-iterator/go"
)

type BodyCallback func([]byte) error

type Retriever interface {
	// Retrieve reads and returns a piece of body available for processing. The returned
	// slice is valid only until the next call. io.EOF marks the end of the body and may be
	// returned along with the last piece.
	Retrieve() ([]byte, error)
}

type eofRetriever struct{}

func (eofRetriever) Retrieve() ([]byte, error) {
	return nil, io.EOF
}

var errUnsupportedMediaType = status.NewError(status.UnsupportedMediaType, "unsupported media type")

// Body is a lazy accessor of the request body: nothing is read from the connection, until
// asked for.
type Body struct {
	retriever Retriever
	request   *Request
	buff      []byte
	pending   []byte
	error     error
}

func NewBody(r *Request) *Body {
	return &Body{
		retriever: eofRetriever{},
		request:   r,
	}
}

// Bind replaces the body source. It's called by the engine once per request.
func (b *Body) Bind(retriever Retriever) {
	b.reset(retriever)
}

func (b *Body) reset(retriever Retriever) {
	if retriever == nil {
		retriever = eofRetriever{}
	}

	b.retriever = retriever
	b.buff = b.buff[:0]
	b.pending = nil
	b.error = nil
}

func (b *Body) retrieve() ([]byte, error) {
	return b.retriever.Retrieve()
}

// Callback invokes the callback every time as there's a piece of body available
// for reading. If the callback returns an error, it'll be passed back to the caller.
func (b *Body) Callback(cb BodyCallback) error {
	if b.error != nil {
		if b.error == io.EOF {
			return nil
		}

		return b.error
	}

	for {
		var data []byte
		data, b.error = b.retrieve()
		switch b.error {
		case nil:
		case io.EOF:
			if len(data) == 0 {
				return nil
			}

			return cb(data)
		default:
			return b.error
		}

		if err := cb(data); err != nil {
			return err
		}
	}
}

// Bytes returns the whole body at once in a byte representation.
func (b *Body) Bytes() ([]byte, error) {
	if len(b.buff) != 0 {
		return b.buff, nil
	}

	if b.error != nil && b.error != io.EOF {
		return nil, b.error
	}

	if b.buff == nil {
		prealloc := 512
		if cl := b.request.ContentLength; cl > 0 && cl < 64*1024 {
			prealloc = int(cl)
		}

		b.buff = make([]byte, 0, prealloc)
	}

	for b.error == nil {
		var data []byte
		data, b.error = b.retrieve()
		b.buff = append(b.buff, data...)
	}

	if b.error == io.EOF {
		return b.buff, nil
	}

	return nil, b.error
}

// String returns the whole body at once in a string representation.
func (b *Body) String() (string, error) {
	bytes, err := b.Bytes()
	return uf.B2S(bytes), err
}

// Read implements the io.Reader interface.
func (b *Body) Read(into []byte) (n int, err error) {
	if len(b.pending) == 0 && b.error == nil {
		b.pending, b.error = b.retrieve()
	}

	n = copy(into, b.pending)
	b.pending = b.pending[n:]

	if len(b.pending) == 0 && b.error != nil {
		err = b.error
	}

	return n, err
}

// JSON convoys the request's body to a json unmarshaller automatically.
func (b *Body) JSON(model any) error {
	if ct := b.request.ContentType; len(ct) > 0 && !isJSON(ct) {
		return errUnsupportedMediaType
	}

	data, err := b.Bytes()
	if err != nil {
		return err
	}

	iterator := json.ConfigDefault.BorrowIterator(data)
	iterator.ReadVal(model)
	err = iterator.Error
	json.ConfigDefault.ReturnIterator(iterator)

	return err
}

// Discard discards the rest of the body (if any). If no networking error was encountered,
// nil is returned.
func (b *Body) Discard() error {
	b.pending = nil
	for b.error == nil {
		_, b.error = b.retrieve()
	}

	if b.error == io.EOF {
		return nil
	}

	return b.error
}

// Done tells whether the body was read to the end or failed.
func (b *Body) Done() bool {
	return b.error != nil && len(b.pending) == 0
}

// Error returns a previously encountered error, otherwise nil. The end of the body
// isn't an error.
func (b *Body) Error() error {
	if errors.Is(b.error, io.EOF) {
		return nil
	}

	return b.error
}

func isJSON(contentType string) bool {
	const mime = "application/json"

	if len(contentType) < len(mime) || !strcomp.EqualFold(contentType[:len(mime)], mime) {
		return false
	}

	rest := contentType[len(mime):]
	return len(rest) == 0 || rest[0] == ';' || rest[0] == ' '
}
