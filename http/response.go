package http

import (
	"context"
	"errors"
	"io"
	"strconv"

	"github.com/indigo-web/connector/http/mime"
	"github.com/indigo-web/connector/http/status"
	"github.com/indigo-web/connector/kv"
	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/utils/uf"
	json "github.com/json-iterator/go"
)

const (
	// why 7? I don't know. There's no theory behind this number nor researches.
	// It can be adjusted to 10 as well, but why you would ever need to do this?
	preallocRespHeaders = 7
	DefaultContentType  = mime.HTML
)

// Response is written in a streaming manner: headers set before the first write of the body
// (or an explicit commit) are sent, the later ones are silently ignored.
type Response struct {
	code          status.Code
	headers       *kv.Storage
	trailers      *kv.Storage
	contentType   string
	contentLength int64
	committed     bool
	written       int64
	err           error
	hook          ActionHook
	out           io.Writer
	writeListener WriteListener
}

// NewResponse returns a new instance of the Response object with status code set to 200 OK,
// pre-allocated space for response headers and text/html content-type.
func NewResponse() *Response {
	return &Response{
		code:          status.OK,
		headers:       kv.NewPrealloc(preallocRespHeaders),
		trailers:      kv.New(),
		contentType:   DefaultContentType,
		contentLength: -1,
		hook:          nopHook{},
	}
}

// SetOutput sets the stream the body is written into. It's called by the engine.
func (r *Response) SetOutput(out io.Writer) {
	r.out = out
}

// Code sets a Response code.
func (r *Response) Code(code status.Code) *Response {
	r.code = code
	return r
}

// ContentType sets a custom Content-Type header value. Empty value omits the header.
func (r *Response) ContentType(value string) *Response {
	r.contentType = value
	return r
}

// ContentLength sets the length of the body. Negative value means the length is unknown.
func (r *Response) ContentLength(length int64) *Response {
	r.contentLength = length
	return r
}

// Header adds header values to a key. In case it already exists the values will
// be appended. Content-Type and Content-Length are handled separately.
func (r *Response) Header(key string, values ...string) *Response {
	if len(values) == 0 {
		return r
	}

	switch {
	case strcomp.EqualFold(key, "content-type"):
		return r.ContentType(values[0])
	case strcomp.EqualFold(key, "content-length"):
		if length, err := strconv.ParseInt(values[0], 10, 64); err == nil {
			return r.ContentLength(length)
		}

		return r
	}

	for _, value := range values {
		r.headers.Add(key, value)
	}

	return r
}

// SetHeader replaces all the values of the header.
func (r *Response) SetHeader(key, value string) *Response {
	r.headers.Delete(key)
	return r.Header(key, value)
}

// Trailer adds a trailer field. Trailers are sent only with chunked bodies.
func (r *Response) Trailer(key, value string) *Response {
	r.trailers.Add(key, value)
	return r
}

func (r *Response) StatusCode() status.Code {
	return r.code
}

func (r *Response) Headers() *kv.Storage {
	return r.headers
}

func (r *Response) Trailers() *kv.Storage {
	return r.trailers
}

func (r *Response) GetContentType() string {
	return r.contentType
}

func (r *Response) GetContentLength() int64 {
	return r.contentLength
}

// Write implements io.Writer. The response is committed on the first call.
func (r *Response) Write(b []byte) (n int, err error) {
	if r.out == nil {
		return 0, ErrNoHook
	}

	n, err = r.out.Write(b)
	r.written += int64(n)
	return n, err
}

// String writes the string as the body. If nothing was written yet, the length of the body
// is set to the string's one.
func (r *Response) String(body string) error {
	return r.Bytes(uf.S2B(body))
}

// Bytes writes the slice as the body. If nothing was written yet, the length of the body
// is set to the slice's one.
func (r *Response) Bytes(body []byte) error {
	if !r.committed && r.contentLength < 0 {
		r.contentLength = int64(len(body))
	}

	_, err := r.Write(body)
	return err
}

// JSON serializes the model and writes it as the body.
func (r *Response) JSON(model any) error {
	data, err := json.ConfigDefault.Marshal(model)
	if err != nil {
		return err
	}

	r.ContentType(mime.JSON)
	return r.Bytes(data)
}

// Error sets the status code of the error. If an instance of status.HTTPError is passed,
// its code is used, otherwise the custom code (if passed) or 500 Internal Server Error.
func (r *Response) Error(err error, code ...status.Code) *Response {
	if err == nil {
		return r
	}

	r.err = err

	var herr status.HTTPError
	if errors.As(err, &herr) {
		return r.Code(herr.Code)
	}

	c := status.InternalServerError
	if len(code) > 0 {
		c = code[0]
	}

	return r.Code(c)
}

// Err returns the error the response was marked with.
func (r *Response) Err() error {
	return r.err
}

// SetErr marks the response with an error without altering the status code.
func (r *Response) SetErr(err error) {
	r.err = err
}

// Commit writes the status line and the headers out.
func (r *Response) Commit(ctx context.Context) error {
	return r.hook.Action(ctx, ActionCommit, nil)
}

// Flush writes everything buffered so far out, committing the response if needed.
func (r *Response) Flush(ctx context.Context) error {
	return r.hook.Action(ctx, ActionClientFlush, nil)
}

// Finish completes the response. Nothing can be written afterward.
func (r *Response) Finish(ctx context.Context) error {
	return r.hook.Action(ctx, ActionClose, nil)
}

// IsCommitted tells whether the headers were already sent.
func (r *Response) IsCommitted() bool {
	return r.committed
}

// SetCommitted is called by the engine once the headers are out.
func (r *Response) SetCommitted(flag bool) {
	r.committed = flag
}

// BytesWritten returns the number of body bytes written by the application.
func (r *Response) BytesWritten() int64 {
	return r.written
}

// SetWriteListener switches the response into the non-blocking mode. It's allowed only
// during an async cycle.
func (r *Response) SetWriteListener(ctx context.Context, l WriteListener) error {
	if probe, ok := r.hook.(asyncProbe); !ok || !probe.IsAsyncStarted() {
		return ErrNotAsync
	}

	if r.writeListener != nil {
		return ErrListenerIsSet
	}

	r.writeListener = l
	if err := r.hook.Action(ctx, ActionDispatchWrite, nil); err != nil {
		return err
	}

	return r.hook.Action(ctx, ActionDispatchExecute, nil)
}

func (r *Response) WriteListener() WriteListener {
	return r.writeListener
}

func (r *Response) ClearWriteListener() {
	r.writeListener = nil
}

// Reset discards the status, headers and content metadata. It fails once the response
// is committed.
func (r *Response) Reset() error {
	if r.committed {
		return ErrCommitted
	}

	r.code = status.OK
	r.headers.Clear()
	r.trailers.Clear()
	r.contentType = DefaultContentType
	r.contentLength = -1
	r.err = nil
	return nil
}

// Recycle prepares the response for the next request.
func (r *Response) Recycle() {
	r.committed = false
	_ = r.Reset()
	r.written = 0
	r.writeListener = nil
}
