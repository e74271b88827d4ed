package http

import (
	"context"
	"net"
	"time"

	"github.com/indigo-web/connector/http/method"
	"github.com/indigo-web/connector/kv"
)

type (
	Headers = *kv.Storage
	Header  = kv.Pair
)

// Request represents HTTP request. It is owned by the processor of the connection and
// is reused across requests, so it must not be retained after the response is done.
type Request struct {
	// Method is an enum representing the request method.
	Method method.Method
	// RawMethod is the method token as received, useful for extension methods.
	RawMethod string
	// Path is the request target without the query.
	Path string
	// Query is everything after the first question mark, if any.
	Query string
	// Protocol is the protocol token of the request line.
	Protocol string
	// Headers holds non-normalized header pairs, even though lookup is case-insensitive.
	Headers Headers
	// Trailers holds the allowed trailer fields of a chunked body. It's populated only
	// after the body was read to the end.
	Trailers Headers
	// ContentLength obtains the value from Content-Length header. It holds the value of -1
	// if isn't presented.
	ContentLength int64
	// ContentType obtains Content-Type header value
	ContentType string
	// Chunked tells whether the body is transfer-encoded.
	Chunked bool
	// Remote holds the remote address.
	Remote net.Addr
	// Received is the moment the first byte of the request line was processed.
	Received time.Time
	// Body is a dedicated entity providing access to the message body.
	Body *Body

	hook           ActionHook
	response       *Response
	asyncCtx       *AsyncContext
	readListener   ReadListener
	expectContinue bool
}

func NewRequest(headers, trailers *kv.Storage, response *Response) *Request {
	r := &Request{
		Headers:       headers,
		Trailers:      trailers,
		ContentLength: -1,
		hook:          nopHook{},
		response:      response,
	}
	r.asyncCtx = &AsyncContext{request: r}
	r.Body = NewBody(r)

	return r
}

// SetHook binds the request and its response to the action executor.
func (r *Request) SetHook(hook ActionHook) {
	r.hook = hook
	r.response.hook = hook
}

// Action requests the action from the processor serving the request.
func (r *Request) Action(ctx context.Context, code ActionCode, param any) error {
	return r.hook.Action(ctx, code, param)
}

// Response returns the response paired with the request.
func (r *Request) Response() *Response {
	return r.response
}

// StartAsync suspends the request: returning from the application won't finish the
// response, until the AsyncContext is completed or dispatched.
func (r *Request) StartAsync(ctx context.Context) (*AsyncContext, error) {
	if err := r.Action(ctx, ActionAsyncStart, r.asyncCtx); err != nil {
		return nil, err
	}

	return r.asyncCtx, nil
}

// AsyncContext returns the context of the current async cycle. It's valid only after
// StartAsync.
func (r *Request) AsyncContext() *AsyncContext {
	return r.asyncCtx
}

type asyncProbe interface {
	IsAsyncStarted() bool
}

// IsAsyncStarted reports whether the async cycle was started and not yet resolved.
func (r *Request) IsAsyncStarted() bool {
	if probe, ok := r.hook.(asyncProbe); ok {
		return probe.IsAsyncStarted()
	}

	return false
}

// SetReadListener switches the body into the non-blocking mode. It's allowed only
// during an async cycle.
func (r *Request) SetReadListener(ctx context.Context, l ReadListener) error {
	if !r.IsAsyncStarted() {
		return ErrNotAsync
	}

	if r.readListener != nil {
		return ErrListenerIsSet
	}

	r.readListener = l
	if err := r.Action(ctx, ActionDispatchRead, nil); err != nil {
		return err
	}

	return r.Action(ctx, ActionDispatchExecute, nil)
}

func (r *Request) ReadListener() ReadListener {
	return r.readListener
}

// ClearReadListener drops the listener. It is used by the engine once the async cycle
// moved on.
func (r *Request) ClearReadListener() {
	r.readListener = nil
}

// Upgrade switches the connection to another protocol once the response (normally
// 101 Switching Protocols) is written.
func (r *Request) Upgrade(ctx context.Context, handler UpgradeHandler, protocol string) error {
	return r.Action(ctx, ActionUpgrade, UpgradeToken{
		Handler:  handler,
		Protocol: protocol,
	})
}

// ExpectsContinue tells whether the client sent Expect: 100-continue.
func (r *Request) ExpectsContinue() bool {
	return r.expectContinue
}

func (r *Request) SetExpectContinue(flag bool) {
	r.expectContinue = flag
}

// Reset the request
func (r *Request) Reset() {
	r.Method = method.Unknown
	r.RawMethod = ""
	r.Path = ""
	r.Query = ""
	r.Protocol = ""
	r.Headers.Clear()
	r.Trailers.Clear()
	r.ContentLength = -1
	r.ContentType = ""
	r.Chunked = false
	r.Received = time.Time{}
	r.readListener = nil
	r.expectContinue = false
	r.asyncCtx.drain()
	r.Body.reset(nil)
}
