package http1

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/indigo-web/connector/adapter"
	"github.com/indigo-web/connector/config"
	"github.com/indigo-web/connector/http"
	"github.com/indigo-web/connector/http/codec"
	"github.com/indigo-web/connector/http/method"
	"github.com/indigo-web/connector/http/proto"
	"github.com/indigo-web/connector/http/status"
	"github.com/indigo-web/connector/internal/async"
	"github.com/indigo-web/connector/internal/codecutil"
	"github.com/indigo-web/connector/internal/executor"
	"github.com/indigo-web/connector/internal/processor"
	"github.com/indigo-web/connector/internal/timer"
	"github.com/indigo-web/connector/kv"
	"github.com/indigo-web/connector/transport"
	"github.com/rs/zerolog"
)

var (
	_ processor.Processor = new(Processor)
	_ processor.Protocol  = new(Processor)
	_ http.ActionHook     = new(Processor)
)

// Executor runs tasks submitted on behalf of suspended requests.
type Executor interface {
	Execute(task executor.Task) error
}

type containerKey struct{}

// call marks the context passed into the application. Actions requested with it are
// considered to come from within the engine, until the call returns.
type call struct {
	processor *Processor
	returned  atomic.Bool
}

// Processor serves HTTP/1.1 (and 1.0) requests of one connection at a time.
type Processor struct {
	processor.Light

	cfg      *config.Config
	adapter  adapter.Adapter
	executor Executor
	counters *processor.Counters
	log      zerolog.Logger

	conn     *transport.Conn
	request  *http.Request
	response *http.Response
	input    *InputBuffer
	output   *OutputBuffer
	machine  *async.Machine
	codecs   codecutil.Cache

	identity    *IdentityFilter
	chunked     *ChunkedFilter
	void        *VoidFilter
	compression *CompressionFilter

	errorState      atomic.Uint32
	errorReported   atomic.Bool
	processing      atomic.Bool
	paused          atomic.Bool
	asyncTimeout    atomic.Int64
	timeoutGen      atomic.Uint64
	keepAlive       bool
	http11          bool
	acked           bool
	inFlight        bool
	dispatchPending bool
	upgradeToken    *http.UpgradeToken
}

func New(
	cfg *config.Config, app adapter.Adapter, exec Executor, counters *processor.Counters, log zerolog.Logger,
) *Processor {
	response := http.NewResponse()
	request := http.NewRequest(kv.NewPrealloc(cfg.Headers.MaxCount/4), kv.New(), response)

	p := &Processor{
		cfg:         cfg,
		adapter:     app,
		executor:    exec,
		counters:    counters,
		log:         log.With().Str("component", "processor").Logger(),
		request:     request,
		response:    response,
		input:       NewInputBuffer(cfg, request),
		output:      NewOutputBuffer(cfg),
		codecs:      codecutil.NewCache(codec.Lookup(cfg.Compression.Codecs), cfg.Compression.Level),
		identity:    NewIdentityFilter(),
		chunked:     NewChunkedFilter(response.Trailers),
		void:        NewVoidFilter(),
		compression: NewCompressionFilter(),
		keepAlive:   true,
		http11:      true,
	}
	p.machine = async.New(func() {
		request.ClearReadListener()
		response.ClearWriteListener()
	})
	p.asyncTimeout.Store(p.defaultAsyncTimeout())

	request.SetHook(p)
	response.SetOutput(p.output)
	p.output.OnCommit(p.commit)
	p.output.OnError(func(err error) {
		p.setErrorState(processor.ErrorCloseConnectionNow, err)
	})

	return p
}

// Process implements processor.Processor.
func (p *Processor) Process(conn *transport.Conn, event transport.SocketEvent) (transport.SocketState, error) {
	p.processing.Store(true)
	defer p.processing.Store(false)

	return p.Light.Process(p, conn, event)
}

// Service reads and serves requests, as long as they are available without waiting.
func (p *Processor) Service(conn *transport.Conn) (transport.SocketState, error) {
	for !p.errState().IsError() && p.keepAlive && !p.machine.IsAsync() &&
		p.upgradeToken == nil && !p.paused.Load() {
		conn.SetReadTimeout(p.cfg.NET.ConnectionTimeout)

		ok, err := p.input.ParseRequest(true)
		if err != nil {
			return p.parseFailed(err)
		}

		if !ok {
			conn.SetReadTimeout(p.cfg.NET.KeepAliveTimeout)
			return transport.Open, nil
		}

		p.prepareRequest()

		err = p.call(func(ctx context.Context) error {
			return p.adapter.Service(ctx, p.request, p.response)
		})
		if err != nil {
			p.serviceFailed(err)
		}

		if !p.machine.IsAsync() {
			p.endRequest()
			p.finishRequest()
		}
	}

	return p.result()
}

// Dispatch resumes a suspended request on the event.
func (p *Processor) Dispatch(event transport.SocketEvent) (transport.SocketState, error) {
	switch {
	case event == transport.OpenWrite && p.response.WriteListener() != nil:
		if err := p.machine.AsyncOperation(); err != nil {
			return transport.Closed, err
		}

		l := p.response.WriteListener()
		if err := p.call(l.OnWritePossible); err != nil {
			p.listenerFailed(l.OnError, err)
		}
	case event == transport.OpenRead && p.request.ReadListener() != nil:
		if err := p.dispatchRead(); err != nil {
			return transport.Closed, err
		}
	case event == transport.Timeout:
		if err := p.dispatchTimeout(); err != nil {
			return transport.Closed, err
		}
	case event == transport.Error:
		return p.dispatchError()
	case event == transport.Stop:
		return p.closed()
	}

	if p.dispatchPending && p.machine.State() == async.Dispatched {
		p.dispatchPending = false
		if err := p.asyncDispatch(transport.OpenRead); err != nil {
			p.serviceFailed(err)
		}
	} else if p.machine.IsAsyncDispatching() {
		// the application is serviced again once the worker leaves the current cycle
		p.dispatchPending = true
	}

	if p.inFlight && !p.errState().IsError() && !p.machine.IsAsync() {
		p.endRequest()
		p.finishRequest()
	}

	return p.result()
}

func (p *Processor) result() (transport.SocketState, error) {
	switch {
	case p.errState().IsError():
		return p.closed()
	case p.machine.IsAsync():
		return transport.Long, nil
	case p.paused.Load():
		return transport.Closed, nil
	case p.upgradeToken != nil:
		return transport.Upgrading, nil
	case !p.keepAlive:
		return transport.Closed, nil
	}

	p.conn.SetReadTimeout(p.cfg.NET.KeepAliveTimeout)
	return transport.Open, nil
}

func (p *Processor) dispatchRead() error {
	l := p.request.ReadListener()
	if err := p.machine.AsyncOperation(); err != nil {
		return err
	}

	err := p.call(func(ctx context.Context) error {
		body := p.request.Body
		if p.input.HasBody() && !body.Done() {
			if err := l.OnDataAvailable(ctx); err != nil {
				return err
			}

			if err := body.Error(); err != nil {
				return err
			}

			if !body.Done() {
				p.conn.RegisterReadInterest()
				return nil
			}
		}

		return l.OnAllDataRead(ctx)
	})
	if err != nil {
		p.listenerFailed(l.OnError, err)
	}

	return nil
}

func (p *Processor) dispatchTimeout() error {
	fire, err := p.machine.AsyncTimeout()
	if err != nil {
		p.log.Debug().Err(err).Msg("stale async timeout")
		return nil
	}

	if !fire {
		return nil
	}

	if err = p.asyncDispatch(transport.Timeout); err != nil {
		p.setErrorState(processor.ErrorCloseNow, err)
		return nil
	}

	if p.machine.IsAsyncTimingOut() {
		// nobody completed nor dispatched the request
		p.machine.AsyncError(true)
		if !p.response.IsCommitted() {
			p.response.Code(status.InternalServerError)
		}

		p.keepAlive = false
		_, err = p.machine.AsyncComplete(true)
	}

	return err
}

func (p *Processor) dispatchError() (transport.SocketState, error) {
	if !p.machine.IsAsync() {
		return transport.Closed, nil
	}

	err := p.response.Err()
	if err == nil {
		err = errConnection
		p.response.SetErr(err)
	}

	rl, wl := p.request.ReadListener(), p.response.WriteListener()
	if !p.machine.IsAsyncError() {
		p.machine.AsyncError(true)
	}

	_ = p.call(func(ctx context.Context) error {
		if rl != nil {
			rl.OnError(ctx, err)
		}

		if wl != nil {
			wl.OnError(ctx, err)
		}

		return nil
	})

	if dispatchErr := p.asyncDispatch(transport.Error); dispatchErr != nil {
		p.log.Debug().Err(dispatchErr).Msg("error dispatch failed")
	}

	if p.machine.IsAsyncError() {
		if _, cerr := p.machine.AsyncComplete(true); cerr != nil {
			return transport.Closed, cerr
		}
	}

	if !p.response.IsCommitted() && p.response.StatusCode() < status.BadRequest {
		p.response.Code(status.InternalServerError)
	}

	p.setErrorState(processor.ErrorCloseClean, err)
	p.drainAsync()

	if p.errState().IsIOAllowed() {
		p.endRequest()
	}

	p.finishRequest()
	return transport.Closed, nil
}

func (p *Processor) AsyncPostProcess() (transport.SocketState, error) {
	return p.machine.AsyncPostProcess()
}

func (p *Processor) IsAsync() bool {
	return p.machine.IsAsync()
}

func (p *Processor) IsAsyncStarted() bool {
	return p.machine.IsAsyncStarted()
}

func (p *Processor) IsUpgrade() bool {
	return false
}

func (p *Processor) UpgradeToken() http.UpgradeToken {
	if p.upgradeToken == nil {
		return http.UpgradeToken{}
	}

	return *p.upgradeToken
}

// LogAccess logs a connection which failed before any request could be read.
func (p *Processor) LogAccess(*transport.Conn) {
	p.response.Code(status.BadRequest)
	p.adapter.Log(p.request, p.response, 0)
}

func (p *Processor) Conn() *transport.Conn {
	return p.conn
}

func (p *Processor) SetConn(conn *transport.Conn) {
	p.conn = conn
	p.input.SetConn(conn)
	p.output.SetConn(conn)
	if conn != nil {
		p.request.Remote = conn.Remote()
	}
}

// TimeoutAsync fires the timeout of the suspended request if it's due.
func (p *Processor) TimeoutAsync(now int64) {
	if now < 0 {
		p.doTimeoutAsync()
		return
	}

	if timeout := p.asyncTimeout.Load(); timeout > 0 {
		if start := p.machine.LastAsyncStart(); start > 0 && now-start > timeout {
			p.doTimeoutAsync()
		}
	} else if !p.machine.IsAvailable() {
		p.doTimeoutAsync()
	}
}

func (p *Processor) doTimeoutAsync() {
	// prevents firing again until the next cycle
	p.asyncTimeout.Store(-1)
	p.timeoutGen.Store(p.machine.Generation())
	p.processSocket(transport.Timeout)
}

func (p *Processor) CheckAsyncTimeoutGeneration() bool {
	return p.timeoutGen.Load() == p.machine.Generation()
}

func (p *Processor) Pause() {
	p.paused.Store(true)
}

// Recycle prepares the processor to serve another connection.
func (p *Processor) Recycle() {
	p.request.Reset()
	p.response.Recycle()
	p.input.Recycle()
	p.output.Recycle()
	p.machine.Recycle()
	p.ClearDispatches()
	p.errorState.Store(uint32(processor.ErrorNone))
	p.errorReported.Store(false)
	p.paused.Store(false)
	p.asyncTimeout.Store(p.defaultAsyncTimeout())
	p.keepAlive = true
	p.http11 = true
	p.acked = false
	p.inFlight = false
	p.dispatchPending = false
	p.upgradeToken = nil
	p.conn = nil
}

// Action implements http.ActionHook.
func (p *Processor) Action(ctx context.Context, code http.ActionCode, param any) error {
	switch code {
	case http.ActionCommit:
		if p.output.Committed() {
			return nil
		}

		if !p.errState().IsIOAllowed() {
			return errIOBlocked
		}

		return p.commit(false)
	case http.ActionClose:
		if !p.errState().IsIOAllowed() {
			return errIOBlocked
		}

		return p.output.End()
	case http.ActionAck:
		return p.ack()
	case http.ActionClientFlush:
		if !p.errState().IsIOAllowed() {
			return errIOBlocked
		}

		return p.output.Flush()
	case http.ActionAsyncStart:
		ac, ok := param.(*http.AsyncContext)
		if !ok {
			return fmt.Errorf("%w: %T", errBadParam, param)
		}

		if err := p.machine.AsyncStart(ac); err != nil {
			return err
		}

		p.asyncTimeout.Store(p.defaultAsyncTimeout())
	case http.ActionAsyncComplete:
		p.ClearDispatches()
		redispatch, err := p.machine.AsyncComplete(p.onContainer(ctx))
		if err != nil {
			return err
		}

		if redispatch {
			p.processSocket(transport.OpenRead)
		}
	case http.ActionAsyncDispatch:
		redispatch, err := p.machine.AsyncDispatch(p.onContainer(ctx))
		if err != nil {
			return err
		}

		if redispatch {
			p.processSocket(transport.OpenRead)
		}
	case http.ActionAsyncError:
		return p.asyncError(ctx, param)
	case http.ActionAsyncRun:
		task, ok := param.(func())
		if !ok {
			return fmt.Errorf("%w: %T", errBadParam, param)
		}

		if err := p.machine.AsyncRun(); err != nil {
			return err
		}

		if p.executor == nil {
			go task()
			return nil
		}

		return p.executor.Execute(task)
	case http.ActionAsyncSetTimeout:
		timeout, ok := param.(time.Duration)
		if !ok {
			return fmt.Errorf("%w: %T", errBadParam, param)
		}

		if timeout <= 0 {
			p.asyncTimeout.Store(-1)
		} else {
			p.asyncTimeout.Store(timeout.Milliseconds())
		}
	case http.ActionDispatchRead:
		p.AddDispatch(processor.NonBlockingRead)
	case http.ActionDispatchWrite:
		p.AddDispatch(processor.NonBlockingWrite)
	case http.ActionDispatchExecute:
		// dispatches requested from within the engine are picked up when the call returns
		if p.onContainer(ctx) {
			return nil
		}

		for _, dispatch := range p.TakeDispatches() {
			p.processSocket(dispatch.Event())
		}
	case http.ActionUpgrade:
		token, ok := param.(http.UpgradeToken)
		if !ok || token.Handler == nil {
			return fmt.Errorf("%w: %T", errBadParam, param)
		}

		if p.output.Committed() {
			return http.ErrCommitted
		}

		p.upgradeToken = &token
		p.response.Code(status.SwitchingProtocols).SetHeader("Connection", "upgrade")
		if len(token.Protocol) > 0 {
			p.response.SetHeader("Upgrade", token.Protocol)
		}
	default:
		return fmt.Errorf("%w: %s", errUnknownAction, code)
	}

	return nil
}

func (p *Processor) asyncError(ctx context.Context, param any) error {
	err, _ := param.(error)
	if err == nil {
		err = errConnection
	}

	p.response.SetErr(err)
	if !p.onContainer(ctx) {
		if p.machine.AsyncError(false) {
			p.processSocket(transport.Error)
		}

		return nil
	}

	p.machine.AsyncError(true)
	p.request.AsyncContext().FireOnError(ctx, err)

	if state := p.machine.State(); state == async.MustError || state == async.Error {
		if _, cerr := p.machine.AsyncComplete(true); cerr != nil {
			return cerr
		}
	}

	if !p.response.IsCommitted() && p.response.StatusCode() < status.BadRequest {
		p.response.Code(status.InternalServerError)
	}

	p.keepAlive = false
	return nil
}

// call invokes the application with a context identifying the call.
func (p *Processor) call(fn func(ctx context.Context) error) (err error) {
	c := &call{processor: p}
	ctx := context.WithValue(context.Background(), containerKey{}, c)

	defer func() {
		c.returned.Store(true)

		if r := recover(); r != nil {
			p.log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("recovered from a panic in the application")
			err = fmt.Errorf("%w: %v", errPanic, r)
		}
	}()

	return fn(ctx)
}

func (p *Processor) onContainer(ctx context.Context) bool {
	if ctx == nil {
		return false
	}

	c, ok := ctx.Value(containerKey{}).(*call)
	return ok && c.processor == p && !c.returned.Load()
}

func (p *Processor) asyncDispatch(event transport.SocketEvent) error {
	var ok bool
	err := p.call(func(ctx context.Context) (err error) {
		ok, err = p.adapter.AsyncDispatch(ctx, p.request, p.response, event)
		return err
	})

	if err == nil && !ok {
		err = errDispatch
	}

	return err
}

func (p *Processor) processSocket(event transport.SocketEvent) {
	if conn := p.conn; conn != nil {
		conn.ProcessSocket(event, true)
	}
}

func (p *Processor) defaultAsyncTimeout() int64 {
	if p.cfg.Async.Timeout <= 0 {
		return -1
	}

	return p.cfg.Async.Timeout.Milliseconds()
}

func (p *Processor) errState() processor.ErrorState {
	return processor.ErrorState(p.errorState.Load())
}

// setErrorState escalates the error state. If the response can't be written anymore
// while the request is suspended, the error is dispatched to the application.
func (p *Processor) setErrorState(state processor.ErrorState, err error) {
	var old processor.ErrorState
	for {
		current := p.errorState.Load()
		old = processor.ErrorState(current)
		if p.errorState.CompareAndSwap(current, uint32(old.Merge(state))) {
			break
		}
	}

	if err != nil && p.response.Err() == nil {
		p.response.SetErr(err)
	}

	if !p.response.IsCommitted() && p.response.StatusCode() < status.BadRequest && !isIOError(err) {
		p.response.Code(status.InternalServerError)
	}

	blockIO := old.IsIOAllowed() && !state.IsIOAllowed()
	if blockIO && p.machine.IsAsync() && p.errorReported.CompareAndSwap(false, true) {
		if p.machine.AsyncError(false) && !p.processing.Load() {
			p.processSocket(transport.Error)
		}
	}
}

// serviceFailed handles an error returned by the application.
func (p *Processor) serviceFailed(err error) {
	if isIOError(err) {
		p.log.Debug().Err(err).Msg("connection failed while serving the request")
		p.setErrorState(processor.ErrorCloseConnectionNow, err)
		return
	}

	if p.response.IsCommitted() {
		p.log.Debug().Err(err).Msg("application failed after the response was committed")
		p.setErrorState(processor.ErrorCloseClean, err)
		return
	}

	if !p.machine.IsAsync() {
		_ = p.response.Reset()
		p.response.Error(err)
		return
	}

	// the request is suspended: fail the cycle and let it complete with the error status
	p.machine.AsyncError(true)
	_ = p.call(func(ctx context.Context) error {
		p.request.AsyncContext().FireOnError(ctx, err)
		return nil
	})

	if state := p.machine.State(); state == async.MustError || state == async.Error {
		_, _ = p.machine.AsyncComplete(true)
	}

	_ = p.response.Reset()
	p.response.Error(err)
	p.keepAlive = false
}

func (p *Processor) listenerFailed(onError func(context.Context, error), err error) {
	_ = p.call(func(ctx context.Context) error {
		onError(ctx, err)
		return nil
	})

	p.setErrorState(processor.ErrorCloseNow, err)
}

// closed is returned when the connection can't be used anymore. A suspended request is
// resolved first, so its listeners learn about the outcome.
func (p *Processor) closed() (transport.SocketState, error) {
	if p.machine.IsAsync() {
		if !p.machine.IsCompleting() && !p.machine.IsAsyncDispatching() {
			err := p.response.Err()
			if err == nil {
				err = errConnection
			}

			if !p.machine.IsAsyncError() {
				p.machine.AsyncError(true)
			}

			_ = p.call(func(ctx context.Context) error {
				p.request.AsyncContext().FireOnError(ctx, err)
				return nil
			})
			_, _ = p.machine.AsyncComplete(true)
		}

		p.drainAsync()
	}

	if p.inFlight {
		p.finishRequest()
	}

	return transport.Closed, nil
}

// drainAsync post-processes the async cycle until it's over.
func (p *Processor) drainAsync() {
	for i := 0; i < 3 && p.machine.IsAsync(); i++ {
		if _, err := p.machine.AsyncPostProcess(); err != nil {
			p.log.Debug().Err(err).Msg("failed to end the async cycle")
			break
		}
	}

	p.request.AsyncContext().FireOnComplete()
}

// prepareRequest decides the connection persistence and sets up the request body.
func (p *Processor) prepareRequest() {
	r := p.request
	p.inFlight = true
	p.http11 = proto.FromString(r.Protocol) != proto.HTTP10

	var closeRequested, keepAliveRequested bool
	for _, value := range r.Headers.Values("connection") {
		closeRequested = closeRequested || hasToken(value, "close")
		keepAliveRequested = keepAliveRequested || hasToken(value, "keep-alive")
	}

	p.keepAlive = !closeRequested && (p.http11 || keepAliveRequested)
	if p.conn.DecrementKeepAlive() == 0 {
		p.keepAlive = false
	}

	// a message carrying both framings can't be trusted to end where we think it does
	if r.Chunked && r.Headers.Has("content-length") {
		p.keepAlive = false
	}

	if r.ExpectsContinue() {
		switch {
		case p.http11 && p.input.HasBody():
			p.input.OnFirstRead(p.ack)
		case p.input.Framed():
			// the client waits for a permission nobody is going to give
			r.SetExpectContinue(false)
			p.keepAlive = p.keepAlive && !p.http11
		default:
			r.SetExpectContinue(false)
		}
	}
}

// parseFailed writes the error response of a malformed request or quietly closes the
// connection, if it failed.
func (p *Processor) parseFailed(err error) (transport.SocketState, error) {
	var herr status.HTTPError

	switch {
	case errors.As(err, &herr):
		p.log.Debug().Err(err).Msg("malformed request")
		p.response.Error(err)
	case p.input.Started() && isTimeout(err):
		p.log.Debug().Err(err).Msg("request timed out")
		p.response.Error(status.ErrRequestTimeout)
	default:
		p.log.Debug().Err(err).Msg("connection failed while reading the request")
		p.setErrorState(processor.ErrorCloseConnectionNow, err)
		return transport.Closed, nil
	}

	p.http11 = proto.FromString(p.request.Protocol) != proto.HTTP10
	p.keepAlive = false
	p.setErrorState(processor.ErrorCloseClean, err)
	p.endRequest()
	p.finishRequest()

	return transport.Closed, nil
}

// endRequest finishes the response and discards whatever is left of the request body.
func (p *Processor) endRequest() {
	if p.errState().IsIOAllowed() {
		if err := p.output.End(); err != nil && !isIOError(err) {
			p.setErrorState(processor.ErrorCloseNow, err)
		}
	}

	if p.upgradeToken != nil || !p.keepAlive || p.errState().IsError() {
		return
	}

	if !p.input.EndRequest() {
		p.keepAlive = false
	}
}

// finishRequest accounts the request and resets the state for the next one.
func (p *Processor) finishRequest() {
	var elapsed time.Duration
	if !p.request.Received.IsZero() {
		elapsed = max(timer.Now().Sub(p.request.Received), 0)
	}

	p.adapter.Log(p.request, p.response, elapsed)
	p.counters.Update(
		status.IsError(p.response.StatusCode()) || p.errState().IsError(),
		p.response.BytesWritten(),
		elapsed.Milliseconds(),
	)

	p.request.Reset()
	p.response.Recycle()
	p.input.NextRequest()
	p.output.NextRequest()
	p.acked = false
	p.inFlight = false
	p.dispatchPending = false
}

// ack sends 100 Continue once per request, unless the final response is already out.
func (p *Processor) ack() error {
	p.input.Acknowledged()
	if p.acked || !p.http11 || !p.request.ExpectsContinue() || p.output.Committed() {
		return nil
	}

	p.acked = true
	return p.output.Ack()
}

func (p *Processor) commit(finished bool) error {
	err := p.prepareResponse(finished)
	if err != nil && !isIOError(err) {
		p.log.Error().Err(err).Msg("failed to commit the response")
		p.setErrorState(processor.ErrorCloseNow, err)
	}

	return err
}

// prepareResponse picks the body framing and writes the status line with the headers.
func (p *Processor) prepareResponse(finished bool) error {
	r, resp, out := p.request, p.response, p.output
	code := resp.StatusCode()
	headers := resp.Headers()
	isHead := r.Method == method.HEAD
	entityBody := !status.BodyForbidden(code)

	if !entityBody || isHead {
		out.AddActiveFilter(p.void)
	}

	if p.upgradeToken == nil {
		if status.DropsConnection(code) || p.errState().IsError() || p.paused.Load() {
			p.keepAlive = false
		}

		if finished && !p.input.CanSwallow() {
			p.keepAlive = false
		}

		for _, value := range headers.Values("connection") {
			if hasToken(value, "close") {
				p.keepAlive = false
			}
		}
	}

	length := resp.GetContentLength()
	if finished && length < 0 && !isHead {
		// nothing was written before the response was finished
		length = 0
	}

	var (
		compressor codec.Compressor
		coding     string
	)
	if entityBody && !isHead && !finished {
		compressor, coding = p.negotiateCompression(length)
		if compressor != nil {
			length = -1
		}
	}

	if err := out.SendStatus(code); err != nil {
		return err
	}

	if entityBody {
		if ct := resp.GetContentType(); len(ct) > 0 {
			if err := out.SendHeader("Content-Type", ct); err != nil {
				return err
			}
		}

		switch {
		case length >= 0:
			if err := out.SendHeader("Content-Length", strconv.FormatInt(length, 10)); err != nil {
				return err
			}

			if !isHead {
				p.identity.SetLength(length)
				out.AddActiveFilter(p.identity)
			}
		case isHead:
		case p.http11:
			if err := out.SendHeader("Transfer-Encoding", "chunked"); err != nil {
				return err
			}

			out.AddActiveFilter(p.chunked)
		default:
			// the end of the body is marked by closing the connection
			p.keepAlive = false
		}

		if compressor != nil {
			if err := out.SendHeader("Content-Encoding", coding); err != nil {
				return err
			}

			if !hasToken(headers.Value("vary"), "accept-encoding") {
				if err := out.SendHeader("Vary", "accept-encoding"); err != nil {
					return err
				}
			}

			out.AddActiveFilter(p.compression)
			p.compression.SetCompressor(compressor)
		}
	}

	if !headers.Has("date") {
		if err := out.SendHeader("Date", timer.Date()); err != nil {
			return err
		}
	}

	for name, value := range headers.Pairs() {
		if isManagedHeader(name) || (p.upgradeToken == nil && equalFold(name, "connection")) {
			continue
		}

		if err := out.SendHeader(name, value); err != nil {
			return err
		}
	}

	if p.upgradeToken == nil {
		var err error
		switch {
		case !p.keepAlive:
			err = out.SendHeader("Connection", "close")
		case !p.http11:
			err = out.SendHeader("Connection", "keep-alive")
		}

		if err != nil {
			return err
		}
	}

	resp.SetCommitted(true)
	return out.EndHeaders()
}

func (p *Processor) negotiateCompression(length int64) (codec.Compressor, string) {
	cfg := p.cfg.Compression
	resp := p.response

	if !cfg.Enabled ||
		(length >= 0 && length < cfg.MinSize) ||
		resp.StatusCode() == status.PartialContent ||
		resp.Headers().Has("content-encoding") ||
		!compressible(resp.GetContentType(), cfg.MIMETypes) {
		return nil, ""
	}

	accept := p.request.Headers.Value("accept-encoding")
	if len(accept) == 0 {
		return nil, ""
	}

	c := codec.Negotiate(p.codecs.Codecs(), accept)
	if c == nil {
		return nil, ""
	}

	compressor, err := p.codecs.Get(c.Token())
	if err != nil || compressor == nil {
		p.log.Warn().Err(err).Str("coding", c.Token()).Msg("compressor unavailable")
		return nil, ""
	}

	return compressor, c.Token()
}
