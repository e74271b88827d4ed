package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/indigo-web/connector/config"
	"github.com/indigo-web/connector/internal/executor"
	"github.com/indigo-web/connector/internal/latch"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
)

var _ Dispatcher = new(Endpoint)

var ErrNotBound = errors.New("endpoint is not bound")

// pausePoll is how often a paused acceptor checks whether it was resumed.
const pausePoll = 50 * time.Millisecond

// Executor runs socket processing tasks.
type Executor interface {
	Execute(task executor.Task) error
}

// EndpointStats is a snapshot of the endpoint's load.
type EndpointStats struct {
	Open        int   `json:"open"`
	Admitted    int64 `json:"admitted"`
	AwaitingAdm int   `json:"awaiting_admission"`
}

// Endpoint accepts connections and schedules their processing. Instead of a poller, every
// idle connection gets a goroutine blocked on reading it, which dispatches the connection
// to a worker once it becomes readable.
type Endpoint struct {
	cfg      config.NET
	tcp      *TCP
	handler  Handler
	executor Executor
	latch    *latch.Latch
	sockets  *xsync.MapOf[uint64, *Conn]
	lastKey  atomic.Uint64
	paused   atomic.Bool
	stopped  atomic.Bool
	wg       sync.WaitGroup
	log      zerolog.Logger
}

func NewEndpoint(cfg config.NET, handler Handler, exec Executor, log zerolog.Logger) *Endpoint {
	e := &Endpoint{
		cfg:      cfg,
		handler:  handler,
		executor: exec,
		sockets:  xsync.NewMapOf[uint64, *Conn](),
		log:      log.With().Str("component", "endpoint").Logger(),
	}

	if cfg.MaxConnections > 0 {
		e.latch = latch.New(cfg.MaxConnections)
	}

	return e
}

// Bind starts listening on the address.
func (e *Endpoint) Bind(addr string) (err error) {
	e.tcp, err = BindTCP(addr, e.cfg.AcceptLoopInterruptPeriod)
	return err
}

// Addr returns the bound address or nil, if the endpoint isn't bound.
func (e *Endpoint) Addr() net.Addr {
	if e.tcp == nil {
		return nil
	}

	return e.tcp.Addr()
}

func (e *Endpoint) Port() int {
	if e.tcp == nil {
		return 0
	}

	return e.tcp.Port()
}

// Serve runs the accept loop until the endpoint is stopped or the context is done.
func (e *Endpoint) Serve(ctx context.Context) error {
	if e.tcp == nil {
		return ErrNotBound
	}

	for !e.stopped.Load() && ctx.Err() == nil {
		if e.paused.Load() {
			select {
			case <-ctx.Done():
			case <-time.After(pausePoll):
			}

			continue
		}

		if e.latch != nil {
			if err := e.latch.CountUpOrAwait(ctx); err != nil {
				break
			}
		}

		if e.stopped.Load() {
			// woken up by ReleaseAll
			e.countDown()
			break
		}

		conn, err := e.tcp.Accept()
		if conn == nil {
			e.countDown()

			if err != nil {
				if e.stopped.Load() || errors.Is(err, net.ErrClosed) {
					break
				}

				return err
			}

			continue
		}

		e.accept(conn)
	}

	return nil
}

func (e *Endpoint) accept(netConn net.Conn) {
	if e.stopped.Load() {
		_ = netConn.Close()
		e.countDown()
		return
	}

	conn := NewConn(e.lastKey.Add(1), netConn, e.cfg, e)
	e.sockets.Store(conn.Key(), conn)
	e.log.Debug().Uint64("conn", conn.Key()).Stringer("remote", netConn.RemoteAddr()).Msg("accepted")
	e.RegisterReadInterest(conn)
}

// ProcessSocket implements Dispatcher.
func (e *Endpoint) ProcessSocket(conn *Conn, event SocketEvent, dispatch bool) bool {
	if conn.IsClosed() {
		return false
	}

	task := func() {
		e.process(conn, event)
	}

	switch {
	case !dispatch:
		task()
		return true
	case e.executor == nil:
		// the caller may be processing the connection at the moment
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			task()
		}()

		return true
	}

	if err := e.executor.Execute(task); err != nil {
		e.log.Warn().Err(err).Uint64("conn", conn.Key()).Str("event", event.String()).Msg("processing rejected")
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.process(conn, Stop)
		}()

		return false
	}

	return true
}

// RegisterReadInterest implements Dispatcher. Data already buffered in the connection makes
// it dispatched right away.
func (e *Endpoint) RegisterReadInterest(conn *Conn) {
	if conn.IsClosed() || conn.awaiting.Swap(true) {
		return
	}

	e.wg.Add(1)
	go e.await(conn)
}

func (e *Endpoint) await(conn *Conn) {
	defer e.wg.Done()

	if len(conn.Pending()) == 0 {
		data, err := conn.read(conn.ReadTimeout())
		if len(data) > 0 {
			conn.Pushback(data)
		} else if err != nil {
			conn.awaiting.Store(false)
			e.readFailed(conn, err)
			return
		}
	}

	conn.awaiting.Store(false)
	if !e.ProcessSocket(conn, OpenRead, true) && !conn.IsClosed() {
		e.log.Debug().Uint64("conn", conn.Key()).Msg("readable connection wasn't dispatched")
	}
}

func (e *Endpoint) readFailed(conn *Conn, err error) {
	log := e.log.Debug().Uint64("conn", conn.Key()).Err(err)

	switch {
	case conn.IsClosed() || errors.Is(err, net.ErrClosed):
		e.closeSocket(conn)
		return
	case errors.Is(err, os.ErrDeadlineExceeded):
		log.Msg("connection timed out")
		e.ProcessSocket(conn, Error, false)
	case errors.Is(err, io.EOF):
		log.Msg("peer disconnected")
		e.ProcessSocket(conn, Disconnect, false)
	default:
		log.Msg("connection failed")
		e.ProcessSocket(conn, Error, false)
	}

	// the processor might have kept the connection, but nothing is going to be read anymore
	e.closeSocket(conn)
}

// process runs the handler. Processing of the same connection is serialized.
func (e *Endpoint) process(conn *Conn, event SocketEvent) {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.IsClosed() {
		return
	}

	if state := e.handler.Process(conn, event); state == Closed {
		e.closeSocket(conn)
	}
}

func (e *Endpoint) closeSocket(conn *Conn) {
	if _, ok := e.sockets.LoadAndDelete(conn.Key()); !ok {
		return
	}

	e.handler.Release(conn)
	if err := conn.Close(); err != nil {
		e.log.Debug().Err(err).Uint64("conn", conn.Key()).Msg("failed to close the connection")
	}

	e.countDown()
}

func (e *Endpoint) countDown() {
	if e.latch != nil {
		e.latch.CountDown()
	}
}

// Pause stops accepting new connections and asks the processors to finish the requests
// being served.
func (e *Endpoint) Pause() {
	e.paused.Store(true)
	e.handler.Pause()
}

func (e *Endpoint) Resume() {
	e.paused.Store(false)
}

func (e *Endpoint) IsPaused() bool {
	return e.paused.Load()
}

// Close stops accepting, closing the listener.
func (e *Endpoint) Close() {
	if e.stopped.Swap(true) {
		return
	}

	if e.latch != nil {
		e.latch.ReleaseAll()
	}

	if e.tcp != nil {
		if err := e.tcp.Close(); err != nil {
			e.log.Debug().Err(err).Msg("failed to close the listener")
		}
	}
}

// Stop closes the listener and every connection. Connections being processed at the moment
// are closed as soon as their processing returns. The call waits for that at most until
// the context is done.
func (e *Endpoint) Stop(ctx context.Context) error {
	e.Close()

	e.sockets.Range(func(_ uint64, conn *Conn) bool {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.process(conn, Stop)

			conn.mu.Lock()
			e.closeSocket(conn)
			conn.mu.Unlock()
		}()

		return true
	})

	return e.Wait(ctx)
}

// Wait blocks until every connection goroutine exits or the context is done.
func (e *Endpoint) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OpenConnections returns the number of connections currently open.
func (e *Endpoint) OpenConnections() int {
	return e.sockets.Size()
}

func (e *Endpoint) Stats() EndpointStats {
	stats := EndpointStats{Open: e.sockets.Size()}
	if e.latch != nil {
		stats.Admitted = e.latch.Count()
		stats.AwaitingAdm = e.latch.QueueLength()
	}

	return stats
}
