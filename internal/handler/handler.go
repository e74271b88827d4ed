// Package handler binds connections to processors and decides what happens to a connection
// once its processor is done with the current event.
package handler

import (
	"errors"
	"io"
	"net"
	"runtime/debug"
	"syscall"

	"github.com/indigo-web/connector/internal/pool"
	"github.com/indigo-web/connector/internal/processor"
	"github.com/indigo-web/connector/transport"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
)

var _ transport.Handler = new(ConnectionHandler)

// Factory creates a new processor when none can be reused.
type Factory func() processor.Processor

// WaitingSet keeps processors which are parked until an async event or a timeout.
type WaitingSet interface {
	AddWaitingProcessor(p processor.Processor)
	RemoveWaitingProcessor(p processor.Processor)
}

// Stats is a snapshot of the handler's occupancy.
type Stats struct {
	Bound  int `json:"bound"`
	Pooled int `json:"pooled"`
}

// ConnectionHandler implements transport.Handler. It owns the mapping between the
// connections and their processors, as well as the pool of processors ready to be reused.
type ConnectionHandler struct {
	factory     Factory
	recycled    *pool.Stack[processor.Processor]
	connections *xsync.MapOf[uint64, processor.Processor]
	waiting     WaitingSet
	log         zerolog.Logger
}

// New returns a handler, which keeps up to cacheSize processors for reuse. pool.Unbounded
// lifts the limit.
func New(factory Factory, cacheSize int, waiting WaitingSet, log zerolog.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		factory:     factory,
		recycled:    pool.NewStack[processor.Processor](cacheSize),
		connections: xsync.NewMapOf[uint64, processor.Processor](),
		waiting:     waiting,
		log:         log.With().Str("component", "handler").Logger(),
	}
}

// Process drives the connection through its processor and returns the state the connection
// must be left in.
func (h *ConnectionHandler) Process(conn *transport.Conn, event transport.SocketEvent) (state transport.SocketState) {
	key := conn.Key()
	p, bound := h.connections.Load(key)

	if event == transport.Timeout &&
		(!bound || (!p.IsAsync() && !p.IsUpgrade()) || (p.IsAsync() && !p.CheckAsyncTimeoutGeneration())) {
		// the timeout is outdated: the request it was issued for is already gone
		return transport.Open
	}

	if bound {
		h.waiting.RemoveWaitingProcessor(p)
	} else if event == transport.Disconnect || event == transport.Error || event == transport.Stop {
		return transport.Closed
	}

	log := h.log.With().Uint64("conn", key).Logger()

	if !bound {
		if negotiated := conn.NegotiatedProtocol(); len(negotiated) > 0 && negotiated != "http/1.1" {
			log.Warn().Str("protocol", negotiated).Msg("negotiated protocol is not supported")
			return transport.Closed
		}

		p = h.acquire()
		p.SetConn(conn)
		h.connections.Store(key, p)
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Str("event", event.String()).
				Msg("recovered from a panic while processing the connection")
			h.release(key, p)
			state = transport.Closed
		}
	}()

	state, err := p.Process(conn, event)
	if err != nil {
		if isIOError(err) {
			log.Debug().Err(err).Msg("connection failed")
		} else {
			log.Error().Err(err).Str("event", event.String()).Msg("processing failed")
		}

		h.release(key, p)
		return transport.Closed
	}

	if state == transport.Upgrading {
		p = h.upgrade(key, conn, p)
		state = transport.Upgraded
	}

	switch state {
	case transport.Long:
		h.longPoll(conn, p)
		if p.IsAsync() {
			h.waiting.AddWaitingProcessor(p)
		}
	case transport.Open:
		h.release(key, p)
		conn.RegisterReadInterest()
	case transport.Sendfile, transport.Suspended:
	case transport.Upgraded:
		if event != transport.OpenWrite {
			h.longPoll(conn, p)
			h.waiting.AddWaitingProcessor(p)
		}
	default:
		h.release(key, p)
	}

	return state
}

// Release drops the processor bound to the connection, if any. It's called once the
// connection is closed.
func (h *ConnectionHandler) Release(conn *transport.Conn) {
	if p, ok := h.connections.Load(conn.Key()); ok {
		h.release(conn.Key(), p)
	}
}

// Pause notifies every bound processor that no new requests must be started.
func (h *ConnectionHandler) Pause() {
	h.connections.Range(func(_ uint64, p processor.Processor) bool {
		p.Pause()
		return true
	})
}

// ClearRecycled drops every pooled processor.
func (h *ConnectionHandler) ClearRecycled() {
	h.recycled.Clear(nil)
}

func (h *ConnectionHandler) Stats() Stats {
	return Stats{
		Bound:  h.connections.Size(),
		Pooled: h.recycled.Len(),
	}
}

// Bound returns the processor serving the connection.
func (h *ConnectionHandler) Bound(key uint64) (processor.Processor, bool) {
	return h.connections.Load(key)
}

func (h *ConnectionHandler) acquire() processor.Processor {
	if p, ok := h.recycled.Pop(); ok {
		return p
	}

	return h.factory()
}

// upgrade swaps the processor for the one serving the upgraded protocol. The data already
// read past the switching request stays buffered in the connection.
func (h *ConnectionHandler) upgrade(key uint64, conn *transport.Conn, p processor.Processor) processor.Processor {
	token := p.UpgradeToken()
	h.recycle(p)

	upgraded := processor.NewUpgrade(conn, token)
	h.connections.Store(key, upgraded)
	upgraded.Init()

	return upgraded
}

// longPoll makes the connection readable again, unless the request is suspended, so only
// the application can resume it.
func (h *ConnectionHandler) longPoll(conn *transport.Conn, p processor.Processor) {
	if !p.IsAsync() {
		conn.RegisterReadInterest()
	}
}

func (h *ConnectionHandler) release(key uint64, p processor.Processor) {
	var removed bool
	h.connections.Compute(key, func(bound processor.Processor, loaded bool) (processor.Processor, bool) {
		removed = loaded && bound == p
		return bound, !loaded || removed
	})

	if !removed {
		// somebody has already released it
		return
	}

	h.waiting.RemoveWaitingProcessor(p)
	h.recycle(p)
}

func (h *ConnectionHandler) recycle(p processor.Processor) {
	if u, ok := p.(*processor.Upgrade); ok {
		u.Destroy()
		u.Recycle()
		return
	}

	p.Recycle()
	if !h.recycled.Push(p) {
		h.log.Debug().Msg("processor pool is full, dropping the processor")
	}
}

func isIOError(err error) bool {
	var opErr *net.OpError

	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.As(err, &opErr)
}
