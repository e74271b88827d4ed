// Package protocol assembles the engine serving a single address: the endpoint accepting
// connections, the connection handler, the worker pool and the async timeout sweeper.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/indigo-web/connector/adapter"
	"github.com/indigo-web/connector/config"
	"github.com/indigo-web/connector/internal/executor"
	"github.com/indigo-web/connector/internal/handler"
	"github.com/indigo-web/connector/internal/processor"
	"github.com/indigo-web/connector/internal/protocol/http1"
	"github.com/indigo-web/connector/internal/timer"
	"github.com/indigo-web/connector/transport"
	jsoniter "github.com/json-iterator/go"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
)

var _ handler.WaitingSet = new(Handler)

var (
	ErrNotInitialized = errors.New("protocol handler isn't initialized")
	ErrAlreadyStarted = errors.New("protocol handler is already started")
)

// drainPoll is how often Drain checks whether the connections are gone.
const drainPoll = 50 * time.Millisecond

// NameIndex hands out numbers for handlers bound to automatically picked ports.
type NameIndex struct {
	last atomic.Int64
}

func (n *NameIndex) Next() int64 {
	return n.last.Add(1)
}

// Handler serves HTTP/1.1 on a single address.
type Handler struct {
	cfg   *config.Config
	log   zerolog.Logger
	names *NameIndex
	name  string

	executor *executor.Executor
	counters *processor.Counters
	handler  *handler.ConnectionHandler
	endpoint *transport.Endpoint
	waiting  *xsync.MapOf[processor.Processor, struct{}]

	mu         sync.Mutex
	supervisor *transport.Supervisor
}

func New(cfg *config.Config, app adapter.Adapter, log zerolog.Logger, names *NameIndex) *Handler {
	if names == nil {
		names = new(NameIndex)
	}

	h := &Handler{
		cfg:      cfg,
		log:      log,
		names:    names,
		executor: executor.New(cfg.Workers, log),
		counters: new(processor.Counters),
		waiting:  xsync.NewMapOf[processor.Processor, struct{}](),
	}

	factory := func() processor.Processor {
		return http1.New(cfg, app, h.executor, h.counters, log)
	}
	h.handler = handler.New(factory, cfg.Processors.CacheSize, h, log)
	h.endpoint = transport.NewEndpoint(cfg.NET, h.handler, h.executor, log)

	return h
}

// Init binds the address. The handler is named after the port, unless the port is picked
// automatically.
func (h *Handler) Init(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("bad address %q: %w", addr, err)
	}

	if err = h.endpoint.Bind(addr); err != nil {
		return err
	}

	if n, _ := strconv.Atoi(port); n > 0 {
		h.name = "http-" + port
	} else {
		h.name = "http-auto-" + strconv.FormatInt(h.names.Next(), 10)
	}

	h.log = h.log.With().Str("handler", h.name).Logger()
	h.log.Info().Stringer("addr", h.endpoint.Addr()).Msg("bound")

	return nil
}

// Start runs the acceptor and the async timeout sweeper. It doesn't block.
func (h *Handler) Start(ctx context.Context) error {
	if h.endpoint.Addr() == nil {
		return ErrNotInitialized
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.supervisor != nil {
		return ErrAlreadyStarted
	}

	h.supervisor = transport.NewSupervisor(ctx)
	h.supervisor.Go(h.endpoint.Serve)
	h.supervisor.Go(h.sweep)

	return nil
}

// Wait blocks until the acceptor and the sweeper exit.
func (h *Handler) Wait() error {
	if s := h.getSupervisor(); s != nil {
		return s.Wait()
	}

	return nil
}

func (h *Handler) sweep(ctx context.Context) error {
	if h.cfg.Async.SweepInterval <= 0 {
		return nil
	}

	log := h.log.With().Str("component", "sweeper").Logger()
	ticker := time.NewTicker(h.cfg.Async.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		now := timer.Millis()
		h.waiting.Range(func(p processor.Processor, _ struct{}) bool {
			if !h.processTimeout(p, now) {
				log.Error().Msg("failed to fire the async timeout")
			}

			return true
		})
	}
}

func (h *Handler) processTimeout(p processor.Processor, now int64) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	p.TimeoutAsync(now)
	return true
}

// AddWaitingProcessor implements handler.WaitingSet.
func (h *Handler) AddWaitingProcessor(p processor.Processor) {
	h.waiting.Store(p, struct{}{})
}

// RemoveWaitingProcessor implements handler.WaitingSet.
func (h *Handler) RemoveWaitingProcessor(p processor.Processor) {
	h.waiting.Delete(p)
}

// Pause stops accepting connections. Requests in flight are served till the end, but the
// connections aren't kept alive afterward.
func (h *Handler) Pause() {
	h.log.Info().Msg("pausing")
	h.endpoint.Pause()
}

func (h *Handler) Resume() {
	h.log.Info().Msg("resuming")
	h.endpoint.Resume()
}

func (h *Handler) IsPaused() bool {
	return h.endpoint.IsPaused()
}

// Drain blocks until every connection is closed or the context is done.
func (h *Handler) Drain(ctx context.Context) error {
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()

	for h.endpoint.OpenConnections() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return nil
}

// Stop closes the listener and all the connections, then shuts the worker pool down. The
// context bounds how long it waits for requests being processed.
func (h *Handler) Stop(ctx context.Context) error {
	h.log.Info().Msg("stopping")

	var errs []error
	if s := h.getSupervisor(); s != nil {
		s.Stop()
	}

	if err := h.endpoint.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("endpoint: %w", err))
	}

	if err := h.Wait(); err != nil {
		errs = append(errs, err)
	}

	if err := h.executor.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("executor: %w", err))
	}

	h.handler.ClearRecycled()

	return errors.Join(errs...)
}

// Destroy releases whatever is left after Stop.
func (h *Handler) Destroy() {
	h.endpoint.Close()
	h.handler.ClearRecycled()
	h.waiting.Clear()
}

func (h *Handler) Name() string {
	return h.name
}

// Addr returns the bound address, nil if Init wasn't called.
func (h *Handler) Addr() net.Addr {
	return h.endpoint.Addr()
}

func (h *Handler) getSupervisor() *transport.Supervisor {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.supervisor
}

type WorkerStats struct {
	PoolSize  int   `json:"pool_size"`
	Active    int64 `json:"active"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Queued    int   `json:"queued"`
}

type Stats struct {
	Name     string                  `json:"name"`
	Paused   bool                    `json:"paused"`
	Waiting  int                     `json:"waiting"`
	Endpoint transport.EndpointStats `json:"endpoint"`
	Handler  handler.Stats           `json:"handler"`
	Workers  WorkerStats             `json:"workers"`
	Requests processor.Snapshot      `json:"requests"`
}

func (h *Handler) Stats() Stats {
	return Stats{
		Name:     h.name,
		Paused:   h.IsPaused(),
		Waiting:  h.waiting.Size(),
		Endpoint: h.endpoint.Stats(),
		Handler:  h.handler.Stats(),
		Workers: WorkerStats{
			PoolSize:  h.executor.PoolSize(),
			Active:    h.executor.Active(),
			Submitted: h.executor.Submitted(),
			Completed: h.executor.Completed(),
			Queued:    h.executor.QueueLength(),
		},
		Requests: h.counters.Snapshot(),
	}
}

func (h *Handler) StatsJSON() ([]byte, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(h.Stats())
}
