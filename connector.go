package connector

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/indigo-web/connector/adapter"
	"github.com/indigo-web/connector/config"
	"github.com/indigo-web/connector/internal/protocol"
	"github.com/rs/zerolog"
)

var (
	ErrRunning    = errors.New("application is already running")
	ErrNotRunning = errors.New("application isn't running")
)

// names is shared by every application in the process, so automatically bound handlers
// get distinct names.
var names = new(protocol.NameIndex)

type stopKind uint8

const (
	stopNow stopKind = iota + 1
	stopGraceful
)

// App serves HTTP/1.1 on a single address.
type App struct {
	addr  string
	cfg   *config.Config
	log   zerolog.Logger
	hooks hooks

	mu      sync.Mutex
	handler *protocol.Handler
	stop    chan stopKind
	bound   chan struct{}
}

// New returns a new App instance. Port 0 picks a free port, which is reported by Addr once
// the application is started.
func New(addr string) *App {
	return &App{
		addr: addr,
		cfg:  config.Default(),
		log: zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger(),
		bound: make(chan struct{}),
	}
}

// Tune replaces default config.
func (a *App) Tune(cfg *config.Config) *App {
	a.cfg = cfg
	return a
}

// Logger replaces the default logger, writing human-readable lines into stderr.
func (a *App) Logger(log zerolog.Logger) *App {
	a.log = log
	return a
}

// NotifyOnStart calls the callback at the moment the application is able to accept
// connections.
func (a *App) NotifyOnStart(cb func()) *App {
	a.hooks.OnStart = cb
	return a
}

// NotifyOnStop calls the callback at the moment, when the application is down. It's
// guaranteed, that at the moment as the callback is called, no new connections are accepted
// and all the clients are already disconnected.
func (a *App) NotifyOnStop(cb func()) *App {
	a.hooks.OnStop = cb
	return a
}

// Serve starts the application and blocks until it's stopped or the listener fails.
func (a *App) Serve(app adapter.Adapter) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	if a.handler != nil {
		a.mu.Unlock()
		return ErrRunning
	}

	h := protocol.New(a.cfg, app, a.log, names)
	if err := h.Init(a.addr); err != nil {
		a.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.Start(ctx); err != nil {
		a.mu.Unlock()
		h.Destroy()
		return err
	}

	a.handler = h
	a.stop = make(chan stopKind, 1)
	close(a.bound)
	a.mu.Unlock()

	callIfNotNil(a.hooks.OnStart)

	failed := make(chan error, 1)
	go func() {
		failed <- h.Wait()
	}()

	var err error
	select {
	case kind := <-a.stop:
		if kind == stopGraceful {
			a.drain(h)
		}
	case err = <-failed:
		a.log.Error().Err(err).Msg("the listener failed")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), a.cfg.NET.WriteTimeout)
	defer stopCancel()
	if stopErr := h.Stop(stopCtx); stopErr != nil {
		a.log.Warn().Err(stopErr).Msg("the application didn't stop cleanly")
	}

	h.Destroy()
	callIfNotNil(a.hooks.OnStop)

	return err
}

// drain pauses the handler and waits for the connections to go away. Idle keep-alive
// connections are given at most the keep-alive timeout.
func (a *App) drain(h *protocol.Handler) {
	h.Pause()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.NET.KeepAliveTimeout)
	defer cancel()

	if err := h.Drain(ctx); err != nil {
		a.log.Warn().Int("connections", h.Stats().Endpoint.Open).Msg("closing connections left after draining")
	}
}

// GracefulStop stops accepting new connections and lets the requests in flight finish.
//
// NOTE: the call isn't blocking. So by that, after the method returned, the server
// will be still working
func (a *App) GracefulStop() error {
	return a.signal(stopGraceful)
}

// Stop stops the application, closing every connection.
//
// NOTE: the call isn't blocking. So by that, after the method returned, the server
// will still be working
func (a *App) Stop() error {
	return a.signal(stopNow)
}

func (a *App) signal(kind stopKind) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.handler == nil {
		return ErrNotRunning
	}

	select {
	case a.stop <- kind:
	default:
		// already stopping
	}

	return nil
}

// Addr blocks until the application is bound and returns its address.
func (a *App) Addr() net.Addr {
	<-a.bound
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handler.Addr()
}

// Stats returns the snapshot of the application's load.
func (a *App) Stats() (protocol.Stats, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.handler == nil {
		return protocol.Stats{}, ErrNotRunning
	}

	return a.handler.Stats(), nil
}

type hooks struct {
	OnStart, OnStop func()
}

func callIfNotNil(f func()) {
	if f != nil {
		f()
	}
}
