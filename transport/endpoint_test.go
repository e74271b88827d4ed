package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/indigo-web/connector/config"
	"github.com/indigo-web/connector/internal/executor"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type echoHandler struct {
	mu       sync.Mutex
	events   []SocketEvent
	released int
	paused   int
}

func (h *echoHandler) Process(conn *Conn, event SocketEvent) SocketState {
	h.mu.Lock()
	h.events = append(h.events, event)
	h.mu.Unlock()

	if event != OpenRead {
		return Closed
	}

	data, err := conn.Read()
	if err != nil || string(data) == "quit" {
		return Closed
	}

	if _, err = conn.Write(data); err != nil {
		return Closed
	}

	conn.RegisterReadInterest()
	return Open
}

func (h *echoHandler) Release(*Conn) {
	h.mu.Lock()
	h.released++
	h.mu.Unlock()
}

func (h *echoHandler) Pause() {
	h.mu.Lock()
	h.paused++
	h.mu.Unlock()
}

func (h *echoHandler) seen(event SocketEvent) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, e := range h.events {
		if e == event {
			return true
		}
	}

	return false
}

type rejectingExecutor struct{}

func (rejectingExecutor) Execute(executor.Task) error {
	return executor.ErrRejected
}

func testNET() config.NET {
	cfg := config.Default().NET
	cfg.AcceptLoopInterruptPeriod = 0
	return cfg
}

func startEndpoint(t *testing.T, cfg config.NET, handler Handler, exec Executor) (*Endpoint, <-chan error) {
	e := NewEndpoint(cfg, handler, exec, zerolog.Nop())
	require.NoError(t, e.Bind("127.0.0.1:0"))
	require.NotZero(t, e.Port())

	served := make(chan error, 1)
	go func() {
		served <- e.Serve(context.Background())
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Stop(ctx)
	})

	return e, served
}

func dial(t *testing.T, e *Endpoint) net.Conn {
	conn, err := net.Dial("tcp", e.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})

	return conn
}

func echo(t *testing.T, conn net.Conn, msg string) {
	_, err := conn.Write([]byte(msg))
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	buff := make([]byte, len(msg))
	_, err = io.ReadFull(conn, buff)
	require.NoError(t, err)
	require.Equal(t, msg, string(buff))
}

func requireEOF(t *testing.T, conn net.Conn) {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := conn.Read(make([]byte, 16))
	require.True(t, errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || isReset(err), err)
}

func isReset(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && !opErr.Timeout()
}

func TestEndpoint(t *testing.T) {
	exec := executor.New(config.Default().Workers, zerolog.Nop())
	defer func() {
		_ = exec.Shutdown(context.Background())
	}()

	t.Run("serve", func(t *testing.T) {
		handler := new(echoHandler)
		e, _ := startEndpoint(t, testNET(), handler, exec)
		conn := dial(t, e)

		echo(t, conn, "hello")
		echo(t, conn, "world")
		require.Equal(t, 1, e.OpenConnections())

		require.NoError(t, conn.Close())
		require.Eventually(t, func() bool {
			return e.OpenConnections() == 0
		}, 5*time.Second, 10*time.Millisecond)
		require.True(t, handler.seen(Disconnect))
	})

	t.Run("closed by the handler", func(t *testing.T) {
		handler := new(echoHandler)
		e, _ := startEndpoint(t, testNET(), handler, exec)
		conn := dial(t, e)

		_, err := conn.Write([]byte("quit"))
		require.NoError(t, err)
		requireEOF(t, conn)
		require.Eventually(t, func() bool {
			return e.OpenConnections() == 0
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("read timeout", func(t *testing.T) {
		cfg := testNET()
		cfg.ConnectionTimeout = 50 * time.Millisecond
		handler := new(echoHandler)
		e, _ := startEndpoint(t, cfg, handler, exec)
		conn := dial(t, e)

		requireEOF(t, conn)
		require.True(t, handler.seen(Error))
		require.Eventually(t, func() bool {
			return e.OpenConnections() == 0
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("admission limit", func(t *testing.T) {
		cfg := testNET()
		cfg.MaxConnections = 1
		e, _ := startEndpoint(t, cfg, new(echoHandler), exec)

		first := dial(t, e)
		echo(t, first, "first")

		second := dial(t, e)
		_, err := second.Write([]byte("second"))
		require.NoError(t, err)
		require.NoError(t, second.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
		_, err = second.Read(make([]byte, 16))
		var netErr net.Error
		require.ErrorAs(t, err, &netErr)
		require.True(t, netErr.Timeout())
		require.Equal(t, int64(1), e.Stats().Admitted)

		require.NoError(t, first.Close())
		require.NoError(t, second.SetReadDeadline(time.Now().Add(5*time.Second)))
		buff := make([]byte, len("second"))
		_, err = io.ReadFull(second, buff)
		require.NoError(t, err)
		require.Equal(t, "second", string(buff))
	})

	t.Run("rejected by the executor", func(t *testing.T) {
		handler := new(echoHandler)
		e, _ := startEndpoint(t, testNET(), handler, rejectingExecutor{})
		conn := dial(t, e)

		_, err := conn.Write([]byte("hello"))
		require.NoError(t, err)
		requireEOF(t, conn)
		require.Eventually(t, func() bool {
			return handler.seen(Stop)
		}, 5*time.Second, 10*time.Millisecond)
	})

	t.Run("without executor", func(t *testing.T) {
		e, _ := startEndpoint(t, testNET(), new(echoHandler), nil)
		echo(t, dial(t, e), "inline")
	})

	t.Run("pause", func(t *testing.T) {
		handler := new(echoHandler)
		e, _ := startEndpoint(t, testNET(), handler, exec)
		e.Pause()
		require.True(t, e.IsPaused())
		require.Equal(t, 1, handler.paused)

		e.Resume()
		require.False(t, e.IsPaused())
		echo(t, dial(t, e), "resumed")
	})

	t.Run("stop", func(t *testing.T) {
		handler := new(echoHandler)
		e, served := startEndpoint(t, testNET(), handler, exec)
		conn := dial(t, e)
		echo(t, conn, "hi")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, e.Stop(ctx))
		require.NoError(t, <-served)
		require.True(t, handler.seen(Stop))
		require.Zero(t, e.OpenConnections())
		requireEOF(t, conn)

		_, err := net.DialTimeout("tcp", e.Addr().String(), time.Second)
		require.Error(t, err)
	})

	t.Run("stop while awaiting admission", func(t *testing.T) {
		cfg := testNET()
		cfg.MaxConnections = 1
		e, served := startEndpoint(t, cfg, new(echoHandler), exec)
		echo(t, dial(t, e), "first")
		require.Eventually(t, func() bool {
			return e.Stats().AwaitingAdm == 1
		}, 5*time.Second, 10*time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, e.Stop(ctx))
		require.NoError(t, <-served)
		require.Zero(t, e.Stats().AwaitingAdm)
	})

	t.Run("not bound", func(t *testing.T) {
		e := NewEndpoint(testNET(), new(echoHandler), nil, zerolog.Nop())
		require.ErrorIs(t, e.Serve(context.Background()), ErrNotBound)
		require.Nil(t, e.Addr())
	})
}
