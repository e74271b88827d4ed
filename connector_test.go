package connector

import (
	"context"
	"io"
	nethttp "net/http"
	"strings"
	"testing"
	"time"

	"github.com/indigo-web/connector/adapter"
	"github.com/indigo-web/connector/config"
	"github.com/indigo-web/connector/http"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func hello(_ context.Context, req *http.Request, resp *http.Response) error {
	return resp.String("hello from " + req.Path)
}

func run(t *testing.T, app *App) (stopped <-chan struct{}, served <-chan error) {
	started := make(chan struct{})
	stop := make(chan struct{})
	errs := make(chan error, 1)

	app.
		Logger(zerolog.Nop()).
		NotifyOnStart(func() { close(started) }).
		NotifyOnStop(func() { close(stop) })

	go func() {
		errs <- app.Serve(adapter.Func(hello))
	}()

	select {
	case <-started:
	case err := <-errs:
		t.Fatalf("failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("the application didn't start")
	}

	return stop, errs
}

func get(t *testing.T, app *App, path string) (int, string) {
	client := &nethttp.Client{
		Transport: &nethttp.Transport{DisableKeepAlives: true},
		Timeout:   5 * time.Second,
	}

	resp, err := client.Get("http://" + app.Addr().String() + path)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestApp(t *testing.T) {
	t.Run("serve and stop gracefully", func(t *testing.T) {
		app := New("127.0.0.1:0")
		stopped, served := run(t, app)

		code, body := get(t, app, "/world")
		require.Equal(t, nethttp.StatusOK, code)
		require.Equal(t, "hello from /world", body)

		stats, err := app.Stats()
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(stats.Name, "http-auto-"))

		require.NoError(t, app.GracefulStop())
		require.NoError(t, <-served)
		<-stopped
		require.ErrorIs(t, app.Serve(adapter.Func(hello)), ErrRunning)
	})

	t.Run("stop", func(t *testing.T) {
		app := New("127.0.0.1:0")
		stopped, served := run(t, app)
		require.NoError(t, app.Stop())
		require.NoError(t, <-served)
		<-stopped
	})

	t.Run("not running", func(t *testing.T) {
		app := New("127.0.0.1:0")
		require.ErrorIs(t, app.Stop(), ErrNotRunning)
		_, err := app.Stats()
		require.ErrorIs(t, err, ErrNotRunning)
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := config.Default()
		cfg.Workers.Max = cfg.Workers.Core - 1
		app := New("127.0.0.1:0").Tune(cfg)
		require.ErrorIs(t, app.Serve(adapter.Func(hello)), config.ErrInvalid)
	})

	t.Run("bad address", func(t *testing.T) {
		require.Error(t, New("localhost").Logger(zerolog.Nop()).Serve(adapter.Func(hello)))
	})
}
