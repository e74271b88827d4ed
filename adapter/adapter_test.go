package adapter

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/indigo-web/connector/http"
	"github.com/indigo-web/connector/http/status"
	"github.com/indigo-web/connector/kv"
	"github.com/indigo-web/connector/transport"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newPair() (*http.Request, *http.Response) {
	resp := http.NewResponse()
	return http.NewRequest(kv.New(), kv.New(), resp), resp
}

func TestFunc(t *testing.T) {
	t.Run("dispatch services again", func(t *testing.T) {
		var calls int
		a := Func(func(context.Context, *http.Request, *http.Response) error {
			calls++
			return nil
		})

		req, resp := newPair()
		require.NoError(t, a.Service(context.Background(), req, resp))
		ok, err := a.AsyncDispatch(context.Background(), req, resp, transport.OpenRead)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, 2, calls)
	})

	t.Run("failed dispatch", func(t *testing.T) {
		a := Func(func(context.Context, *http.Request, *http.Response) error {
			return errors.New("oops")
		})

		req, resp := newPair()
		ok, err := a.AsyncDispatch(context.Background(), req, resp, transport.OpenRead)
		require.Error(t, err)
		require.False(t, ok)
	})

	t.Run("timeout and error notify listeners", func(t *testing.T) {
		a := Func(func(context.Context, *http.Request, *http.Response) error {
			return nil
		})

		req, resp := newPair()
		var events []string
		req.AsyncContext().AddListener(http.AsyncListenerFuncs{
			Timeout: func(context.Context, *http.AsyncContext) { events = append(events, "timeout") },
			Error: func(_ context.Context, _ *http.AsyncContext, err error) {
				events = append(events, err.Error())
			},
		})

		_, err := a.AsyncDispatch(context.Background(), req, resp, transport.Timeout)
		require.NoError(t, err)
		resp.SetErr(errors.New("broken pipe"))
		_, err = a.AsyncDispatch(context.Background(), req, resp, transport.Error)
		require.NoError(t, err)
		require.Equal(t, []string{"timeout", "broken pipe"}, events)
	})
}

func TestAccessLog(t *testing.T) {
	out := new(bytes.Buffer)
	a := WithAccessLog(Func(nil), zerolog.New(out))

	req, resp := newPair()
	req.RawMethod = "GET"
	req.Path = "/hello"
	resp.Code(status.NotFound)
	a.Log(req, resp, time.Millisecond)

	require.Contains(t, out.String(), `"path":"/hello"`)
	require.Contains(t, out.String(), `"status":404`)
	require.Contains(t, out.String(), `"component":"access"`)
}
