package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/indigo-web/connector/http/status"
	"github.com/indigo-web/connector/kv"
	"github.com/stretchr/testify/require"
)

type chunks struct {
	data [][]byte
}

func (c *chunks) Retrieve() ([]byte, error) {
	if len(c.data) == 0 {
		return nil, io.EOF
	}

	piece := c.data[0]
	c.data = c.data[1:]
	return piece, nil
}

type recorder struct {
	actions []ActionCode
	async   bool
}

func (r *recorder) Action(_ context.Context, code ActionCode, _ any) error {
	r.actions = append(r.actions, code)
	if code == ActionAsyncStart {
		r.async = true
	}

	return nil
}

func (r *recorder) IsAsyncStarted() bool {
	return r.async
}

func newRequest() *Request {
	return NewRequest(kv.New(), kv.New(), NewResponse())
}

func TestBody(t *testing.T) {
	t.Run("reader", func(t *testing.T) {
		request := newRequest()
		request.Body.Bind(&chunks{data: [][]byte{[]byte("Hello, "), []byte("world!")}})

		buff := make([]byte, 12)
		n, err := request.Body.Read(buff)
		require.NoError(t, err)
		require.Equal(t, "Hello, ", string(buff[:n]))

		rest, err := io.ReadAll(request.Body)
		require.NoError(t, err)
		require.Equal(t, "world!", string(rest))
		require.True(t, request.Body.Done())
	})

	t.Run("bytes", func(t *testing.T) {
		request := newRequest()
		request.Body.Bind(&chunks{data: [][]byte{[]byte("Hello, "), []byte("world!")}})
		body, err := request.Body.String()
		require.NoError(t, err)
		require.Equal(t, "Hello, world!", body)

		body, err = request.Body.String()
		require.NoError(t, err)
		require.Equal(t, "Hello, world!", body)
	})

	t.Run("callback", func(t *testing.T) {
		request := newRequest()
		request.Body.Bind(&chunks{data: [][]byte{[]byte("a"), []byte("b"), []byte("c")}})

		var collected []string
		require.NoError(t, request.Body.Callback(func(b []byte) error {
			collected = append(collected, string(b))
			return nil
		}))
		require.Equal(t, []string{"a", "b", "c"}, collected)
	})

	t.Run("json", func(t *testing.T) {
		request := newRequest()
		request.ContentType = "application/json; charset=utf-8"
		request.Body.Bind(&chunks{data: [][]byte{[]byte(`{"hello":`), []byte(`"world"}`)}})

		var model struct {
			Hello string `json:"hello"`
		}
		require.NoError(t, request.Body.JSON(&model))
		require.Equal(t, "world", model.Hello)

		request.Reset()
		request.ContentType = "text/plain"
		request.Body.Bind(&chunks{data: [][]byte{[]byte(`{}`)}})
		require.Error(t, request.Body.JSON(&model))
	})

	t.Run("discard and reset", func(t *testing.T) {
		request := newRequest()
		request.Body.Bind(&chunks{data: [][]byte{[]byte("a"), []byte("b")}})
		require.NoError(t, request.Body.Discard())
		require.NoError(t, request.Body.Error())

		request.Reset()
		n, err := request.Body.Read(make([]byte, 1))
		require.Zero(t, n)
		require.ErrorIs(t, err, io.EOF)
	})
}

func TestResponse(t *testing.T) {
	t.Run("builder", func(t *testing.T) {
		response := NewResponse().
			Code(status.Created).
			Header("X-Foo", "a", "b").
			Header("Content-Type", "text/plain").
			Header("Content-Length", "13")

		require.Equal(t, status.Created, response.StatusCode())
		require.Equal(t, []string{"a", "b"}, response.Headers().Values("x-foo"))
		require.Equal(t, "text/plain", response.GetContentType())
		require.Equal(t, int64(13), response.GetContentLength())
		require.False(t, response.Headers().Has("content-type"))
	})

	t.Run("write sets length", func(t *testing.T) {
		out := new(bytes.Buffer)
		response := NewResponse()
		response.SetOutput(out)
		require.NoError(t, response.String("Hello, world!"))
		require.Equal(t, int64(13), response.GetContentLength())
		require.Equal(t, int64(13), response.BytesWritten())
		require.Equal(t, "Hello, world!", out.String())
	})

	t.Run("json", func(t *testing.T) {
		out := new(bytes.Buffer)
		response := NewResponse()
		response.SetOutput(out)
		require.NoError(t, response.JSON([]int{1, 2, 3}))
		require.Equal(t, "[1,2,3]", out.String())
		require.Equal(t, "application/json", response.GetContentType())
	})

	t.Run("unbound", func(t *testing.T) {
		_, err := NewResponse().Write([]byte("x"))
		require.ErrorIs(t, err, ErrNoHook)
		require.ErrorIs(t, NewResponse().Commit(context.Background()), ErrNoHook)
	})

	t.Run("error", func(t *testing.T) {
		response := NewResponse().Error(status.ErrURITooLong)
		require.Equal(t, status.RequestURITooLong, response.StatusCode())

		response = NewResponse().Error(errors.New("oops"))
		require.Equal(t, status.InternalServerError, response.StatusCode())

		response = NewResponse().Error(errors.New("oops"), status.BadGateway)
		require.Equal(t, status.BadGateway, response.StatusCode())
	})

	t.Run("reset after commit", func(t *testing.T) {
		response := NewResponse()
		response.SetCommitted(true)
		require.ErrorIs(t, response.Reset(), ErrCommitted)
		response.Recycle()
		require.False(t, response.IsCommitted())
		require.NoError(t, response.Reset())
	})
}

func TestAsync(t *testing.T) {
	t.Run("actions", func(t *testing.T) {
		request := newRequest()
		hook := new(recorder)
		request.SetHook(hook)
		ctx := context.Background()

		require.False(t, request.IsAsyncStarted())
		ac, err := request.StartAsync(ctx)
		require.NoError(t, err)
		require.True(t, request.IsAsyncStarted())
		require.Same(t, request.Response(), ac.Response())

		require.NoError(t, ac.Dispatch(ctx))
		require.NoError(t, ac.Complete(ctx))
		require.NoError(t, request.Response().Flush(ctx))
		require.Equal(t, []ActionCode{
			ActionAsyncStart, ActionAsyncDispatch, ActionAsyncComplete, ActionClientFlush,
		}, hook.actions)
	})

	t.Run("listeners", func(t *testing.T) {
		request := newRequest()
		ac := request.AsyncContext()

		var events []string
		ac.AddListener(AsyncListenerFuncs{
			Complete: func(*AsyncContext) { events = append(events, "complete") },
			Timeout:  func(context.Context, *AsyncContext) { events = append(events, "timeout") },
			Error: func(_ context.Context, _ *AsyncContext, err error) {
				events = append(events, err.Error())
			},
		})

		ac.FireOnTimeout(context.Background())
		ac.FireOnError(context.Background(), errors.New("boom"))
		ac.FireOnComplete()
		ac.FireOnComplete()
		require.Equal(t, []string{"timeout", "boom", "complete"}, events)
	})

	t.Run("listeners require async", func(t *testing.T) {
		request := newRequest()
		hook := new(recorder)
		request.SetHook(hook)

		require.ErrorIs(t, request.SetReadListener(context.Background(), nil), ErrNotAsync)
		require.ErrorIs(t, request.Response().SetWriteListener(context.Background(), nil), ErrNotAsync)
	})
}
