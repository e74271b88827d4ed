package http1

import (
	"strings"
	"testing"

	"github.com/dchest/uniuri"
	"github.com/indigo-web/connector/config"
	"github.com/indigo-web/connector/http"
	"github.com/indigo-web/connector/http/method"
	"github.com/indigo-web/connector/http/status"
	"github.com/indigo-web/connector/kv"
	"github.com/stretchr/testify/require"
)

func newRequest() *http.Request {
	return http.NewRequest(kv.New(), kv.New(), http.NewResponse())
}

func feedParser(p *Parser, data string, step int) (done bool, extra []byte, err error) {
	raw := []byte(data)
	if step <= 0 {
		step = len(raw)
	}

	for len(raw) > 0 {
		piece := raw[:min(step, len(raw))]
		raw = raw[len(piece):]

		if done, extra, err = p.Parse(piece); done || err != nil {
			return done, append(append([]byte(nil), extra...), raw...), err
		}
	}

	return false, nil, nil
}

func TestParser(t *testing.T) {
	t.Run("request line and headers", func(t *testing.T) {
		for _, step := range []int{0, 1, 3, 7} {
			request := newRequest()
			p := NewParser(config.Default(), request)
			done, extra, err := feedParser(p, "GET /hello?name=world HTTP/1.1\r\n"+
				"Host: localhost\r\nContent-Length: 5\r\nX-Padded:  value \t\r\n\r\nhello", step)
			require.NoError(t, err)
			require.True(t, done)
			require.Equal(t, "hello", string(extra))
			require.Equal(t, method.GET, request.Method)
			require.Equal(t, "GET", request.RawMethod)
			require.Equal(t, "/hello", request.Path)
			require.Equal(t, "name=world", request.Query)
			require.Equal(t, "HTTP/1.1", request.Protocol)
			require.Equal(t, "localhost", request.Headers.Value("host"))
			require.Equal(t, "value", request.Headers.Value("x-padded"))
			require.Equal(t, int64(5), request.ContentLength)
		}
	})

	t.Run("bare LF line endings", func(t *testing.T) {
		request := newRequest()
		done, _, err := feedParser(NewParser(config.Default(), request), "POST / HTTP/1.0\nA: b\n\n", 0)
		require.NoError(t, err)
		require.True(t, done)
		require.Equal(t, method.POST, request.Method)
		require.Equal(t, "HTTP/1.0", request.Protocol)
		require.Equal(t, "b", request.Headers.Value("a"))
	})

	t.Run("leading empty lines", func(t *testing.T) {
		request := newRequest()
		done, _, err := feedParser(NewParser(config.Default(), request), "\r\n\r\nGET / HTTP/1.1\r\n\r\n", 0)
		require.NoError(t, err)
		require.True(t, done)
		require.Equal(t, "/", request.Path)
	})

	t.Run("random headers", func(t *testing.T) {
		request := newRequest()
		p := NewParser(config.Default(), request)

		names := make([]string, 20)
		values := make([]string, 20)
		var raw strings.Builder
		raw.WriteString("GET / HTTP/1.1\r\n")
		for i := range names {
			names[i], values[i] = "X-"+uniuri.NewLen(16), uniuri.NewLen(64)
			raw.WriteString(names[i] + ": " + values[i] + "\r\n")
		}
		raw.WriteString("\r\n")

		done, _, err := feedParser(p, raw.String(), 5)
		require.NoError(t, err)
		require.True(t, done)

		for i, name := range names {
			got, found := request.Headers.Get(strings.ToLower(name))
			require.True(t, found, name)
			require.Equal(t, values[i], got)
		}
	})

	t.Run("chunked overrides length", func(t *testing.T) {
		request := newRequest()
		_, _, err := feedParser(NewParser(config.Default(), request),
			"POST / HTTP/1.1\r\nContent-Length: 10\r\nTransfer-Encoding: identity, chunked\r\n\r\n", 0)
		require.NoError(t, err)
		require.True(t, request.Chunked)
		require.Equal(t, int64(-1), request.ContentLength)
	})

	t.Run("expect continue", func(t *testing.T) {
		request := newRequest()
		_, _, err := feedParser(NewParser(config.Default(), request),
			"PUT / HTTP/1.1\r\nExpect: 100-Continue\r\n\r\n", 0)
		require.NoError(t, err)
		require.True(t, request.ExpectsContinue())
	})

	t.Run("reset", func(t *testing.T) {
		request := newRequest()
		p := NewParser(config.Default(), request)
		_, _, err := feedParser(p, "GET /first HTTP/1.1\r\n\r\n", 0)
		require.NoError(t, err)

		request.Reset()
		p.Reset()
		require.False(t, p.Started())

		_, _, err = feedParser(p, "GET /second HTTP/1.1\r\n\r\n", 0)
		require.NoError(t, err)
		require.Equal(t, "/second", request.Path)
	})
}

func TestParserErrors(t *testing.T) {
	limited := func() *config.Config {
		cfg := config.Default()
		cfg.URI.MaxRequestLineSize = 64
		cfg.Headers.MaxNameSize = 16
		cfg.Headers.MaxValueSize = 32
		cfg.Headers.MaxCount = 3
		return cfg
	}

	tcs := []struct {
		Name    string
		Request string
		Err     error
	}{
		{"request line too long", "GET /" + strings.Repeat("a", 100) + " HTTP/1.1\r\n\r\n", status.ErrURITooLong},
		{"empty path", "GET  HTTP/1.1\r\n\r\n", status.ErrBadRequestLine},
		{"no protocol", "GET /\r\n\r\n", status.ErrBadRequestLine},
		{"unsupported protocol", "GET / HTTP/2.0\r\n\r\n", status.ErrUnsupportedProtocol},
		{"garbage protocol", "GET / FTP/1.1\r\n\r\n", status.ErrBadRequestLine},
		{"header name too long", "GET / HTTP/1.1\r\n" + strings.Repeat("n", 20) + ": v\r\n\r\n", status.ErrHeaderNameTooLarge},
		{"header value too long", "GET / HTTP/1.1\r\nn: " + strings.Repeat("v", 40) + "\r\n\r\n", status.ErrHeaderValueTooLarge},
		{"too many headers", "GET / HTTP/1.1\r\na: 1\r\nb: 2\r\nc: 3\r\nd: 4\r\n\r\n", status.ErrTooManyHeaders},
		{"space in header name", "GET / HTTP/1.1\r\nbad name: 1\r\n\r\n", status.ErrBadHeader},
		{"space before colon", "GET / HTTP/1.1\r\nname : 1\r\n\r\n", status.ErrBadHeader},
		{"line folding", "GET / HTTP/1.1\r\na: 1\r\n 2\r\n\r\n", status.ErrBadHeader},
		{"no colon", "GET / HTTP/1.1\r\nnocolon\r\n\r\n", status.ErrBadHeader},
		{"negative length", "GET / HTTP/1.1\r\ncontent-length: -1\r\n\r\n", status.ErrBadContentLength},
		{"conflicting lengths", "GET / HTTP/1.1\r\ncontent-length: 1\r\ncontent-length: 2\r\n\r\n", status.ErrBadContentLength},
		{"chunked is not the last", "GET / HTTP/1.1\r\ntransfer-encoding: chunked, gzip\r\n\r\n", status.ErrBadEncoding},
		{"unknown coding", "GET / HTTP/1.1\r\ntransfer-encoding: gzip\r\n\r\n", status.ErrUnsupportedEncoding},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			_, _, err := feedParser(NewParser(limited(), newRequest()), tc.Request, 0)
			require.ErrorIs(t, err, tc.Err)
		})
	}

	t.Run("equal lengths are fine", func(t *testing.T) {
		request := newRequest()
		_, _, err := feedParser(NewParser(limited(), request),
			"GET / HTTP/1.1\r\ncontent-length: 2\r\ncontent-length: 2\r\n\r\n", 0)
		require.NoError(t, err)
		require.Equal(t, int64(2), request.ContentLength)
	})

	t.Run("header block too large", func(t *testing.T) {
		cfg := config.Default()
		cfg.Headers.MaxSize = 64
		raw := "GET / HTTP/1.1\r\n" + strings.Repeat("name: "+strings.Repeat("v", 20)+"\r\n", 5) + "\r\n"
		_, _, err := feedParser(NewParser(cfg, newRequest()), raw, 0)
		require.ErrorIs(t, err, status.ErrHeaderFieldsTooLarge)
	})
}
