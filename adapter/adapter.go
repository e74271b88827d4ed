// Package adapter defines the boundary between the engine and the application.
package adapter

import (
	"context"
	"time"

	"github.com/indigo-web/connector/http"
	"github.com/indigo-web/connector/transport"
	"github.com/rs/zerolog"
)

// Adapter is the application as seen by the engine.
type Adapter interface {
	// Service handles a freshly parsed request. The request may be suspended by starting
	// async on it, otherwise the response is finished once Service returns.
	Service(ctx context.Context, req *http.Request, resp *http.Response) error
	// AsyncDispatch resumes a suspended request because of the event: Timeout, Error or
	// OpenRead for an explicit dispatch. False means the request couldn't be handled.
	AsyncDispatch(ctx context.Context, req *http.Request, resp *http.Response, event transport.SocketEvent) (bool, error)
	// Log is called once per finished request.
	Log(req *http.Request, resp *http.Response, elapsed time.Duration)
}

// Func adapts a plain service function. Dispatched requests are serviced by the function
// once again, timeouts and errors are reported to the async listeners.
type Func func(ctx context.Context, req *http.Request, resp *http.Response) error

func (f Func) Service(ctx context.Context, req *http.Request, resp *http.Response) error {
	return f(ctx, req, resp)
}

func (f Func) AsyncDispatch(
	ctx context.Context, req *http.Request, resp *http.Response, event transport.SocketEvent,
) (bool, error) {
	switch event {
	case transport.Timeout:
		req.AsyncContext().FireOnTimeout(ctx)
	case transport.Error:
		err := resp.Err()
		if err == nil {
			err = context.Canceled
		}

		req.AsyncContext().FireOnError(ctx, err)
	default:
		if err := f(ctx, req, resp); err != nil {
			return false, err
		}
	}

	return true, nil
}

func (Func) Log(*http.Request, *http.Response, time.Duration) {}

// WithAccessLog wraps the adapter, writing an access log entry per finished request.
func WithAccessLog(a Adapter, log zerolog.Logger) Adapter {
	return accessLog{
		Adapter: a,
		log:     log.With().Str("component", "access").Logger(),
	}
}

type accessLog struct {
	Adapter
	log zerolog.Logger
}

func (a accessLog) Log(req *http.Request, resp *http.Response, elapsed time.Duration) {
	a.log.Info().
		Str("method", req.RawMethod).
		Str("path", req.Path).
		Str("proto", req.Protocol).
		Uint16("status", uint16(resp.StatusCode())).
		Int64("bytes", resp.BytesWritten()).
		Dur("elapsed", elapsed).
		Msg("request")

	a.Adapter.Log(req, resp, elapsed)
}
