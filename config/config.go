package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/indigo-web/connector/http/mime"
	"github.com/klauspost/compress/gzip"
)

type (
	URI struct {
		// MaxRequestLineSize limits the method, URI, query and protocol together. Exceeding it
		// results in 414 Request-URI Too Long and the connection being closed.
		MaxRequestLineSize int
	}

	Headers struct {
		// MaxNameSize limits a single header field name.
		MaxNameSize int
		// MaxValueSize limits a single header field value.
		MaxValueSize int
		// MaxSize limits the whole request header block, including names and values.
		MaxSize int
		// MaxCount is the maximal number of header fields per request.
		MaxCount int
		// MaxResponseSize is the capacity of the response header buffer. Response headers
		// not fitting into it are a fatal error.
		MaxResponseSize int
	}

	Trailers struct {
		// MaxSize limits the trailer section of a chunked request body.
		MaxSize int
		// MaxExtensionSize limits chunk extensions of a chunked request body.
		MaxExtensionSize int
		// Allowed lists trailer field names which are retained in the request. Other trailer
		// fields are parsed and dropped.
		Allowed []string `test:"nullable"`
	}

	Body struct {
		// MaxSwallowSize is how many unread request body bytes are discarded at the end of the
		// request in order to keep the connection alive. If more is left, the connection is
		// closed instead.
		MaxSwallowSize int64
		// MaxChunkSize limits a single chunk of a chunked request body.
		MaxChunkSize int64
	}

	NET struct {
		// ReadBufferSize is the size of the per-connection socket read buffer.
		ReadBufferSize int
		// WriteBufferSize is the size of the per-connection response body buffer.
		WriteBufferSize int
		// ConnectionTimeout bounds reads once a request has started to arrive.
		ConnectionTimeout time.Duration
		// KeepAliveTimeout bounds the idle time between two requests on the same connection.
		KeepAliveTimeout time.Duration
		// WriteTimeout bounds a single socket write.
		WriteTimeout time.Duration
		// AcceptLoopInterruptPeriod controls how often the Accept() call is interrupted
		// in order to check whether it's time to stop.
		AcceptLoopInterruptPeriod time.Duration
		// MaxConnections is the admission limit of concurrently open connections. -1
		// disables the limit.
		MaxConnections int64
		// MaxKeepAliveRequests is the number of requests a single connection may serve.
		// -1 means unlimited, 1 disables keep-alive.
		MaxKeepAliveRequests int
	}

	Async struct {
		// Timeout is the default timeout of a suspended request.
		Timeout time.Duration
		// SweepInterval is how often suspended requests are checked for timeouts.
		SweepInterval time.Duration
	}

	Processors struct {
		// CacheSize is the capacity of the idle processors pool. -1 means the pool isn't
		// bounded by its own capacity (it is still bounded by the number of connections.)
		CacheSize int
	}

	Workers struct {
		// Core workers are never retired due to idleness.
		Core int
		// Max is the maximal number of workers.
		Max int
		// KeepAlive is how long a non-core worker may stay idle before exiting.
		KeepAlive time.Duration
		// QueueSize is the capacity of the task queue.
		QueueSize int
		// ForceTimeout bounds how long a task rejected by the queue's own heuristic
		// waits for a free queue slot before being rejected for good.
		ForceTimeout time.Duration
	}

	Compression struct {
		// Enabled turns on response gzip compression, if the client accepts it.
		Enabled bool `test:"nullable"`
		// MinSize is the minimal known response length to be compressed. Responses
		// of unknown length are always compressed.
		MinSize int64
		// MIMETypes lists compressible content types.
		MIMETypes []string
		// Codecs lists content codings offered to clients, in the order of preference.
		// Known are gzip, deflate and zstd.
		Codecs []string
		// Level is the compression level on the gzip scale.
		Level int `test:"nullable"`
	}
)

// Config holds settings used across the engine, mainly restrictions, limitations and
// pre-allocations.
//
// You must ALWAYS modify defaults (returned via Default()) and NEVER try to initialize the
// config manually, because most likely this will result in ambiguous errors.
type Config struct {
	URI         URI
	Headers     Headers
	Trailers    Trailers
	Body        Body
	NET         NET
	Async       Async
	Processors  Processors
	Workers     Workers
	Compression Compression
}

// Default returns default config.
func Default() *Config {
	return &Config{
		URI: URI{
			MaxRequestLineSize: 8 * 1024,
		},
		Headers: Headers{
			MaxNameSize:     256,
			MaxValueSize:    8 * 1024,
			MaxSize:         16 * 1024,
			MaxCount:        100,
			MaxResponseSize: 8 * 1024,
		},
		Trailers: Trailers{
			MaxSize:          8 * 1024,
			MaxExtensionSize: 8 * 1024,
		},
		Body: Body{
			MaxSwallowSize: 2 * 1024 * 1024,
			MaxChunkSize:   16 * 1024 * 1024,
		},
		NET: NET{
			ReadBufferSize:            4 * 1024,
			WriteBufferSize:           8 * 1024,
			ConnectionTimeout:         20 * time.Second,
			KeepAliveTimeout:          60 * time.Second,
			WriteTimeout:              20 * time.Second,
			AcceptLoopInterruptPeriod: 5 * time.Second,
			MaxConnections:            8 * 1024,
			MaxKeepAliveRequests:      100,
		},
		Async: Async{
			Timeout:       30 * time.Second,
			SweepInterval: time.Second,
		},
		Processors: Processors{
			CacheSize: 200,
		},
		Workers: Workers{
			Core:         10,
			Max:          200,
			KeepAlive:    60 * time.Second,
			QueueSize:    4096,
			ForceTimeout: 100 * time.Millisecond,
		},
		Compression: Compression{
			MinSize: 2 * 1024,
			MIMETypes: slices.Clone(mime.Compressible),
			Codecs: []string{"gzip", "deflate"},
			Level:  gzip.DefaultCompression,
		},
	}
}

var ErrInvalid = errors.New("invalid configuration")

// Validate reports settings which would leave the engine unable to work.
func (c *Config) Validate() error {
	positive := []struct {
		name  string
		value int64
	}{
		{"URI.MaxRequestLineSize", int64(c.URI.MaxRequestLineSize)},
		{"Headers.MaxNameSize", int64(c.Headers.MaxNameSize)},
		{"Headers.MaxValueSize", int64(c.Headers.MaxValueSize)},
		{"Headers.MaxSize", int64(c.Headers.MaxSize)},
		{"Headers.MaxCount", int64(c.Headers.MaxCount)},
		{"Headers.MaxResponseSize", int64(c.Headers.MaxResponseSize)},
		{"Trailers.MaxSize", int64(c.Trailers.MaxSize)},
		{"Trailers.MaxExtensionSize", int64(c.Trailers.MaxExtensionSize)},
		{"Body.MaxChunkSize", c.Body.MaxChunkSize},
		{"NET.ReadBufferSize", int64(c.NET.ReadBufferSize)},
		{"NET.WriteBufferSize", int64(c.NET.WriteBufferSize)},
		{"Workers.Max", int64(c.Workers.Max)},
		{"Workers.QueueSize", int64(c.Workers.QueueSize)},
		{"Async.SweepInterval", int64(c.Async.SweepInterval)},
	}

	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalid, p.name)
		}
	}

	switch {
	case c.Workers.Core < 0 || c.Workers.Core > c.Workers.Max:
		return fmt.Errorf("%w: Workers.Core must be within [0, Workers.Max]", ErrInvalid)
	case c.NET.MaxConnections == 0 || c.NET.MaxConnections < -1:
		return fmt.Errorf("%w: NET.MaxConnections must be positive or -1", ErrInvalid)
	case c.Processors.CacheSize < -1:
		return fmt.Errorf("%w: Processors.CacheSize must be non-negative or -1", ErrInvalid)
	case c.Body.MaxSwallowSize < 0:
		return fmt.Errorf("%w: Body.MaxSwallowSize must not be negative", ErrInvalid)
	}

	return nil
}
