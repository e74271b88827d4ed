package http

import (
	"context"

	"github.com/indigo-web/connector/transport"
)

// ReadListener is notified when request body data can be read without blocking.
type ReadListener interface {
	OnDataAvailable(ctx context.Context) error
	OnAllDataRead(ctx context.Context) error
	OnError(ctx context.Context, err error)
}

// WriteListener is notified when the response can be written without blocking.
type WriteListener interface {
	OnWritePossible(ctx context.Context) error
	OnError(ctx context.Context, err error)
}

// AsyncListener observes the outcome of an async cycle.
type AsyncListener interface {
	OnComplete(ac *AsyncContext)
	OnTimeout(ctx context.Context, ac *AsyncContext)
	OnError(ctx context.Context, ac *AsyncContext, err error)
}

// AsyncListenerFuncs implements AsyncListener, calling only the non-nil callbacks.
type AsyncListenerFuncs struct {
	Complete func(ac *AsyncContext)
	Timeout  func(ctx context.Context, ac *AsyncContext)
	Error    func(ctx context.Context, ac *AsyncContext, err error)
}

func (a AsyncListenerFuncs) OnComplete(ac *AsyncContext) {
	if a.Complete != nil {
		a.Complete(ac)
	}
}

func (a AsyncListenerFuncs) OnTimeout(ctx context.Context, ac *AsyncContext) {
	if a.Timeout != nil {
		a.Timeout(ctx, ac)
	}
}

func (a AsyncListenerFuncs) OnError(ctx context.Context, ac *AsyncContext, err error) {
	if a.Error != nil {
		a.Error(ctx, ac, err)
	}
}

// UpgradeHandler takes the connection over after a protocol upgrade.
type UpgradeHandler interface {
	// Init is called once the 101 response is written.
	Init(conn *transport.Conn)
	// Dispatch is called on every event of the connection.
	Dispatch(event transport.SocketEvent) transport.SocketState
	// Destroy is called when the connection is being closed.
	Destroy()
}

// UpgradeToken is passed along with ActionUpgrade.
type UpgradeToken struct {
	Handler  UpgradeHandler
	Protocol string
}
