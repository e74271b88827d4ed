package http

import (
	"context"
	"errors"
)

// ActionCode is a request from the application to the processor serving the connection.
type ActionCode uint8

const (
	// ActionCommit prepares the response and writes its headers out.
	ActionCommit ActionCode = iota
	// ActionClose commits the response and finishes it.
	ActionClose
	// ActionAck sends 100 Continue, if the client expects it.
	ActionAck
	// ActionClientFlush writes out everything buffered so far.
	ActionClientFlush
	ActionAsyncStart
	ActionAsyncComplete
	ActionAsyncDispatch
	ActionAsyncError
	ActionAsyncRun
	ActionAsyncSetTimeout
	// ActionDispatchRead schedules the read listener to be notified.
	ActionDispatchRead
	// ActionDispatchWrite schedules the write listener to be notified.
	ActionDispatchWrite
	// ActionDispatchExecute processes the scheduled notifications outside the current call.
	ActionDispatchExecute
	// ActionUpgrade hands the connection over to an UpgradeToken.
	ActionUpgrade
)

var actionNames = [...]string{
	ActionCommit:          "COMMIT",
	ActionClose:           "CLOSE",
	ActionAck:             "ACK",
	ActionClientFlush:     "CLIENT_FLUSH",
	ActionAsyncStart:      "ASYNC_START",
	ActionAsyncComplete:   "ASYNC_COMPLETE",
	ActionAsyncDispatch:   "ASYNC_DISPATCH",
	ActionAsyncError:      "ASYNC_ERROR",
	ActionAsyncRun:        "ASYNC_RUN",
	ActionAsyncSetTimeout: "ASYNC_SETTIMEOUT",
	ActionDispatchRead:    "DISPATCH_READ",
	ActionDispatchWrite:   "DISPATCH_WRITE",
	ActionDispatchExecute: "DISPATCH_EXECUTE",
	ActionUpgrade:         "UPGRADE",
}

func (a ActionCode) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}

	return "UNKNOWN"
}

// ActionHook executes actions. The context must be the one passed into the application
// by the engine, as it tells whether the action is requested from within the call.
type ActionHook interface {
	Action(ctx context.Context, code ActionCode, param any) error
}

var (
	ErrNotAsync      = errors.New("request is not in async mode")
	ErrCommitted     = errors.New("response is already committed")
	ErrNoHook        = errors.New("request is not bound to a connection")
	ErrListenerIsSet = errors.New("listener is already set")
)

type nopHook struct{}

func (nopHook) Action(context.Context, ActionCode, any) error {
	return ErrNoHook
}
