package processor

import (
	"errors"
	"testing"

	"github.com/indigo-web/connector/http"
	"github.com/indigo-web/connector/transport"
	"github.com/stretchr/testify/require"
)

func TestErrorState(t *testing.T) {
	t.Run("escalation is monotonic", func(t *testing.T) {
		state := ErrorNone.Merge(ErrorCloseConnectionNow)
		state = state.Merge(ErrorCloseClean)
		require.Equal(t, ErrorCloseConnectionNow, state)
		state = state.Merge(ErrorCloseNow)
		require.Equal(t, ErrorCloseNow, state)
		require.Equal(t, ErrorCloseNow, state.Merge(ErrorNone))
	})

	t.Run("io", func(t *testing.T) {
		require.True(t, ErrorNone.IsIOAllowed())
		require.True(t, ErrorCloseClean.IsIOAllowed())
		require.False(t, ErrorCloseConnectionNow.IsIOAllowed())
		require.False(t, ErrorCloseNow.IsIOAllowed())
		require.False(t, ErrorCloseConnectionNow.IsConnectionIOAllowed())
		require.True(t, ErrorCloseNow.IsConnectionIOAllowed())
	})

	t.Run("names", func(t *testing.T) {
		require.Equal(t, "CLOSE_CLEAN", ErrorCloseClean.String())
		require.Equal(t, "UNKNOWN", ErrorState(42).String())
		require.False(t, ErrorNone.IsError())
	})
}

type call struct {
	method string
	event  transport.SocketEvent
}

type fakeProtocol struct {
	calls     []call
	service   []transport.SocketState
	dispatch  []transport.SocketState
	post      []transport.SocketState
	async     bool
	asyncPost bool
	err       error
}

func pop(states *[]transport.SocketState, def transport.SocketState) transport.SocketState {
	if len(*states) == 0 {
		return def
	}

	state := (*states)[0]
	*states = (*states)[1:]
	return state
}

func (f *fakeProtocol) Service(*transport.Conn) (transport.SocketState, error) {
	f.calls = append(f.calls, call{method: "service"})
	return pop(&f.service, transport.Open), f.err
}

func (f *fakeProtocol) Dispatch(event transport.SocketEvent) (transport.SocketState, error) {
	f.calls = append(f.calls, call{"dispatch", event})
	return pop(&f.dispatch, transport.Long), nil
}

func (f *fakeProtocol) AsyncPostProcess() (transport.SocketState, error) {
	f.calls = append(f.calls, call{method: "post"})
	state := pop(&f.post, transport.Long)
	if state == transport.AsyncEnd {
		f.async = false
	}

	return state, nil
}

func (f *fakeProtocol) IsAsync() bool {
	return f.async
}

func (f *fakeProtocol) IsUpgrade() bool {
	return false
}

func (f *fakeProtocol) LogAccess(*transport.Conn) {
	f.calls = append(f.calls, call{method: "log"})
}

func methods(calls []call) (names []string) {
	for _, c := range calls {
		names = append(names, c.method)
	}

	return names
}

func TestLight(t *testing.T) {
	t.Run("plain request", func(t *testing.T) {
		var l Light
		p := &fakeProtocol{}
		state, err := l.Process(p, nil, transport.OpenRead)
		require.NoError(t, err)
		require.Equal(t, transport.Open, state)
		require.Equal(t, []string{"service"}, methods(p.calls))
	})

	t.Run("disconnect", func(t *testing.T) {
		var l Light
		p := &fakeProtocol{}
		state, err := l.Process(p, nil, transport.Disconnect)
		require.NoError(t, err)
		require.Equal(t, transport.Closed, state)
		require.Empty(t, p.calls)
	})

	t.Run("connect fail", func(t *testing.T) {
		var l Light
		p := &fakeProtocol{}
		state, err := l.Process(p, nil, transport.ConnectFail)
		require.NoError(t, err)
		require.Equal(t, transport.Closed, state)
		require.Equal(t, []string{"log"}, methods(p.calls))
	})

	t.Run("leftover write notification", func(t *testing.T) {
		var l Light
		p := &fakeProtocol{}
		state, err := l.Process(p, nil, transport.OpenWrite)
		require.NoError(t, err)
		require.Equal(t, transport.Long, state)
	})

	t.Run("async end loops into pipelined request", func(t *testing.T) {
		var l Light
		p := &fakeProtocol{
			async:    true,
			post:     []transport.SocketState{transport.AsyncEnd},
			dispatch: []transport.SocketState{transport.Long, transport.Open},
			service:  []transport.SocketState{transport.Open},
		}
		state, err := l.Process(p, nil, transport.OpenRead)
		require.NoError(t, err)
		require.Equal(t, transport.Open, state)
		require.Equal(t, []string{"dispatch", "post", "dispatch", "service"}, methods(p.calls))
	})

	t.Run("queued dispatches are replayed in order", func(t *testing.T) {
		var l Light
		l.AddDispatch(NonBlockingWrite)
		l.AddDispatch(NonBlockingRead)
		l.AddDispatch(NonBlockingWrite)

		p := &fakeProtocol{async: true}
		state, err := l.Process(p, nil, transport.OpenRead)
		require.NoError(t, err)
		require.Equal(t, transport.Long, state)
		require.Equal(t, []call{
			{"dispatch", transport.OpenRead},
			{method: "post"},
			{"dispatch", transport.OpenWrite},
			{method: "post"},
			{"dispatch", transport.OpenRead},
			{method: "post"},
		}, p.calls)
		require.Empty(t, l.TakeDispatches())
	})

	t.Run("error", func(t *testing.T) {
		var l Light
		p := &fakeProtocol{err: errors.New("boom")}
		state, err := l.Process(p, nil, transport.OpenRead)
		require.Error(t, err)
		require.Equal(t, transport.Closed, state)
	})
}

type upgradeHandler struct {
	events    []transport.SocketEvent
	destroyed bool
	result    transport.SocketState
}

func (u *upgradeHandler) Init(*transport.Conn) {}

func (u *upgradeHandler) Dispatch(event transport.SocketEvent) transport.SocketState {
	u.events = append(u.events, event)
	return u.result
}

func (u *upgradeHandler) Destroy() {
	u.destroyed = true
}

func TestUpgrade(t *testing.T) {
	h := &upgradeHandler{result: transport.Upgraded}
	u := NewUpgrade(nil, http.UpgradeToken{Handler: h, Protocol: "echo"})
	require.True(t, u.IsUpgrade())
	require.False(t, u.IsAsync())

	state, err := u.Process(nil, transport.OpenRead)
	require.NoError(t, err)
	require.Equal(t, transport.Upgraded, state)
	require.Equal(t, []transport.SocketEvent{transport.OpenRead}, h.events)

	state, err = u.Process(nil, transport.Disconnect)
	require.NoError(t, err)
	require.Equal(t, transport.Closed, state)

	h.result = transport.Closed
	state, err = u.Process(nil, transport.OpenRead)
	require.NoError(t, err)
	require.Equal(t, transport.Closed, state)

	u.Destroy()
	require.True(t, h.destroyed)
	require.Equal(t, "echo", u.UpgradeToken().Protocol)
}
