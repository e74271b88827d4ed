package processor

import (
	"errors"

	"github.com/indigo-web/connector/http"
	"github.com/indigo-web/connector/transport"
)

var ErrUpgraded = errors.New("connection is upgraded, no requests can be serviced")

var _ Processor = new(Upgrade)

// Upgrade serves a connection switched to another protocol by passing every event to the
// upgrade handler.
type Upgrade struct {
	Light
	conn  *transport.Conn
	token http.UpgradeToken
}

func NewUpgrade(conn *transport.Conn, token http.UpgradeToken) *Upgrade {
	return &Upgrade{
		conn:  conn,
		token: token,
	}
}

func (u *Upgrade) Process(conn *transport.Conn, event transport.SocketEvent) (transport.SocketState, error) {
	return u.Light.Process(u, conn, event)
}

func (u *Upgrade) Service(*transport.Conn) (transport.SocketState, error) {
	return transport.Closed, ErrUpgraded
}

func (u *Upgrade) Dispatch(event transport.SocketEvent) (transport.SocketState, error) {
	switch event {
	case transport.Stop, transport.Disconnect, transport.Error:
		return transport.Closed, nil
	}

	if state := u.token.Handler.Dispatch(event); state == transport.Closed {
		return transport.Closed, nil
	}

	return transport.Upgraded, nil
}

func (u *Upgrade) AsyncPostProcess() (transport.SocketState, error) {
	return transport.Closed, nil
}

func (u *Upgrade) LogAccess(*transport.Conn) {}

func (u *Upgrade) Conn() *transport.Conn {
	return u.conn
}

func (u *Upgrade) SetConn(conn *transport.Conn) {
	u.conn = conn
}

func (u *Upgrade) IsAsync() bool {
	return false
}

func (u *Upgrade) IsUpgrade() bool {
	return true
}

func (u *Upgrade) UpgradeToken() http.UpgradeToken {
	return u.token
}

func (u *Upgrade) TimeoutAsync(int64) {}

func (u *Upgrade) CheckAsyncTimeoutGeneration() bool {
	return false
}

func (u *Upgrade) Pause() {}

func (u *Upgrade) Recycle() {
	u.ClearDispatches()
}

// Init passes the connection to the handler, once the switching response is out.
func (u *Upgrade) Init() {
	u.token.Handler.Init(u.conn)
}

// Destroy releases the handler. The processor must not be used afterward.
func (u *Upgrade) Destroy() {
	u.token.Handler.Destroy()
}
