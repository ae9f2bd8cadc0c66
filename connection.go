package gudp

import (
	"net"
	"sync/atomic"
	"syscall"

	"github.com/behrlich/gudp/internal/connstate"
	"github.com/behrlich/gudp/internal/loop"
	"github.com/behrlich/gudp/internal/socket"
)

// Connection is the application-facing handle for one peer. It may be
// cloned; the underlying connection is only marked closed (APP_HUP)
// when its last clone is closed, per the spec's resolution of the
// handle-drop open question.
type Connection struct {
	state *connstate.State
	loop  *loop.Loop
	token socket.Token
	peer  string

	refs *atomic.Int64
}

func newConnection(h socket.Handle, l *loop.Loop) *Connection {
	refs := &atomic.Int64{}
	refs.Store(1)
	return &Connection{
		state: h.State,
		loop:  l,
		token: h.Token,
		peer:  h.Peer,
		refs:  refs,
	}
}

// Clone returns a second handle to the same underlying connection.
// Closing a Connection only sets APP_HUP once every clone (including
// the original) has been closed.
func (c *Connection) Clone() *Connection {
	c.refs.Add(1)
	return &Connection{
		state: c.state,
		loop:  c.loop,
		token: c.token,
		peer:  c.peer,
		refs:  c.refs,
	}
}

// Send enqueues payload for delivery. It never blocks: if the write
// ring is full it returns a would-block Error.
func (c *Connection) Send(payload []byte) (int, error) {
	if c.state.Shared.Status.IsClosed() {
		return 0, AfterHupError("Connection.Send")
	}
	if !c.state.Shared.PushWrite(payload) {
		return 0, WouldBlockError("Connection.Send")
	}
	c.loop.WakeWrite(c.token, c.peer)
	return len(payload), nil
}

// Recv blocks until a payload is available or the connection closes.
// If dst is smaller than the pending payload, the payload is left
// queued and a no-space-to-read Error is returned.
func (c *Connection) Recv(dst []byte) (int, error) {
	n, ok, closed := c.state.Shared.Recv(dst)
	if closed {
		return 0, c.closedError()
	}
	if !ok {
		return 0, NoSpaceToReadError("Connection.Recv", n, len(dst))
	}
	return n, nil
}

// TryRecv never blocks. It returns a would-block Error if nothing is
// pending and the connection is still open.
func (c *Connection) TryRecv(dst []byte) (int, error) {
	n, ok, closed, hadData := c.state.Shared.TryRecv(dst)
	switch {
	case !hadData && closed:
		return 0, c.closedError()
	case !hadData:
		return 0, WouldBlockError("Connection.TryRecv")
	case !ok:
		return 0, NoSpaceToReadError("Connection.TryRecv", n, len(dst))
	default:
		return n, nil
	}
}

func (c *Connection) closedError() *Error {
	if errno := c.state.Shared.Status.Errno(); errno != 0 {
		return &Error{Op: "Connection", Kind: KindIOError, Errno: syscall.Errno(errno)}
	}
	return AfterHupError("Connection")
}

// LocalAddr returns this connection's local socket address.
func (c *Connection) LocalAddr() net.Addr { return c.state.LocalAddr }

// PeerAddr returns this connection's remote peer address.
func (c *Connection) PeerAddr() net.Addr { return c.state.PeerAddr }

// Close drops this clone's reference. Only the last live clone's Close
// actually sets APP_HUP; the loop observes it on its next read or
// write event for this peer and frees the connection.
func (c *Connection) Close() error {
	if c.refs.Add(-1) > 0 {
		return nil
	}
	c.state.AppDrop()
	c.loop.WakeWrite(c.token, c.peer)
	return nil
}
