package gudp

import (
	"net"
	"testing"
	"time"

	"github.com/behrlich/gudp/internal/clock"
	"github.com/behrlich/gudp/internal/connstate"
	"github.com/behrlich/gudp/internal/loop"
	"github.com/behrlich/gudp/internal/ring"
	"github.com/behrlich/gudp/internal/socket"
	"github.com/stretchr/testify/require"
)

func newTestHandle(t *testing.T) (socket.Handle, *loop.Loop) {
	t.Helper()
	l, err := loop.New(loop.Options{
		Heartbeat: time.Second,
		Timeout:   5 * time.Second,
		Iota:      10 * time.Millisecond,
		BufSize:   64,
		Clock:     clock.NewTest(),
	})
	require.NoError(t, err)

	local := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1}
	peer := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 2}
	st := connstate.New(local, peer, connstate.Opts{
		Heartbeat: time.Second,
		Timeout:   5 * time.Second,
		BufSize:   64,
	}, connstate.Callbacks{}, clock.NewTest())
	st.Phase = connstate.Connected

	return socket.Handle{State: st, Token: 1, Peer: peer.String()}, l
}

func TestConnectionSendRecvDirect(t *testing.T) {
	h, l := newTestHandle(t)
	conn := newConnection(h, l)

	n, err := conn.Send([]byte("hi"))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	// The write landed in the shared write ring directly (no socket
	// registered for this handle), so read it back the same way the
	// loop's Write event would.
	buf := make([]byte, 64)
	var size int
	conn.state.Shared.WithWriteLock(func(r *ring.Ring) {
		hdl, ok := r.Front(buf)
		require.True(t, ok)
		size = hdl.Size()
	})
	require.Equal(t, 2, size)
	require.Equal(t, "hi", string(buf[:size]))
}

func TestConnectionCloneRefcount(t *testing.T) {
	h, l := newTestHandle(t)
	conn := newConnection(h, l)
	clone := conn.Clone()

	require.NoError(t, conn.Close())
	require.False(t, h.State.Shared.Status.IsClosed(), "closing one clone must not hang up while another is live")

	require.NoError(t, clone.Close())
	require.True(t, h.State.Shared.Status.AppHasHup(), "closing the last clone must set APP_HUP")
}

func TestConnectionRecvAfterCloseReturnsAfterHup(t *testing.T) {
	h, l := newTestHandle(t)
	conn := newConnection(h, l)
	require.NoError(t, conn.Close())

	h.State.Shared.CloseRead()

	dst := make([]byte, 16)
	_, err := conn.Recv(dst)
	require.Error(t, err)
	require.True(t, IsKind(err, KindAfterHup))
}

func TestConnectionTryRecvWouldBlockWhenEmpty(t *testing.T) {
	h, l := newTestHandle(t)
	conn := newConnection(h, l)

	dst := make([]byte, 16)
	_, err := conn.TryRecv(dst)
	require.Error(t, err)
	require.True(t, IsKind(err, KindWouldBlock))
}

func TestConnectionLocalAndPeerAddr(t *testing.T) {
	h, l := newTestHandle(t)
	conn := newConnection(h, l)
	require.Equal(t, "127.0.0.1:1", conn.LocalAddr().String())
	require.Equal(t, "127.0.0.1:2", conn.PeerAddr().String())
}
