package gudp

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func udpLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServiceConnectListenHandshake(t *testing.T) {
	svc, err := NewService(DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	serverSock := udpLoopback(t)
	clientSock := udpLoopback(t)

	ln, err := svc.Listen(serverSock)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	client, err := svc.Connect(clientSock, serverSock.LocalAddr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	accepted := make(chan *Connection, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	select {
	case server := <-accepted:
		t.Cleanup(func() { server.Close() })
		require.Equal(t, clientSock.LocalAddr().String(), server.PeerAddr().String())
	case <-time.After(2 * time.Second):
		t.Fatal("listener never accepted the handshake")
	}
}

func TestServiceSendRecvRoundTrip(t *testing.T) {
	svc, err := NewService(DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	serverSock := udpLoopback(t)
	clientSock := udpLoopback(t)

	ln, err := svc.Listen(serverSock)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	client, err := svc.Connect(clientSock, serverSock.LocalAddr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	accepted := make(chan *Connection, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	var server *Connection
	select {
	case server = <-accepted:
		t.Cleanup(func() { server.Close() })
	case <-time.After(2 * time.Second):
		t.Fatal("listener never accepted the handshake")
	}

	payload := []byte("hello gudp")
	_, err = client.Send(payload)
	require.NoError(t, err)

	dst := make([]byte, 1024)
	done := make(chan struct{})
	go func() {
		n, err := server.Recv(dst)
		if err == nil && n == len(payload) {
			close(done)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the payload")
	}
}

func TestServiceWrongMagicIsDropped(t *testing.T) {
	svc, err := NewService(DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	serverSock := udpLoopback(t)
	sender := udpLoopback(t)
	t.Cleanup(func() { sender.Close() })

	ln, err := svc.Listen(serverSock)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	badMagic := []byte{
		0xab, 0xcd, 0x12, 0x34,
		0, 0, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 0,
		't', 'e', 's', 't', ' ', 'p', 'a', 'y', 'l', 'o', 'a', 'd',
	}
	_, err = sender.WriteTo(badMagic, serverSock.LocalAddr())
	require.NoError(t, err)

	sender.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	buf := make([]byte, 64)
	_, _, err = sender.ReadFrom(buf)
	require.Error(t, err, "a wrong-magic datagram must never provoke a reply")
}

func TestServiceCorrectMagicHandshakeEchoesHeartbeat(t *testing.T) {
	svc, err := NewService(DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	serverSock := udpLoopback(t)
	sender := udpLoopback(t)
	t.Cleanup(func() { sender.Close() })

	ln, err := svc.Listen(serverSock)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	handshake := make([]byte, HeaderSize)
	be := func(v uint32, off int) {
		handshake[off] = byte(v >> 24)
		handshake[off+1] = byte(v >> 16)
		handshake[off+2] = byte(v >> 8)
		handshake[off+3] = byte(v)
	}
	be(Magic, 0)
	_, err = sender.WriteTo(handshake, serverSock.LocalAddr())
	require.NoError(t, err)

	sender.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	buf := make([]byte, 64)
	n, _, err := sender.ReadFrom(buf)
	require.NoError(t, err, "expected the listener's initial heartbeat in reply")
	require.Equal(t, HeaderSize, n)
}
