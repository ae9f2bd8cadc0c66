// Package gudp implements a reliable session layer over UDP: a
// single-threaded event loop multiplexes any number of peer
// connections over application-supplied sockets, tracking sequence
// numbers, acks, and liveness per spec. See internal/connstate for the
// per-peer state machine and internal/loop for the scheduler.
package gudp

import (
	"net"

	"github.com/behrlich/gudp/internal/connstate"
	"github.com/behrlich/gudp/internal/loop"
	"github.com/behrlich/gudp/internal/socket"
)

// Service owns the background event loop. Construct one with
// NewService and keep it alive for as long as any Connection or
// Listener built from it is in use.
type Service struct {
	loop *loop.Loop
	cfg  Config
}

// NewService builds and starts the background event loop. Unset
// fields in cfg fall back to DefaultConfig's values.
func NewService(cfg Config) (*Service, error) {
	cfg = cfg.withDefaults()

	l, err := loop.New(loop.Options{
		Heartbeat: cfg.Heartbeat,
		Timeout:   cfg.Timeout,
		Iota:      cfg.Iota,
		BufSize:   cfg.BufSize,
		Clock:     cfg.Clock,
		Logger:    cfg.Logger,
		Callbacks: connstate.Callbacks{
			OnPacketSent:  cfg.packetSentCallback(),
			OnPacketAcked: cfg.packetAckedCallback(),
			OnPacketLost:  cfg.packetLostCallback(),
		},
	})
	if err != nil {
		return nil, IOErrorFrom("NewService", err)
	}

	s := &Service{loop: l, cfg: cfg}
	go l.Run()
	return s, nil
}

// packetSentCallback bridges the Config's observer and user callback
// into the single func connstate.Callbacks accepts.
func (c Config) packetSentCallback() func(local, peer net.Addr, payload []byte, seqNo uint32) {
	return func(local, peer net.Addr, payload []byte, seqNo uint32) {
		c.Observer.ObserveSent(len(payload))
		if c.OnPacketSent != nil {
			c.OnPacketSent(local, peer, payload, seqNo)
		}
	}
}

func (c Config) packetAckedCallback() func(local, peer net.Addr, seqNo uint32) {
	return func(local, peer net.Addr, seqNo uint32) {
		c.Observer.ObserveAcked()
		if c.OnPacketAcked != nil {
			c.OnPacketAcked(local, peer, seqNo)
		}
	}
}

func (c Config) packetLostCallback() func(local, peer net.Addr, seqNo uint32) {
	return func(local, peer net.Addr, seqNo uint32) {
		c.Observer.ObserveLost(1)
		if c.OnPacketLost != nil {
			c.OnPacketLost(local, peer, seqNo)
		}
	}
}

// withDefaults fills any zero-valued field with DefaultConfig's value.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Heartbeat == 0 {
		c.Heartbeat = def.Heartbeat
	}
	if c.Timeout == 0 {
		c.Timeout = def.Timeout
	}
	if c.Iota == 0 {
		c.Iota = def.Iota
	}
	if c.BufSize == 0 {
		c.BufSize = def.BufSize
	}
	if c.Clock == nil {
		c.Clock = def.Clock
	}
	if c.Logger == nil {
		c.Logger = def.Logger
	}
	if c.Observer == nil {
		c.Observer = def.Observer
	}
	return c
}

// Connect actively connects udpSocket to peerAddr and blocks until the
// handshake's initial heartbeat has been preloaded and the connection
// is registered with the loop. The returned Connection starts in the
// Handshaking phase; it transitions to Connected on the peer's first
// reply, transparently to the caller.
func (s *Service) Connect(udpSocket net.PacketConn, peerAddr net.Addr) (*Connection, error) {
	reply := make(chan socket.Handle, 2)
	req := loop.ConnectRequest{Conn: udpSocket, Peer: peerAddr, Reply: reply}

	select {
	case s.loop.Connect <- req:
	case <-s.loop.Done():
		return nil, BrokenPipeError("Service.Connect")
	}

	select {
	case handle := <-reply:
		return newConnection(handle, s.loop), nil
	case <-s.loop.Done():
		return nil, BrokenPipeError("Service.Connect")
	}
}

// Listen registers udpSocket as a passive listener. Call Accept on the
// returned Listener to receive connections as peers first make
// contact.
func (s *Service) Listen(udpSocket net.PacketConn) (*Listener, error) {
	accept := make(chan socket.Handle, 2)
	registered := make(chan socket.Token, 1)
	req := loop.ListenRequest{Conn: udpSocket, Accept: accept, Registered: registered}

	select {
	case s.loop.Listen <- req:
	case <-s.loop.Done():
		return nil, BrokenPipeError("Service.Listen")
	}

	select {
	case tok := <-registered:
		return newListener(accept, tok, s.loop), nil
	case <-s.loop.Done():
		return nil, BrokenPipeError("Service.Listen")
	}
}

// Close stops the background event loop. After it returns, Connect,
// Listen and Listener.Accept report broken-pipe. Connection handles are
// not closed by it: Send still queues into the write ring, nothing
// transmits it, and Recv on an empty ring keeps waiting.
func (s *Service) Close() {
	s.loop.Stop()
}
