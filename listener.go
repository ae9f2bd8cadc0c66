package gudp

import (
	"github.com/behrlich/gudp/internal/loop"
	"github.com/behrlich/gudp/internal/socket"
)

// Listener accepts inbound connections on a socket registered with
// Service.Listen.
type Listener struct {
	accept chan socket.Handle
	token  socket.Token
	loop   *loop.Loop
	closed bool
}

func newListener(accept chan socket.Handle, tok socket.Token, l *loop.Loop) *Listener {
	return &Listener{accept: accept, token: tok, loop: l}
}

// Accept blocks until a peer completes its handshake on this listener,
// or the listener (or its underlying service) has closed.
func (ln *Listener) Accept() (*Connection, error) {
	select {
	case h, ok := <-ln.accept:
		if !ok {
			return nil, BrokenPipeError("Listener.Accept")
		}
		return newConnection(h, ln.loop), nil
	case <-ln.loop.Done():
		return nil, BrokenPipeError("Listener.Accept")
	}
}

// Close stops this listener from accepting new peers. Any
// already-queued handshakes waiting in the accept channel are drained
// and immediately dropped, so the loop still cleans up their state
// even though the application never sees them.
func (ln *Listener) Close() error {
	if ln.closed {
		return nil
	}
	ln.closed = true
	ln.loop.CloseListener(ln.token)

	for {
		select {
		case h, ok := <-ln.accept:
			if !ok {
				return nil
			}
			newConnection(h, ln.loop).Close()
		default:
			return nil
		}
	}
}
