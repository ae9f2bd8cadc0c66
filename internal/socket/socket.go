// Package socket implements the loop-owned record tied to one UDP
// endpoint: either a Direct connection (created by an active connect)
// or a Passive listener multiplexing many peers.
package socket

import (
	"net"

	"github.com/behrlich/gudp/internal/connstate"
)

// Token is the opaque integer the event loop assigns a registered
// socket at registration time. Keying everything on a small integer
// (rather than a back-reference to the socket record) avoids cyclic
// shared state between a connection and its owning socket.
type Token uint64

// ID identifies one virtual connection: which socket it's multiplexed
// over, plus the peer address distinguishing it from others on the same
// Passive socket.
type ID struct {
	Token Token
	Peer  string // net.Addr.String(), comparable map key
}

// Handle bundles a freshly available connstate.State with the token and
// peer key the application-facing Connection needs in order to address
// write-wakes back to the owning loop.
type Handle struct {
	State *connstate.State
	Token Token
	Peer  string
}

// ConnOpts is what a connect/listen request threads through to the
// state machine: the reply channel(s) it uses to hand off the resulting
// handle.
type ConnOpts struct {
	// ReplyConn delivers a freshly handshaken connection Handle onto a
	// Passive listener's accept queue. Active connects do not use it:
	// the loop replies to Service.Connect on the request's own channel.
	ReplyConn chan Handle
}

// Kind distinguishes Direct from Passive sockets.
type Kind int

const (
	Direct Kind = iota
	Passive
)

// Record is the loop's bookkeeping for one registered UDP endpoint.
type Record struct {
	Token     Token
	Conn      net.PacketConn
	LocalAddr net.Addr
	Kind      Kind

	// Direct fields.
	Peer  net.Addr
	State *connstate.State

	// Passive fields.
	Peers          map[string]*connstate.State
	PendingWrites  []string // insertion-ordered peer keys awaiting writability
	pendingSet     map[string]bool
	Listen         *ConnOpts // nil once the listener has closed
}

// NewDirect builds a Record for an actively-connected socket.
func NewDirect(tok Token, conn net.PacketConn, peer net.Addr, state *connstate.State) *Record {
	return &Record{
		Token:     tok,
		Conn:      conn,
		LocalAddr: conn.LocalAddr(),
		Kind:      Direct,
		Peer:      peer,
		State:     state,
	}
}

// NewPassive builds a Record for a listening socket.
func NewPassive(tok Token, conn net.PacketConn, listen *ConnOpts) *Record {
	return &Record{
		Token:      tok,
		Conn:       conn,
		LocalAddr:  conn.LocalAddr(),
		Kind:       Passive,
		Peers:      make(map[string]*connstate.State),
		Listen:     listen,
		pendingSet: make(map[string]bool),
	}
}

// MarkPendingWrite records peerKey as awaiting writability, if not
// already pending.
func (r *Record) MarkPendingWrite(peerKey string) {
	if r.pendingSet[peerKey] {
		return
	}
	r.pendingSet[peerKey] = true
	r.PendingWrites = append(r.PendingWrites, peerKey)
}

// DrainPendingWrites removes and returns the current pending-write queue
// in insertion order.
func (r *Record) DrainPendingWrites() []string {
	out := r.PendingWrites
	r.PendingWrites = nil
	r.pendingSet = make(map[string]bool)
	return out
}

// RemovePeer drops peerKey from the peer map. It reports whether the
// socket record is now fully drained (no peers, no active listener) and
// should be freed.
func (r *Record) RemovePeer(peerKey string) (drained bool) {
	delete(r.Peers, peerKey)
	delete(r.pendingSet, peerKey)
	return len(r.Peers) == 0 && r.Listen == nil
}

// CloseListener clears the listen field. It reports whether the record
// is now drained.
func (r *Record) CloseListener() (drained bool) {
	r.Listen = nil
	return len(r.Peers) == 0
}
