// Package shared implements SharedConn, the state a connection's
// application-facing handle and its event-loop entry both hold strong
// references to: a read ring guarded by a mutex+condition variable, a
// write ring guarded by a plain mutex, and an atomic Status.
//
// The read ring's lock and condition variable are always used together.
// Readers sleep on the CV while the ring is empty and the connection is
// open; the loop holds the same lock while pushing a new blob (then
// signals one waiter) and while transitioning to closed (then signals
// all waiters) — a waiter can never observe "ring empty, status open"
// and then miss a concurrent close.
package shared

import (
	"sync"

	"github.com/behrlich/gudp/internal/ring"
	"github.com/behrlich/gudp/internal/status"
	"github.com/rs/xid"
)

// SharedConn is the cross-thread-boundary state of one connection.
type SharedConn struct {
	ID xid.ID

	readMu  sync.Mutex
	readCV  *sync.Cond
	readBuf *ring.Ring

	writeMu  sync.Mutex
	writeBuf *ring.Ring

	Status status.Status
}

// New allocates a SharedConn with the given per-direction ring capacity.
func New(bufSize int) *SharedConn {
	sc := &SharedConn{
		ID:       xid.New(),
		readBuf:  ring.NewBounded(bufSize),
		writeBuf: ring.NewBounded(bufSize),
	}
	sc.readCV = sync.NewCond(&sc.readMu)
	return sc
}

// PushRead pushes a received payload onto the read ring and wakes one
// blocked reader. It returns false if the ring has no space.
func (sc *SharedConn) PushRead(payload []byte) bool {
	sc.readMu.Lock()
	defer sc.readMu.Unlock()
	ok := sc.readBuf.PushBack(payload)
	if ok {
		sc.readCV.Signal()
	}
	return ok
}

// Recv blocks until the read ring is non-empty or the connection closes,
// then pops the front payload into dst. If dst is too small for the
// pending blob, the blob is left in place and (size, false, false) is
// returned, size being the blob's length, so the caller can retry with
// a larger buffer.
func (sc *SharedConn) Recv(dst []byte) (n int, ok bool, closed bool) {
	sc.readMu.Lock()
	defer sc.readMu.Unlock()
	for sc.readBuf.Len() == 0 && !sc.Status.IsClosed() {
		sc.readCV.Wait()
	}
	if sc.readBuf.Len() == 0 {
		return 0, false, true
	}
	n, ok = sc.readBuf.PopFront(dst)
	if ok && sc.readBuf.Len() > 0 {
		sc.readCV.Signal()
	}
	return n, ok, false
}

// TryRecv never blocks. It returns (0, false, false, false) if the ring
// is empty and the connection is open (meaning: try again later).
func (sc *SharedConn) TryRecv(dst []byte) (n int, ok bool, closed bool, hadData bool) {
	sc.readMu.Lock()
	defer sc.readMu.Unlock()
	if sc.readBuf.Len() == 0 {
		return 0, false, sc.Status.IsClosed(), false
	}
	n, ok = sc.readBuf.PopFront(dst)
	if ok && sc.readBuf.Len() > 0 {
		sc.readCV.Signal()
	}
	return n, ok, false, true
}

// CloseRead marks the connection closed and wakes every blocked reader.
// The caller must have already set the relevant Status flag.
func (sc *SharedConn) CloseRead() {
	sc.readMu.Lock()
	defer sc.readMu.Unlock()
	sc.readCV.Broadcast()
}

// PushWrite enqueues an outgoing payload. It returns false if the write
// ring has no space.
func (sc *SharedConn) PushWrite(payload []byte) bool {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	return sc.writeBuf.PushBack(payload)
}

// WithWriteLock runs fn with the write ring while holding the write
// lock, so a Front peek and its Commit happen without another goroutine
// pushing in between.
func (sc *SharedConn) WithWriteLock(fn func(buf *ring.Ring)) {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	fn(sc.writeBuf)
}

// ReadLen reports the read ring's current blob count (diagnostic/test
// use only; not safe to use as a non-blocking emptiness check without
// the lock since the loop may push concurrently).
func (sc *SharedConn) ReadLen() int {
	sc.readMu.Lock()
	defer sc.readMu.Unlock()
	return sc.readBuf.Len()
}
