// Package status implements the atomic close-reason bitfield shared
// between a connection's application handle and its event-loop state.
// Bits are monotone: once set, never cleared.
package status

import "sync/atomic"

const (
	flagAppHup uint32 = 1 << iota
	flagPeerHup
	flagIOErr
)

// Closer identifies which side caused a connection to close.
type Closer int

const (
	// NoCloser means the connection is still open.
	NoCloser Closer = iota
	// Application means the local handle was dropped/closed.
	Application
	// Peer means the peer timed out.
	Peer
	// IO means a platform I/O error was observed.
	IO
)

// Status is an atomic bitfield of close flags plus a once-set errno slot.
type Status struct {
	bits  atomic.Uint32
	errno atomic.Int32
}

// SetAppHup marks the connection closed by the application.
func (s *Status) SetAppHup() { s.setFlag(flagAppHup) }

// SetPeerHup marks the connection closed due to peer timeout.
func (s *Status) SetPeerHup() { s.setFlag(flagPeerHup) }

// SetIOErr stores errno (once; first writer wins) and marks the
// connection closed due to an I/O error.
func (s *Status) SetIOErr(errno int32) {
	s.errno.CompareAndSwap(0, errno)
	s.setFlag(flagIOErr)
}

func (s *Status) setFlag(flag uint32) {
	for {
		old := s.bits.Load()
		if old&flag != 0 {
			return
		}
		if s.bits.CompareAndSwap(old, old|flag) {
			return
		}
	}
}

// IsClosed reports whether any close flag is set.
func (s *Status) IsClosed() bool { return s.bits.Load() != 0 }

// IsOpen is the negation of IsClosed.
func (s *Status) IsOpen() bool { return !s.IsClosed() }

// Errno returns the stored errno, or 0 if none was ever set.
func (s *Status) Errno() int32 { return s.errno.Load() }

// Closer reports which side closed the connection. It does not record
// which flag was set first: when several are set, an I/O error wins over
// a peer timeout, which wins over a local close.
func (s *Status) Closer() Closer {
	bits := s.bits.Load()
	switch {
	case bits&flagIOErr != 0:
		return IO
	case bits&flagPeerHup != 0:
		return Peer
	case bits&flagAppHup != 0:
		return Application
	default:
		return NoCloser
	}
}

// AppHasHup reports whether the application side has closed its handle.
func (s *Status) AppHasHup() bool { return s.bits.Load()&flagAppHup != 0 }
