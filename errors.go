package gudp

import (
	"errors"
	"fmt"
	"syscall"
)

// Kind categorizes an Error into one of gudp's domain-level failure
// modes. These are not stdlib errno names: they describe what the
// protocol state machine observed, not what the kernel returned.
type Kind string

const (
	// KindWouldBlock means the send ring was full, or the recv buffer
	// was empty under TryRecv. Non-fatal; the caller should retry.
	KindWouldBlock Kind = "would-block"

	// KindNoSpaceToRead means the caller's destination buffer was
	// smaller than the pending blob. Non-fatal; the blob is preserved
	// for a later read with a larger destination.
	KindNoSpaceToRead Kind = "no-space-to-read"

	// KindAfterHup means the operation targeted a connection whose
	// status already has an app-hup or peer-hup bit set.
	KindAfterHup Kind = "after-hup"

	// KindBrokenPipe means a loop channel send or receive failed
	// because the service side is gone.
	KindBrokenPipe Kind = "broken-pipe"

	// KindIOError wraps a platform I/O failure propagated from the
	// underlying UDP endpoint. Errno is populated when available.
	KindIOError Kind = "io-error"

	// KindAddrUnresolved means a connect target failed name
	// resolution.
	KindAddrUnresolved Kind = "addr-unresolved"

	// KindUnknown means an internal invariant was violated. Surfaced
	// rather than panicked, where possible.
	KindUnknown Kind = "unknown"
)

// Error is gudp's structured error type. Op names the operation that
// failed (e.g. "Connection.Send", "Service.Connect"); Errno is nonzero
// only for KindIOError.
type Error struct {
	Op    string
	Kind  Kind
	Errno syscall.Errno
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op == "" {
		return fmt.Sprintf("gudp: %s", msg)
	}
	if e.Errno != 0 {
		return fmt.Sprintf("gudp: %s: %s (errno=%d)", e.Op, msg, e.Errno)
	}
	return fmt.Sprintf("gudp: %s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

// Is supports errors.Is against another *Error sharing the same Kind,
// so callers can write errors.Is(err, &gudp.Error{Kind: gudp.KindAfterHup}).
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == te.Kind
}

// newError builds an Error of the given kind with an operation label
// and message.
func newError(op string, kind Kind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Msg: msg}
}

// WouldBlockError reports a retryable non-fatal condition: the send
// ring is full, or TryRecv found nothing pending.
func WouldBlockError(op string) *Error {
	return newError(op, KindWouldBlock, "operation would block")
}

// NoSpaceToReadError reports that dst was too small to hold the
// pending blob; the blob remains queued.
func NoSpaceToReadError(op string, need, have int) *Error {
	return newError(op, KindNoSpaceToRead, fmt.Sprintf("destination has %d bytes, need %d", have, need))
}

// AfterHupError reports an operation attempted on a connection that
// has already been hung up, locally or by the peer.
func AfterHupError(op string) *Error {
	return newError(op, KindAfterHup, "connection already closed")
}

// BrokenPipeError reports a failed send/receive on a loop's internal
// channel, meaning the owning service is gone.
func BrokenPipeError(op string) *Error {
	return newError(op, KindBrokenPipe, "service is no longer running")
}

// IOErrorFrom wraps a platform I/O failure, extracting the syscall
// errno when the error chain carries one.
func IOErrorFrom(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	e := &Error{Op: op, Kind: KindIOError, Msg: inner.Error(), Inner: inner}
	var errno syscall.Errno
	if errors.As(inner, &errno) {
		e.Errno = errno
	}
	return e
}

// AddrUnresolvedError reports that a connect target's address failed
// to resolve.
func AddrUnresolvedError(op string, addr string, inner error) *Error {
	return &Error{
		Op:    op,
		Kind:  KindAddrUnresolved,
		Msg:   fmt.Sprintf("could not resolve %q", addr),
		Inner: inner,
	}
}

// UnknownError reports an internal invariant violation. Surfaced
// rather than panicked wherever the call site can still return an
// error.
func UnknownError(op string, msg string) *Error {
	return newError(op, KindUnknown, msg)
}

// IsKind reports whether err is a *Error (directly or in its chain)
// carrying the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
