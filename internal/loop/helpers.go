package loop

import (
	"errors"
	"syscall"

	"github.com/behrlich/gudp/internal/constants"
)

// gudpMagic is the protocol magic every valid datagram must carry.
const gudpMagic = constants.Magic

// isWouldBlock reports whether err is an EAGAIN/EWOULDBLOCK from a
// non-blocking socket operation.
func isWouldBlock(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EAGAIN || errno == syscall.EWOULDBLOCK
	}
	return false
}

// extractErrno pulls the underlying syscall.Errno out of a wrapped I/O
// error, if any.
func extractErrno(err error) int32 {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int32(errno)
	}
	return 0
}
