// Package ring implements a length-prefixed byte ring buffer storing
// variable-length blobs, each prefixed by a 4-byte big-endian length.
// Two variants share the same commit protocol: Bounded fails push_back
// when there is no room; Growing reallocates instead.
package ring

import "encoding/binary"

const prefixSize = 4

// CommitKind selects what happens to a peeked blob: Keep leaves it at the
// front, Pop consumes it.
type CommitKind int

const (
	Keep CommitKind = iota
	Pop
)

// Ring is a fixed-capacity, length-prefixed circular buffer. It never
// grows; Push fails with false when there isn't room for the prefix plus
// payload.
type Ring struct {
	buf       []byte
	headIdx   int
	nextIdx   int
	count     int
	remaining int
}

// NewBounded allocates a ring with the given byte capacity.
func NewBounded(capacity int) *Ring {
	return &Ring{buf: make([]byte, capacity), remaining: capacity}
}

// Len returns the number of blobs currently stored.
func (r *Ring) Len() int { return r.count }

// Cap returns the ring's total byte capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Remaining returns the number of free bytes.
func (r *Ring) Remaining() int { return r.remaining }

// PushBack writes src as a new blob. It returns false if there is not
// enough room (4+len(src) > Remaining()).
func (r *Ring) PushBack(src []byte) bool {
	need := prefixSize + len(src)
	if need > r.remaining {
		return false
	}
	r.writeAt(r.nextIdx, src)
	r.nextIdx = r.wrap(r.nextIdx + need)
	r.remaining -= need
	r.count++
	return true
}

// writeAt writes the length prefix and payload starting at idx, wrapping
// as needed.
func (r *Ring) writeAt(idx int, src []byte) {
	var lenBuf [prefixSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(src)))
	idx = r.copyIn(idx, lenBuf[:])
	r.copyIn(idx, src)
}

func (r *Ring) copyIn(idx int, src []byte) int {
	n := len(r.buf)
	for len(src) > 0 {
		chunk := n - idx
		if chunk > len(src) {
			chunk = len(src)
		}
		copy(r.buf[idx:idx+chunk], src[:chunk])
		src = src[chunk:]
		idx = r.wrap(idx + chunk)
	}
	return idx
}

func (r *Ring) copyOut(dst []byte, idx int) int {
	n := len(r.buf)
	for len(dst) > 0 {
		chunk := n - idx
		if chunk > len(dst) {
			chunk = len(dst)
		}
		copy(dst[:chunk], r.buf[idx:idx+chunk])
		dst = dst[chunk:]
		idx = r.wrap(idx + chunk)
	}
	return idx
}

func (r *Ring) wrap(idx int) int {
	n := len(r.buf)
	if n == 0 {
		return 0
	}
	idx %= n
	if idx < 0 {
		idx += n
	}
	return idx
}

func (r *Ring) peekLen() int {
	var lenBuf [prefixSize]byte
	r.copyOut(lenBuf[:], r.headIdx)
	return int(binary.BigEndian.Uint32(lenBuf[:]))
}

// Handle is a peeked-but-not-yet-committed view of the front blob.
type Handle struct {
	r    *Ring
	size int
	fit  bool
}

// Size returns the peeked blob's length.
func (h Handle) Size() int { return h.size }

// Fit reports whether the destination buffer supplied to Front was large
// enough to hold the peeked blob.
func (h Handle) Fit() bool { return h.fit }

// Commit applies Keep or Pop to the peeked front blob.
func (h Handle) Commit(kind CommitKind) {
	if kind == Pop && h.fit {
		h.r.dropFrontLocked(h.size)
	}
}

// Front peeks at the next blob without consuming it, copying up to
// len(dst) bytes into dst. The caller must call Commit on the returned
// Handle to either leave the blob in place (Keep) or consume it (Pop).
// If dst is smaller than the pending blob, Fit() is false and a Pop
// commit is a no-op — the data is preserved so the caller can retry with
// a larger buffer.
func (r *Ring) Front(dst []byte) (Handle, bool) {
	if r.count == 0 {
		return Handle{}, false
	}
	size := r.peekLen()
	if size > len(dst) {
		return Handle{r: r, size: size, fit: false}, true
	}
	r.copyOut(dst[:size], r.wrap(r.headIdx+prefixSize))
	return Handle{r: r, size: size, fit: true}, true
}

func (r *Ring) dropFrontLocked(size int) {
	adv := prefixSize + size
	r.headIdx = r.wrap(r.headIdx + adv)
	r.remaining += adv
	r.count--
}

// PopFront copies the front blob into dst and consumes it, returning its
// size. It returns (0, false) if the ring is empty, or (size, false) if
// dst is too small — in that case the blob is left in place.
func (r *Ring) PopFront(dst []byte) (int, bool) {
	h, ok := r.Front(dst)
	if !ok {
		return 0, false
	}
	if !h.Fit() {
		return h.Size(), false
	}
	h.Commit(Pop)
	return h.Size(), true
}

// DropFront discards the front blob without copying it anywhere.
func (r *Ring) DropFront() bool {
	if r.count == 0 {
		return false
	}
	size := r.peekLen()
	r.dropFrontLocked(size)
	return true
}

// Clear empties the ring, resetting it to the state of a freshly
// allocated ring of the same capacity.
func (r *Ring) Clear() {
	r.headIdx = 0
	r.nextIdx = 0
	r.count = 0
	r.remaining = len(r.buf)
}
