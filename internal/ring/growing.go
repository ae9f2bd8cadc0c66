package ring

// Growing wraps a Ring that reallocates instead of failing when a push
// doesn't fit, carrying every live blob over to the new slab in order.
type Growing struct {
	r *Ring
}

// NewGrowing allocates a growing ring with an initial byte capacity.
func NewGrowing(initialCapacity int) *Growing {
	return &Growing{r: NewBounded(initialCapacity)}
}

// Len returns the number of blobs currently stored.
func (g *Growing) Len() int { return g.r.Len() }

// Cap returns the ring's current byte capacity.
func (g *Growing) Cap() int { return g.r.Cap() }

// Remaining returns the number of free bytes at the current capacity.
func (g *Growing) Remaining() int { return g.r.Remaining() }

// PushBack writes src as a new blob, growing the backing slab first if
// there isn't enough room. It always succeeds.
func (g *Growing) PushBack(src []byte) {
	need := prefixSize + len(src)
	if need > g.r.Remaining() {
		g.grow(need)
	}
	g.r.PushBack(src)
}

// grow reallocates the backing slab to fit at least `need` additional
// bytes. Every live blob is copied out of the old ring, oldest first,
// and pushed into a fresh ring, so the new slab starts unwrapped at
// index 0.
func (g *Growing) grow(need int) {
	old := g.r
	newCap := len(old.buf)*2 + need
	if newCap < len(old.buf)+need {
		newCap = len(old.buf) + need
	}
	nr := NewBounded(newCap)

	// Copy logical contents out in order, oldest blob first, then
	// reinsert into the fresh slab. This is the simplest way to
	// guarantee order survives regardless of wrap state.
	tmp := make([][]byte, 0, old.count)
	scratch := make([]byte, 0, 256)
	for old.count > 0 {
		size := old.peekLen()
		if cap(scratch) < size {
			scratch = make([]byte, size)
		}
		blob := scratch[:size]
		old.copyOut(blob, old.wrap(old.headIdx+prefixSize))
		cp := make([]byte, size)
		copy(cp, blob)
		tmp = append(tmp, cp)
		old.dropFrontLocked(size)
	}
	for _, b := range tmp {
		nr.PushBack(b)
	}
	g.r = nr
}

// Front peeks at the next blob; see Ring.Front.
func (g *Growing) Front(dst []byte) (Handle, bool) {
	h, ok := g.r.Front(dst)
	h.r = g.r
	return h, ok
}

// PopFront copies the front blob into dst and consumes it; see
// Ring.PopFront.
func (g *Growing) PopFront(dst []byte) (int, bool) {
	return g.r.PopFront(dst)
}

// DropFront discards the front blob; see Ring.DropFront.
func (g *Growing) DropFront() bool { return g.r.DropFront() }

// Clear empties the ring without shrinking the backing slab.
func (g *Growing) Clear() { g.r.Clear() }
