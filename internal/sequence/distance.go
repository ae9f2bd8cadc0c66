// Package sequence implements wraparound-tolerant sequence number
// comparison, ack-window iteration, and RTT/loss estimation for a single
// connection's send/receive sequence state.
package sequence

const (
	halfMaxPlus1 = 1 << 31
	maxMinus31   = ^uint32(0) - 31
	maxMinus32   = ^uint32(0) - 32
)

// Class classifies the wraparound-aware distance between two sequence
// numbers.
type Class int

const (
	// Old means the packet is stale and should be dropped.
	Old Class = iota
	// Redundant means the packet is a duplicate of the latest or within
	// the ack window; it should still be delivered but not advance state.
	Redundant
	// New carries the advance amount.
	New
)

// Distance classifies the gap from start to end (both modulo 2^32) and,
// for New, returns the advance amount.
type Distance struct {
	Class Class
	N     uint32 // valid only when Class == New
}

// ComputeDistance returns the wraparound-tolerant classification of end
// relative to start: delta = end - start (mod 2^32).
//
//	delta == 0, or delta in [2^32-32, 2^32-1]   -> Redundant
//	delta in [2^31, 2^32-33]                     -> Old
//	delta in [1, 2^31-1]                          -> New(delta)
func ComputeDistance(start, end uint32) Distance {
	delta := end - start
	switch {
	case delta == 0:
		return Distance{Class: Redundant}
	case delta >= maxMinus31:
		return Distance{Class: Redundant}
	case delta >= halfMaxPlus1 && delta <= maxMinus32:
		return Distance{Class: Old}
	default:
		return Distance{Class: New, N: delta}
	}
}
