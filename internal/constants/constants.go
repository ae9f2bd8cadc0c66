// Package constants collects the wire, timing, and buffer sizing defaults
// used throughout gudp.
package constants

import "time"

const (
	// Heartbeat is the default interval between keep-alive datagrams for an
	// idle connection.
	Heartbeat = 1000 * time.Millisecond

	// Timeout is the default duration of silence from a peer before a
	// connection is declared dead.
	Timeout = 5000 * time.Millisecond

	// Iota bounds the selector poll timeout so the event loop never busy
	// spins when a timer is already due.
	Iota = 10 * time.Millisecond

	// BufSize is the default per-direction ring buffer capacity in bytes.
	BufSize = 4096

	// SentHistory is the size of the per-connection sent-sequence window
	// used for ack matching.
	SentHistory = 1024

	// HeaderSize is the fixed wire header length: magic + local seq +
	// remote seq + remote seq tail, all 4 bytes big-endian.
	HeaderSize = 16

	// Magic is the protocol magic value stamped on every datagram.
	Magic uint32 = 0x67756470 // "gudp"

	// RTTSmoothing is the EWMA smoothing factor applied to round-trip
	// samples.
	RTTSmoothing = 0.25
)
