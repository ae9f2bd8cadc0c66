// Package header encodes and decodes the fixed 16-byte gudp wire header:
// magic, local sequence number, remote sequence number, remote sequence
// tail bitmap, all big-endian u32 fields. Payload follows immediately.
package header

import "encoding/binary"

// Size is the fixed wire header length in bytes.
const Size = 16

// Header is the decoded form of a datagram's leading 16 bytes.
type Header struct {
	Magic         uint32
	LocalSeqNo    uint32
	RemoteSeqNo   uint32
	RemoteSeqTail uint32
}

// Encode writes h into the first Size bytes of dst. It panics if dst is
// shorter than Size; callers are expected to size scratch buffers
// correctly ahead of time.
func Encode(dst []byte, h Header) {
	binary.BigEndian.PutUint32(dst[0:4], h.Magic)
	binary.BigEndian.PutUint32(dst[4:8], h.LocalSeqNo)
	binary.BigEndian.PutUint32(dst[8:12], h.RemoteSeqNo)
	binary.BigEndian.PutUint32(dst[12:16], h.RemoteSeqTail)
}

// Decode parses the leading Size bytes of src. It reports false if src
// is shorter than Size.
func Decode(src []byte) (Header, bool) {
	if len(src) < Size {
		return Header{}, false
	}
	return Header{
		Magic:         binary.BigEndian.Uint32(src[0:4]),
		LocalSeqNo:    binary.BigEndian.Uint32(src[4:8]),
		RemoteSeqNo:   binary.BigEndian.Uint32(src[8:12]),
		RemoteSeqTail: binary.BigEndian.Uint32(src[12:16]),
	}, true
}
