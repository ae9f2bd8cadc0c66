package gudp

import "github.com/behrlich/gudp/internal/constants"

// Re-exported defaults for callers who only need the numbers, not a Config.
const (
	DefaultHeartbeat    = constants.Heartbeat
	DefaultTimeout      = constants.Timeout
	DefaultIota         = constants.Iota
	DefaultBufSize      = constants.BufSize
	DefaultSentHistory  = constants.SentHistory
	HeaderSize          = constants.HeaderSize
	Magic        uint32 = constants.Magic
)
