package gudp

import (
	"net"
	"time"

	"github.com/behrlich/gudp/internal/clock"
	"github.com/behrlich/gudp/internal/logging"
)

// PacketSentFunc is invoked on the loop thread each time a connection
// drains a data packet onto the wire. Must not block or call back into
// the service.
type PacketSentFunc func(local, peer net.Addr, payload []byte, seqNo uint32)

// PacketAckedFunc is invoked on the loop thread each time a previously
// sent sequence number is acknowledged.
type PacketAckedFunc func(local, peer net.Addr, seqNo uint32)

// PacketLostFunc is invoked on the loop thread each time a sent
// sequence number is evicted from history without ever being
// acknowledged. Reserved; a Config may leave it nil.
type PacketLostFunc func(local, peer net.Addr, seqNo uint32)

// Config is the immutable set of options a Service is built from.
// Construct one with DefaultConfig or NewBuilder, never directly.
type Config struct {
	Heartbeat time.Duration
	Timeout   time.Duration
	Iota      time.Duration
	BufSize   int

	Clock    clock.Clock
	Logger   *logging.Logger
	Observer Observer

	OnPacketSent  PacketSentFunc
	OnPacketAcked PacketAckedFunc
	OnPacketLost  PacketLostFunc
}

// DefaultConfig returns the protocol's default timing and buffer
// constants with no callbacks, the system clock, the default logger,
// and a NoOpObserver.
func DefaultConfig() Config {
	return Config{
		Heartbeat: DefaultHeartbeat,
		Timeout:   DefaultTimeout,
		Iota:      DefaultIota,
		BufSize:   DefaultBufSize,
		Clock:     clock.System{},
		Logger:    logging.Default(),
		Observer:  NoOpObserver{},
	}
}

// Builder fluently assembles a Config, mirroring the teacher's
// params-struct-plus-defaults pattern but exposing chained setters for
// the handful of fields that are typically overridden one at a time
// (callbacks, clock, logger, observer) rather than constructed as a
// single literal.
type Builder struct {
	cfg Config
}

// NewBuilder starts from DefaultConfig.
func NewBuilder() *Builder {
	return &Builder{cfg: DefaultConfig()}
}

// WithHeartbeat overrides the heartbeat interval.
func (b *Builder) WithHeartbeat(d time.Duration) *Builder {
	b.cfg.Heartbeat = d
	return b
}

// WithTimeout overrides the peer liveness timeout.
func (b *Builder) WithTimeout(d time.Duration) *Builder {
	b.cfg.Timeout = d
	return b
}

// WithIota overrides the minimum poll timeout floor.
func (b *Builder) WithIota(d time.Duration) *Builder {
	b.cfg.Iota = d
	return b
}

// WithBufSize overrides the per-direction ring buffer size.
func (b *Builder) WithBufSize(n int) *Builder {
	b.cfg.BufSize = n
	return b
}

// WithClock overrides the clock used by every connection and the event
// loop's timer list. Intended for tests; production callers should
// leave this unset.
func (b *Builder) WithClock(c clock.Clock) *Builder {
	b.cfg.Clock = c
	return b
}

// WithLogger overrides the logger the loop and connections use.
func (b *Builder) WithLogger(l *logging.Logger) *Builder {
	b.cfg.Logger = l
	return b
}

// WithObserver registers an Observer that receives data-packet sent,
// acked and lost events as they happen; heartbeat, receive and RTT
// events are not reported to it. See NewMetricsObserver to back this
// with the built-in Metrics type.
func (b *Builder) WithObserver(o Observer) *Builder {
	b.cfg.Observer = o
	return b
}

// OnPacketSent registers a callback fired from the loop thread each
// time a data packet is drained onto the wire.
func (b *Builder) OnPacketSent(fn PacketSentFunc) *Builder {
	b.cfg.OnPacketSent = fn
	return b
}

// OnPacketAcked registers a callback fired from the loop thread each
// time a sent sequence number is acknowledged.
func (b *Builder) OnPacketAcked(fn PacketAckedFunc) *Builder {
	b.cfg.OnPacketAcked = fn
	return b
}

// OnPacketLost registers a callback fired from the loop thread each
// time a sent sequence number is evicted unacknowledged.
func (b *Builder) OnPacketLost(fn PacketLostFunc) *Builder {
	b.cfg.OnPacketLost = fn
	return b
}

// Build finalizes the Config, filling in any field left zero by
// falling back to DefaultConfig's value.
func (b *Builder) Build() Config {
	def := DefaultConfig()
	if b.cfg.Heartbeat == 0 {
		b.cfg.Heartbeat = def.Heartbeat
	}
	if b.cfg.Timeout == 0 {
		b.cfg.Timeout = def.Timeout
	}
	if b.cfg.Iota == 0 {
		b.cfg.Iota = def.Iota
	}
	if b.cfg.BufSize == 0 {
		b.cfg.BufSize = def.BufSize
	}
	if b.cfg.Clock == nil {
		b.cfg.Clock = def.Clock
	}
	if b.cfg.Logger == nil {
		b.cfg.Logger = def.Logger
	}
	if b.cfg.Observer == nil {
		b.cfg.Observer = def.Observer
	}
	return b.cfg
}
