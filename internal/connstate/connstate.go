// Package connstate implements the per-peer connection state machine:
// Handshaking -> Connected, driven by init/read/write/timer/app_drop/
// io_error events dispatched from the event loop. Listener close is
// handled on the socket record (internal/socket), not here.
package connstate

import (
	"net"
	"time"

	"github.com/behrlich/gudp/internal/clock"
	"github.com/behrlich/gudp/internal/header"
	"github.com/behrlich/gudp/internal/ring"
	"github.com/behrlich/gudp/internal/sequence"
	"github.com/behrlich/gudp/internal/shared"
)

// Phase distinguishes the two FSM states named in the spec.
type Phase int

const (
	// Handshaking means no Connection handle has reached the application
	// yet.
	Handshaking Phase = iota
	// Connected means the handshake completed.
	Connected
)

// TimerKind identifies which recurring timer fired.
type TimerKind int

const (
	TimerHeartbeat TimerKind = iota
	TimerTimeout
)

// Callbacks are invoked from the loop thread; they must not block or
// call back into the service.
type Callbacks struct {
	OnPacketSent  func(local, peer net.Addr, payload []byte, seqNo uint32)
	OnPacketAcked func(local, peer net.Addr, seqNo uint32)
	OnPacketLost  func(local, peer net.Addr, seqNo uint32)
}

// Opts parameterizes a connection created either by an outgoing connect
// or by accepting a peer on a listening socket.
type Opts struct {
	Heartbeat time.Duration
	Timeout   time.Duration
	BufSize   int
	Deliver   func(*State) bool // hands the Connection handle to the app; false = delivery failed; nil = nothing to deliver
}

// State is one peer's connection state, owned by the event loop and
// mirrored to the application through its Shared field.
type State struct {
	Shared *shared.SharedConn

	LocalAddr net.Addr
	PeerAddr  net.Addr

	LastRecv time.Time
	LastSend time.Time

	Sequence sequence.Sequence
	RTT      *sequence.RTT
	Loss     *sequence.Loss

	Phase Phase
	opts  Opts
	cb    Callbacks
	clk   clock.Clock

	delivered bool
}

// New constructs a Handshaking state. It does not yet register timers or
// preload the handshake heartbeat — call Init for that.
func New(local, peer net.Addr, opts Opts, cb Callbacks, clk clock.Clock) *State {
	return &State{
		Shared:    shared.New(opts.BufSize),
		LocalAddr: local,
		PeerAddr:  peer,
		Phase:     Handshaking,
		opts:      opts,
		cb:        cb,
		clk:       clk,
		RTT:       sequence.NewRTT(0.25),
		Loss:      &sequence.Loss{},
	}
}

// TimerOp describes a single add/remove the caller should apply to the
// event loop's shared TimerList, keyed by whatever (token, peer, kind)
// tuple the caller uses.
type TimerOp struct {
	Kind    TimerKind
	Add     bool // true: schedule at Deadline; false: cancel
	Deadline time.Time
}

// Init runs the init event: schedules Timeout and Heartbeat and
// preloads the write ring with an empty handshake payload.
func (s *State) Init() []TimerOp {
	now := s.clk.Now()
	s.LastRecv = now
	s.LastSend = now
	s.Shared.PushWrite(nil)
	return []TimerOp{
		{Kind: TimerTimeout, Add: true, Deadline: now.Add(s.opts.Timeout)},
		{Kind: TimerHeartbeat, Add: true, Deadline: now.Add(s.opts.Heartbeat)},
	}
}

// ReadResult tells the loop what to do after dispatching a Read event.
type ReadResult struct {
	RemoveMe bool
	Timers   []TimerOp
}

// Read handles one inbound, header-validated datagram.
func (s *State) Read(h header.Header, payload []byte) ReadResult {
	now := s.clk.Now()
	var res ReadResult

	if s.Phase == Handshaking {
		if !s.delivered {
			if s.opts.Deliver != nil && !s.opts.Deliver(s) {
				res.RemoveMe = true
				return res
			}
			s.delivered = true
		}
		s.Sequence.RemoteSeqNo = h.LocalSeqNo
		s.Phase = Connected
	}

	// 1. bump liveness
	res.Timers = append(res.Timers,
		TimerOp{Kind: TimerTimeout, Add: false, Deadline: s.LastRecv.Add(s.opts.Timeout)},
	)
	s.LastRecv = now
	res.Timers = append(res.Timers,
		TimerOp{Kind: TimerTimeout, Add: true, Deadline: now.Add(s.opts.Timeout)},
	)

	// 2. app hup + drain check
	if s.Shared.Status.AppHasHup() {
		empty := true
		s.Shared.WithWriteLock(func(r *ring.Ring) { empty = r.Len() == 0 })
		if empty {
			res.RemoveMe = true
			return res
		}
	}

	// 3. distance classification
	d := sequence.ComputeDistance(s.Sequence.RemoteSeqNo, h.LocalSeqNo)
	switch d.Class {
	case sequence.Old:
		return res
	case sequence.New:
		lost := s.Sequence.ClearOld(h.RemoteSeqNo)
		if len(lost) > 0 {
			s.Loss.RecordLost(uint32(len(lost)))
			if s.cb.OnPacketLost != nil {
				for _, seqNo := range lost {
					s.cb.OnPacketLost(s.LocalAddr, s.PeerAddr, seqNo)
				}
			}
		}
		s.Sequence.UpdateRemote(h.LocalSeqNo, d.N)
	case sequence.Redundant:
		// delivered without advancing
	}

	// 4. payload delivery
	if len(payload) > 0 {
		s.Shared.PushRead(payload)
	}

	// 5. ack iteration
	for _, acked := range s.Sequence.IterAcks(h.RemoteSeqNo, h.RemoteSeqTail) {
		sample := now.Sub(acked.SentAt)
		s.RTT.Measure(sample)
		s.Loss.RecordFound()
		if s.cb.OnPacketAcked != nil {
			s.cb.OnPacketAcked(s.LocalAddr, s.PeerAddr, acked.SeqNo)
		}
	}

	return res
}

// WriteResult tells the loop what to do after draining the write ring.
type WriteResult struct {
	RemoveMe   bool
	WouldBlock bool
	Err        error
	Timers     []TimerOp
}

// Send is the socket-level send primitive the Write event needs: write
// buf (header+payload) to the peer, reporting io.ErrShortWrite-style
// would-block via the bool.
type Send func(buf []byte) (wouldBlock bool, err error)

// Write drains the write ring to the socket using scratch as a
// header+payload staging buffer. It loops until would-block, empty, or
// an unrecoverable error.
func (s *State) Write(magic uint32, scratch []byte, send Send) WriteResult {
	var res WriteResult
	for {
		var (
			payloadLen int
			havePacket bool
			appHup     bool
		)
		s.Shared.WithWriteLock(func(r *ring.Ring) {
			h, ok := r.Front(scratch[header.Size:])
			if !ok {
				appHup = s.Shared.Status.AppHasHup()
				return
			}
			if !h.Fit() {
				// scratch too small for this payload; treat as an
				// internal sizing bug rather than silently truncating.
				return
			}
			payloadLen = h.Size()
			havePacket = true
			header.Encode(scratch, header.Header{
				Magic:         magic,
				LocalSeqNo:    s.Sequence.LocalSeqNo,
				RemoteSeqNo:   s.Sequence.RemoteSeqNo,
				RemoteSeqTail: s.Sequence.RemoteSeqTail,
			})
			wouldBlock, err := send(scratch[:header.Size+payloadLen])
			if err != nil {
				res.Err = err
				return
			}
			if wouldBlock {
				res.WouldBlock = true
				havePacket = false
				return
			}
			h.Commit(ring.Pop)
		})

		if res.Err != nil {
			return res
		}
		if res.WouldBlock {
			return res
		}
		if !havePacket {
			if appHup {
				res.RemoveMe = true
				s.Shared.Status.SetAppHup()
				s.Shared.CloseRead()
			}
			return res
		}

		now := s.clk.Now()
		oldLastSend := s.LastSend
		if payloadLen > 0 {
			s.Sequence.RecordSent(s.Sequence.LocalSeqNo, now)
			if s.cb.OnPacketSent != nil {
				s.cb.OnPacketSent(s.LocalAddr, s.PeerAddr, scratch[header.Size:header.Size+payloadLen], s.Sequence.LocalSeqNo)
			}
		} else {
			s.Sequence.ClearSent(s.Sequence.LocalSeqNo)
		}
		s.LastSend = now
		res.Timers = append(res.Timers,
			TimerOp{Kind: TimerHeartbeat, Add: false, Deadline: oldLastSend.Add(s.opts.Heartbeat)},
			TimerOp{Kind: TimerHeartbeat, Add: true, Deadline: now.Add(s.opts.Heartbeat)},
		)
		s.Sequence.LocalSeqNo++
	}
}

// TimerResult tells the loop what to do after a scheduled timer fired.
type TimerResult struct {
	RemoveMe    bool
	Timers      []TimerOp
	WantWriteCb bool // Heartbeat: caller should trigger a write-wake
}

// Timer handles a Heartbeat or Timeout firing for this connection.
func (s *State) Timer(kind TimerKind) TimerResult {
	now := s.clk.Now()
	var res TimerResult

	switch kind {
	case TimerTimeout:
		if now.Sub(s.LastRecv) >= s.opts.Timeout {
			s.Shared.Status.SetPeerHup()
			s.Shared.CloseRead()
			res.RemoveMe = true
			return res
		}
		res.Timers = append(res.Timers, TimerOp{Kind: TimerTimeout, Add: true, Deadline: s.LastRecv.Add(s.opts.Timeout)})
	case TimerHeartbeat:
		res.Timers = append(res.Timers, TimerOp{Kind: TimerHeartbeat, Add: true, Deadline: now.Add(s.opts.Heartbeat)})
		var alreadyPending bool
		s.Shared.WithWriteLock(func(r *ring.Ring) { alreadyPending = r.Len() > 0 })
		if !alreadyPending {
			s.Shared.PushWrite(nil)
		}
		res.WantWriteCb = true
	}
	return res
}

// AppDrop handles the application side dropping its last Connection
// reference.
func (s *State) AppDrop() {
	s.Shared.Status.SetAppHup()
}

// IOError handles a fatal I/O error observed on the underlying socket.
func (s *State) IOError(errno int32) {
	s.Shared.Status.SetIOErr(errno)
	s.Shared.CloseRead()
}

