package connstate

import (
	"net"
	"testing"
	"time"

	"github.com/behrlich/gudp/internal/clock"
	"github.com/behrlich/gudp/internal/header"
	"github.com/behrlich/gudp/internal/ring"
)

func addr(s string) net.Addr {
	a, _ := net.ResolveUDPAddr("udp", s)
	return a
}

func newTestState(t *testing.T, cb Callbacks) (*State, *clock.Test) {
	t.Helper()
	tc := clock.NewTest()
	opts := Opts{Heartbeat: 1000 * time.Millisecond, Timeout: 5000 * time.Millisecond, BufSize: 4096}
	s := New(addr("127.0.0.1:1000"), addr("127.0.0.1:2000"), opts, cb, tc)
	return s, tc
}

func TestInitSchedulesTimersAndPreloadsHeartbeat(t *testing.T) {
	s, _ := newTestState(t, Callbacks{})
	timers := s.Init()
	if len(timers) != 2 {
		t.Fatalf("Init returned %d timer ops, want 2", len(timers))
	}
	var sawTimeout, sawHeartbeat bool
	for _, op := range timers {
		if !op.Add {
			t.Fatal("Init should only add timers")
		}
		switch op.Kind {
		case TimerTimeout:
			sawTimeout = true
		case TimerHeartbeat:
			sawHeartbeat = true
		}
	}
	if !sawTimeout || !sawHeartbeat {
		t.Fatal("Init must schedule both Timeout and Heartbeat")
	}
	var pending int
	s.Shared.WithWriteLock(func(r *ring.Ring) { pending = r.Len() })
	if pending != 1 {
		t.Fatalf("Init should preload exactly one heartbeat payload, got %d pending", pending)
	}
}

func TestReadHandshakeDeliversAndTransitions(t *testing.T) {
	var delivered *State
	cb := Callbacks{}
	s, _ := newTestState(t, cb)
	s.opts.Deliver = func(st *State) bool { delivered = st; return true }
	s.Init()

	res := s.Read(header.Header{LocalSeqNo: 42}, nil)
	if res.RemoveMe {
		t.Fatal("successful handshake should not remove the connection")
	}
	if s.Phase != Connected {
		t.Fatal("state should transition to Connected on first valid datagram")
	}
	if delivered != s {
		t.Fatal("Deliver callback should receive this state")
	}
	if s.Sequence.RemoteSeqNo != 42 {
		t.Fatalf("RemoteSeqNo = %d, want 42", s.Sequence.RemoteSeqNo)
	}
}

func TestReadHandshakeDeliveryFailureRemovesConnection(t *testing.T) {
	s, _ := newTestState(t, Callbacks{})
	s.opts.Deliver = func(*State) bool { return false }
	s.Init()

	res := s.Read(header.Header{LocalSeqNo: 1}, nil)
	if !res.RemoveMe {
		t.Fatal("failed delivery should signal RemoveMe")
	}
}

func TestReadDropsOldPackets(t *testing.T) {
	s, _ := newTestState(t, Callbacks{})
	s.opts.Deliver = func(*State) bool { return true }
	s.Init()
	s.Read(header.Header{LocalSeqNo: 1000}, nil)

	before := s.Sequence.RemoteSeqNo
	s.Read(header.Header{LocalSeqNo: 500}, []byte("stale"))
	if s.Sequence.RemoteSeqNo != before {
		t.Fatal("Old packet must not advance RemoteSeqNo")
	}
	if n, _, _, had := s.Shared.TryRecv(make([]byte, 16)); had || n != 0 {
		t.Fatal("Old packet payload must not reach the read ring")
	}
}

func TestReadDeliversPayloadAndWakesAcks(t *testing.T) {
	var acked []uint32
	cb := Callbacks{OnPacketAcked: func(_, _ net.Addr, seq uint32) { acked = append(acked, seq) }}
	s, tc := newTestState(t, cb)
	s.opts.Deliver = func(*State) bool { return true }
	s.Init()
	s.Read(header.Header{LocalSeqNo: 1}, nil)

	s.Sequence.RecordSent(0, tc.Now())
	tc.Tick(10 * time.Millisecond)

	s.Read(header.Header{LocalSeqNo: 2, RemoteSeqNo: 0, RemoteSeqTail: 0}, []byte("payload"))

	dst := make([]byte, 32)
	n, ok, _, had := s.Shared.TryRecv(dst)
	if !ok || !had || string(dst[:n]) != "payload" {
		t.Fatalf("TryRecv = %q ok=%v had=%v", dst[:n], ok, had)
	}
	if len(acked) != 1 || acked[0] != 0 {
		t.Fatalf("acked = %v, want [0]", acked)
	}
}

func TestWriteDrainsHeartbeatAndSchedulesNext(t *testing.T) {
	s, _ := newTestState(t, Callbacks{})
	s.Init() // preloads one empty payload

	var sent [][]byte
	scratch := make([]byte, header.Size+64)
	res := s.Write(0x67756470, scratch, func(buf []byte) (bool, error) {
		cp := append([]byte(nil), buf...)
		sent = append(sent, cp)
		return false, nil
	})
	if res.Err != nil || res.WouldBlock {
		t.Fatalf("unexpected write result: %+v", res)
	}
	if len(sent) != 1 || len(sent[0]) != header.Size {
		t.Fatalf("expected exactly one heartbeat-sized datagram, got %v", sent)
	}
	h, ok := header.Decode(sent[0])
	if !ok || h.Magic != 0x67756470 {
		t.Fatalf("sent datagram header invalid: %+v ok=%v", h, ok)
	}
	var rescheduled bool
	for _, op := range res.Timers {
		if op.Kind == TimerHeartbeat && op.Add {
			rescheduled = true
		}
	}
	if !rescheduled {
		t.Fatalf("Write should schedule the next Heartbeat, got timer ops %+v", res.Timers)
	}
}

func TestWriteStopsOnWouldBlock(t *testing.T) {
	s, _ := newTestState(t, Callbacks{})
	s.Shared.PushWrite([]byte("a"))
	s.Shared.PushWrite([]byte("b"))

	scratch := make([]byte, header.Size+64)
	calls := 0
	res := s.Write(1, scratch, func(buf []byte) (bool, error) {
		calls++
		return true, nil // would-block immediately
	})
	if !res.WouldBlock {
		t.Fatal("expected WouldBlock result")
	}
	if calls != 1 {
		t.Fatalf("send called %d times, want 1 (stop at first would-block)", calls)
	}
}

func TestTimeoutFiresPeerHupAfterSilence(t *testing.T) {
	s, tc := newTestState(t, Callbacks{})
	s.Init()
	tc.Tick(6 * time.Second)

	res := s.Timer(TimerTimeout)
	if !res.RemoveMe {
		t.Fatal("Timeout after silence should report RemoveMe")
	}
	if !s.Shared.Status.IsClosed() {
		t.Fatal("Timeout should close status")
	}
}

func TestTimeoutRescheduledIfRecentlyAlive(t *testing.T) {
	s, tc := newTestState(t, Callbacks{})
	s.Init()
	tc.Tick(1 * time.Second)
	s.Read(header.Header{LocalSeqNo: 1}, nil) // bumps LastRecv via the Deliver-less path

	res := s.Timer(TimerTimeout)
	if res.RemoveMe {
		t.Fatal("Timeout should not fire right after activity")
	}
	if len(res.Timers) != 1 || res.Timers[0].Kind != TimerTimeout || !res.Timers[0].Add {
		t.Fatalf("Timeout should be rescheduled, got timer ops %+v", res.Timers)
	}
}

func TestHeartbeatTimerEnqueuesWriteIfIdle(t *testing.T) {
	s, _ := newTestState(t, Callbacks{})
	// no Init: write ring starts empty
	res := s.Timer(TimerHeartbeat)
	if !res.WantWriteCb {
		t.Fatal("Heartbeat should request a write-wake")
	}
	var pending int
	s.Shared.WithWriteLock(func(r *ring.Ring) { pending = r.Len() })
	if pending != 1 {
		t.Fatalf("Heartbeat should enqueue exactly one payload when idle, got %d pending", pending)
	}
}
