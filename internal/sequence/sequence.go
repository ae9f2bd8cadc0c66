package sequence

import "time"

const windowSize = 32

// SentSeqNo records one outgoing datagram pending acknowledgment.
type SentSeqNo struct {
	SeqNo  uint32
	Acked  bool
	SentAt time.Time
}

// Sequence tracks per-connection send/receive sequence state: the next
// outgoing number, the highest observed remote number plus its trailing
// redundancy bitmap, and a ring of recently sent numbers awaiting ack.
type Sequence struct {
	LocalSeqNo    uint32
	RemoteSeqNo   uint32
	RemoteSeqTail uint32

	sentHistory [1024]*SentSeqNo
}

// RecordSent stores an outgoing sequence number as pending acknowledgment,
// overwriting whatever previously occupied that history slot.
func (s *Sequence) RecordSent(seqNo uint32, sentAt time.Time) {
	s.sentHistory[seqNo%uint32(len(s.sentHistory))] = &SentSeqNo{SeqNo: seqNo, SentAt: sentAt}
}

// ClearSent removes the history slot for seqNo (used for zero-payload
// heartbeats, which carry no ack obligation).
func (s *Sequence) ClearSent(seqNo uint32) {
	s.sentHistory[seqNo%uint32(len(s.sentHistory))] = nil
}

// UpdateRemote advances RemoteSeqNo/RemoteSeqTail given a New-class
// distance of `gap` from a just-received packet carrying seqNo. gap==0
// is a no-op (callers should not invoke it for Old/Redundant packets);
// gap in [1,31] shifts the tail left, setting the vacated low bit to
// mark the previous head as seen; gap>=32 means nothing in the tail
// survives and it's zeroed.
func (s *Sequence) UpdateRemote(seqNo uint32, gap uint32) {
	switch {
	case gap == 0:
		return
	case gap >= 32:
		s.RemoteSeqTail = 0
	default:
		s.RemoteSeqTail = (s.RemoteSeqTail<<1 | 1) << (gap - 1)
	}
	s.RemoteSeqNo = seqNo
}

// IterAcks consumes an (ackNo, ackTail) pair from an inbound packet and
// returns every sent_history entry newly marked acked as a result,
// oldest first. Candidates run ackNo-32 .. ackNo-1 (MSB-first through
// ackTail) followed unconditionally by ackNo itself. A slot is only
// yielded once: entries already acked, or with no matching pending
// send, are skipped.
func (s *Sequence) IterAcks(ackNo, ackTail uint32) []SentSeqNo {
	var acked []SentSeqNo
	for k := windowSize - 1; k >= 0; k-- {
		if (ackTail>>uint(k))&1 == 0 {
			continue
		}
		candidate := ackNo - uint32(k+1)
		if e := s.tryAck(candidate); e != nil {
			acked = append(acked, *e)
		}
	}
	if e := s.tryAck(ackNo); e != nil {
		acked = append(acked, *e)
	}
	return acked
}

func (s *Sequence) tryAck(seqNo uint32) *SentSeqNo {
	slot := s.sentHistory[seqNo%uint32(len(s.sentHistory))]
	if slot == nil || slot.SeqNo != seqNo || slot.Acked {
		return nil
	}
	slot.Acked = true
	cp := *slot
	return &cp
}

// ClearOld evicts sent_history slots that the 33-wide ack iteration
// window around ackNo can no longer reach (distance Old relative to
// ackNo), returning the seq numbers of those evicted slots that were
// still unacked — the packets to report lost.
func (s *Sequence) ClearOld(ackNo uint32) []uint32 {
	var lost []uint32
	for i, e := range s.sentHistory {
		if e == nil {
			continue
		}
		if ComputeDistance(ackNo, e.SeqNo).Class != Old {
			continue
		}
		if !e.Acked {
			lost = append(lost, e.SeqNo)
		}
		s.sentHistory[i] = nil
	}
	return lost
}
