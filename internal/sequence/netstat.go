package sequence

import "time"

// RTT is an exponentially-weighted moving average round-trip estimator.
type RTT struct {
	smoothing float64
	estimate  time.Duration
	seeded    bool
}

// NewRTT returns an RTT estimator with the given smoothing factor
// (0 < smoothing <= 1; higher weights recent samples more heavily).
func NewRTT(smoothing float64) *RTT {
	return &RTT{smoothing: smoothing}
}

// Measure folds a new round-trip sample into the estimate. Negative
// samples (a clock anomaly) are clamped to zero.
func (r *RTT) Measure(sample time.Duration) time.Duration {
	if sample < 0 {
		sample = 0
	}
	if !r.seeded {
		r.estimate = sample
		r.seeded = true
		return r.estimate
	}
	r.estimate = time.Duration(r.smoothing*float64(sample) + (1-r.smoothing)*float64(r.estimate))
	return r.estimate
}

// Estimate returns the current smoothed round-trip estimate.
func (r *RTT) Estimate() time.Duration { return r.estimate }

// Loss tracks a running count of acknowledged versus evicted-unacked
// (lost) sent packets.
type Loss struct {
	found uint64
	lost  uint64
}

// RecordFound counts an acknowledged send.
func (l *Loss) RecordFound() { l.found++ }

// RecordLost adds n evicted-unacked sends to the running lost count.
func (l *Loss) RecordLost(n uint32) { l.lost += uint64(n) }

// Ratio returns the fraction of tracked sends considered lost, or 0 if
// nothing has been tracked yet.
func (l *Loss) Ratio() float64 {
	total := l.found + l.lost
	if total == 0 {
		return 0
	}
	return float64(l.lost) / float64(total)
}

// Counts returns the raw found/lost tallies.
func (l *Loss) Counts() (found, lost uint64) { return l.found, l.lost }
