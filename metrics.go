package gudp

import (
	"sync/atomic"
	"time"
)

// Metrics tracks per-connection protocol-level statistics: packet and
// byte counters plus the smoothed RTT and loss ratio produced by the
// sequence tracker.
type Metrics struct {
	PacketsSent     atomic.Uint64
	PacketsReceived atomic.Uint64
	PacketsAcked    atomic.Uint64
	PacketsLost     atomic.Uint64
	HeartbeatsSent  atomic.Uint64

	BytesSent     atomic.Uint64
	BytesReceived atomic.Uint64

	// RTTEstimateNs holds the most recent smoothed RTT estimate, in
	// nanoseconds, as reported by the connection's RTT tracker.
	RTTEstimateNs atomic.Int64

	StartTime atomic.Int64
}

// NewMetrics returns a zeroed Metrics with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordSent records an outbound data packet of the given payload size.
func (m *Metrics) RecordSent(payloadBytes int) {
	m.PacketsSent.Add(1)
	m.BytesSent.Add(uint64(payloadBytes))
}

// RecordHeartbeat records an outbound zero-payload heartbeat.
func (m *Metrics) RecordHeartbeat() {
	m.HeartbeatsSent.Add(1)
}

// RecordReceived records an inbound packet that passed header
// validation, regardless of whether it carried new payload.
func (m *Metrics) RecordReceived(payloadBytes int) {
	m.PacketsReceived.Add(1)
	m.BytesReceived.Add(uint64(payloadBytes))
}

// RecordAcked records a single sent-history entry reaching Acked.
func (m *Metrics) RecordAcked() {
	m.PacketsAcked.Add(1)
}

// RecordLost records n sent-history entries evicted without ever being
// acknowledged (see internal/sequence ClearOld).
func (m *Metrics) RecordLost(n uint32) {
	m.PacketsLost.Add(uint64(n))
}

// RecordRTT updates the exported RTT estimate.
func (m *Metrics) RecordRTT(estimate time.Duration) {
	m.RTTEstimateNs.Store(int64(estimate))
}

// LossRatio returns the fraction of sent packets considered lost, or 0
// if nothing has been acked or lost yet.
func (m *Metrics) LossRatio() float64 {
	lost := m.PacketsLost.Load()
	acked := m.PacketsAcked.Load()
	total := lost + acked
	if total == 0 {
		return 0
	}
	return float64(lost) / float64(total)
}

// MetricsSnapshot is a point-in-time copy of Metrics, safe to read
// without further synchronization.
type MetricsSnapshot struct {
	PacketsSent     uint64
	PacketsReceived uint64
	PacketsAcked    uint64
	PacketsLost     uint64
	HeartbeatsSent  uint64
	BytesSent       uint64
	BytesReceived   uint64
	RTTEstimate     time.Duration
	LossRatio       float64
	UptimeNs        uint64
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		PacketsSent:     m.PacketsSent.Load(),
		PacketsReceived: m.PacketsReceived.Load(),
		PacketsAcked:    m.PacketsAcked.Load(),
		PacketsLost:     m.PacketsLost.Load(),
		HeartbeatsSent:  m.HeartbeatsSent.Load(),
		BytesSent:       m.BytesSent.Load(),
		BytesReceived:   m.BytesReceived.Load(),
		RTTEstimate:     time.Duration(m.RTTEstimateNs.Load()),
	}
	snap.LossRatio = m.LossRatio()
	snap.UptimeNs = uint64(time.Now().UnixNano() - m.StartTime.Load())
	return snap
}

// Reset zeroes all counters and restarts the uptime clock. Useful in
// tests.
func (m *Metrics) Reset() {
	m.PacketsSent.Store(0)
	m.PacketsReceived.Store(0)
	m.PacketsAcked.Store(0)
	m.PacketsLost.Store(0)
	m.HeartbeatsSent.Store(0)
	m.BytesSent.Store(0)
	m.BytesReceived.Store(0)
	m.RTTEstimateNs.Store(0)
	m.StartTime.Store(time.Now().UnixNano())
}

// Observer receives protocol events as they happen, for pluggable
// metrics collection (e.g. MetricsObserver below). The Service calls
// ObserveSent, ObserveAcked and ObserveLost; it does not call
// ObserveHeartbeat, ObserveReceived or ObserveRTT.
type Observer interface {
	ObserveSent(payloadBytes int)
	ObserveHeartbeat()
	ObserveReceived(payloadBytes int)
	ObserveAcked()
	ObserveLost(n uint32)
	ObserveRTT(estimate time.Duration)
}

// NoOpObserver discards every event.
type NoOpObserver struct{}

func (NoOpObserver) ObserveSent(int)         {}
func (NoOpObserver) ObserveHeartbeat()       {}
func (NoOpObserver) ObserveReceived(int)     {}
func (NoOpObserver) ObserveAcked()           {}
func (NoOpObserver) ObserveLost(uint32)      {}
func (NoOpObserver) ObserveRTT(time.Duration) {}

// MetricsObserver implements Observer by recording into a Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver returns an Observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveSent(payloadBytes int)  { o.metrics.RecordSent(payloadBytes) }
func (o *MetricsObserver) ObserveHeartbeat()              { o.metrics.RecordHeartbeat() }
func (o *MetricsObserver) ObserveReceived(payloadBytes int) {
	o.metrics.RecordReceived(payloadBytes)
}
func (o *MetricsObserver) ObserveAcked()            { o.metrics.RecordAcked() }
func (o *MetricsObserver) ObserveLost(n uint32)     { o.metrics.RecordLost(n) }
func (o *MetricsObserver) ObserveRTT(d time.Duration) { o.metrics.RecordRTT(d) }

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
