// Package telemetry exposes gudp connection metrics as Prometheus
// collectors.
package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Source is whatever can produce a metrics snapshot for one tracked
// connection. The root package's *Metrics is not a Source as is: its
// Snapshot returns gudp.MetricsSnapshot, not this package's Snapshot.
type Source interface {
	Snapshot() Snapshot
}

// Snapshot is the subset of gudp.MetricsSnapshot the collector needs.
// Defined locally so this package does not import the root package
// (which itself may want to import telemetry to wire an Observer).
type Snapshot struct {
	PacketsSent     uint64
	PacketsReceived uint64
	PacketsAcked    uint64
	PacketsLost     uint64
	HeartbeatsSent  uint64
	BytesSent       uint64
	BytesReceived   uint64
	RTTEstimateNs   int64
	LossRatio       float64
}

type entry struct {
	source Source
	labels []string
}

// Collector is a prometheus.Collector over a dynamic set of gudp
// connections, each identified by its own label values (typically the
// connection id and peer address).
type Collector struct {
	mu     sync.Mutex
	conns  map[string]entry
	prefix string

	sentDesc        *prometheus.Desc
	receivedDesc    *prometheus.Desc
	ackedDesc       *prometheus.Desc
	lostDesc        *prometheus.Desc
	heartbeatsDesc  *prometheus.Desc
	bytesSentDesc   *prometheus.Desc
	bytesRecvDesc   *prometheus.Desc
	rttDesc         *prometheus.Desc
	lossRatioDesc   *prometheus.Desc
}

// New returns a Collector that labels every exported metric with
// labelNames, plus any constLabels fixed for the process.
func New(prefix string, labelNames []string, constLabels prometheus.Labels) *Collector {
	mk := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prefix+"_"+name, help, labelNames, constLabels)
	}
	return &Collector{
		conns:          make(map[string]entry),
		prefix:         prefix,
		sentDesc:       mk("packets_sent_total", "Total data packets sent"),
		receivedDesc:   mk("packets_received_total", "Total packets received"),
		ackedDesc:      mk("packets_acked_total", "Total sent packets acknowledged"),
		lostDesc:       mk("packets_lost_total", "Total sent packets evicted unacknowledged"),
		heartbeatsDesc: mk("heartbeats_sent_total", "Total heartbeat packets sent"),
		bytesSentDesc:  mk("bytes_sent_total", "Total payload bytes sent"),
		bytesRecvDesc:  mk("bytes_received_total", "Total payload bytes received"),
		rttDesc:        mk("rtt_estimate_seconds", "Smoothed round-trip time estimate"),
		lossRatioDesc:  mk("loss_ratio", "Fraction of sent packets considered lost"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.sentDesc
	descs <- c.receivedDesc
	descs <- c.ackedDesc
	descs <- c.lostDesc
	descs <- c.heartbeatsDesc
	descs <- c.bytesSentDesc
	descs <- c.bytesRecvDesc
	descs <- c.rttDesc
	descs <- c.lossRatioDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(metrics chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.conns {
		snap := e.source.Snapshot()
		metrics <- prometheus.MustNewConstMetric(c.sentDesc, prometheus.CounterValue, float64(snap.PacketsSent), e.labels...)
		metrics <- prometheus.MustNewConstMetric(c.receivedDesc, prometheus.CounterValue, float64(snap.PacketsReceived), e.labels...)
		metrics <- prometheus.MustNewConstMetric(c.ackedDesc, prometheus.CounterValue, float64(snap.PacketsAcked), e.labels...)
		metrics <- prometheus.MustNewConstMetric(c.lostDesc, prometheus.CounterValue, float64(snap.PacketsLost), e.labels...)
		metrics <- prometheus.MustNewConstMetric(c.heartbeatsDesc, prometheus.CounterValue, float64(snap.HeartbeatsSent), e.labels...)
		metrics <- prometheus.MustNewConstMetric(c.bytesSentDesc, prometheus.CounterValue, float64(snap.BytesSent), e.labels...)
		metrics <- prometheus.MustNewConstMetric(c.bytesRecvDesc, prometheus.CounterValue, float64(snap.BytesReceived), e.labels...)
		metrics <- prometheus.MustNewConstMetric(c.rttDesc, prometheus.GaugeValue, float64(snap.RTTEstimateNs)/1e9, e.labels...)
		metrics <- prometheus.MustNewConstMetric(c.lossRatioDesc, prometheus.GaugeValue, snap.LossRatio, e.labels...)
	}
}

// Add registers a connection under key (typically its xid-tagged
// connection id), tracking source for future Collect calls and
// tagging its metrics with labelValues in the same order as the
// labelNames passed to New.
func (c *Collector) Add(key string, source Source, labelValues []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[key] = entry{source: source, labels: labelValues}
}

// Remove stops tracking the connection registered under key.
func (c *Collector) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns, key)
}

var _ prometheus.Collector = (*Collector)(nil)
