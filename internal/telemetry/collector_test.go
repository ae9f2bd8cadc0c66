package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

type fakeSource struct {
	snap Snapshot
}

func (f fakeSource) Snapshot() Snapshot { return f.snap }

func TestCollectorDescribeAndCollect(t *testing.T) {
	c := New("gudp", []string{"conn", "peer"}, nil)

	descs := make(chan *prometheus.Desc, 16)
	c.Describe(descs)
	close(descs)
	var count int
	for range descs {
		count++
	}
	if count != 9 {
		t.Fatalf("Describe sent %d descs, want 9", count)
	}

	c.Add("abc123", fakeSource{snap: Snapshot{PacketsSent: 5, PacketsAcked: 4, PacketsLost: 1, LossRatio: 0.2}}, []string{"abc123", "127.0.0.1:9000"})

	metrics := make(chan prometheus.Metric, 16)
	c.Collect(metrics)
	close(metrics)

	var got int
	for m := range metrics {
		var pb io_prometheus_client.Metric
		if err := m.Write(&pb); err != nil {
			t.Fatalf("Write: %v", err)
		}
		got++
	}
	if got != 9 {
		t.Fatalf("Collect emitted %d metrics, want 9", got)
	}
}

func TestCollectorRemoveStopsTracking(t *testing.T) {
	c := New("gudp", []string{"conn"}, nil)
	c.Add("x", fakeSource{}, []string{"x"})
	c.Remove("x")

	metrics := make(chan prometheus.Metric, 16)
	c.Collect(metrics)
	close(metrics)

	for range metrics {
		t.Fatal("expected no metrics after Remove")
	}
}
