package sequence

import "testing"

func TestDistanceScenarioS5(t *testing.T) {
	cases := []struct {
		start, end uint32
		want       Distance
	}{
		{0, 0, Distance{Class: Redundant}},
		{1, 0, Distance{Class: Redundant}},
		{32, 0, Distance{Class: Redundant}},
		{33, 0, Distance{Class: Old}},
		{0, 1, Distance{Class: New, N: 1}},
		{1<<31 + 1, 0, Distance{Class: New, N: 1<<31 - 1}},
		{0, 1<<31 + 1, Distance{Class: Old}},
		{0, 1 << 31, Distance{Class: Old}},
	}
	for _, c := range cases {
		got := ComputeDistance(c.start, c.end)
		if got != c.want {
			t.Errorf("ComputeDistance(%d, %d) = %+v, want %+v", c.start, c.end, got, c.want)
		}
	}
}

func TestDistanceIsTotal(t *testing.T) {
	samples := []uint32{0, 1, 31, 32, 33, 1 << 31, 1<<31 + 1, ^uint32(0) - 1, ^uint32(0)}
	for _, s := range samples {
		d := ComputeDistance(0, s)
		switch d.Class {
		case Old, Redundant, New:
		default:
			t.Fatalf("ComputeDistance(0, %d) returned unclassified %+v", s, d)
		}
	}
}

func TestDistanceWrapBoundaryAdvance(t *testing.T) {
	d := ComputeDistance(^uint32(0), 0)
	if d.Class != New || d.N != 1 {
		t.Fatalf("ComputeDistance(MAX, 0) = %+v, want New(1)", d)
	}
}
