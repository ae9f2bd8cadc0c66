package socket

import "testing"

func TestPendingWritesInsertionOrderDedup(t *testing.T) {
	r := NewPassive(1, nil, &ConnOpts{})
	r.MarkPendingWrite("a")
	r.MarkPendingWrite("b")
	r.MarkPendingWrite("a") // duplicate, should not reorder or double-add

	got := r.DrainPendingWrites()
	want := []string{"a", "b"}
	if len(got) != len(want) {
		t.Fatalf("DrainPendingWrites = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("DrainPendingWrites[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if len(r.DrainPendingWrites()) != 0 {
		t.Fatal("second drain should be empty")
	}
}

func TestRemovePeerDrainsOnlyWhenListenerAbsent(t *testing.T) {
	r := NewPassive(1, nil, &ConnOpts{})
	r.Peers["x"] = nil
	if drained := r.RemovePeer("x"); drained {
		t.Fatal("record with an active listener should never report drained")
	}

	r2 := NewPassive(2, nil, nil)
	r2.Peers["y"] = nil
	if drained := r2.RemovePeer("y"); !drained {
		t.Fatal("record with no listener and no peers left should drain")
	}
}

func TestCloseListenerDrainsIfNoPeers(t *testing.T) {
	r := NewPassive(1, nil, &ConnOpts{})
	if drained := r.CloseListener(); !drained {
		t.Fatal("closing listener with no peers should drain immediately")
	}
}
