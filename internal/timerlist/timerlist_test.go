package timerlist

import (
	"testing"
	"time"
)

func at(ms int) time.Time {
	return time.Unix(0, 0).Add(time.Duration(ms) * time.Millisecond)
}

func TestEmptyTimerList(t *testing.T) {
	l := New()
	if _, ok := l.WhenNext(); ok {
		t.Fatal("WhenNext on empty list should report false")
	}
	if got := l.Expire(at(1000)); got != nil {
		t.Fatalf("Expire on empty list = %v, want nil", got)
	}
}

func TestSortedSoonestToFurthest(t *testing.T) {
	l := New()
	l.Add(at(30), "c")
	l.Add(at(10), "a")
	l.Add(at(20), "b")

	when, ok := l.WhenNext()
	if !ok || !when.Equal(at(10)) {
		t.Fatalf("WhenNext = %v, want %v", when, at(10))
	}
}

func TestNextSkipsDeletes(t *testing.T) {
	l := New()
	l.Add(at(10), "a")
	l.Add(at(20), "b")
	l.Remove(at(10), "a")

	when, ok := l.WhenNext()
	if !ok || !when.Equal(at(20)) {
		t.Fatalf("WhenNext = %v, want %v", when, at(20))
	}
}

func TestExpireOrderAndDedup(t *testing.T) {
	l := New()
	l.Add(at(5), "first")
	l.Add(at(5), "second")
	l.Add(at(10), "third")
	l.Add(at(5), "fourth")
	l.Add(at(5), "fourth") // duplicate, should collapse

	got := l.Expire(at(7))
	want := []Key{"first", "second", "fourth"}
	if len(got) != len(want) {
		t.Fatalf("Expire = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Expire[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	rest := l.Expire(at(100))
	if len(rest) != 1 || rest[0] != Key("third") {
		t.Fatalf("remaining Expire = %v, want [third]", rest)
	}
}

func TestExpireBeforeAnyDeadlineReturnsEmpty(t *testing.T) {
	l := New()
	l.Add(at(100), "a")
	if got := l.Expire(at(10)); got != nil {
		t.Fatalf("Expire before deadline = %v, want nil", got)
	}
	if l.Len() != 1 {
		t.Fatalf("Len = %d, want 1", l.Len())
	}
}

func TestExpireNeverYieldsDeadlineGreaterThanNow(t *testing.T) {
	l := New()
	l.Add(at(5), "a")
	l.Add(at(15), "b")
	got := l.Expire(at(10))
	if len(got) != 1 || got[0] != Key("a") {
		t.Fatalf("Expire = %v, want [a]", got)
	}
}
