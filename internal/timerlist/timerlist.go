// Package timerlist implements an ordered (deadline, key) multiset with
// soft-delete removal, used by the event loop to schedule Heartbeat and
// Timeout events per connection.
package timerlist

import (
	"sort"
	"time"
)

// Key identifies a scheduled timer. Any comparable type works; the event
// loop uses (token, peerAddr, kind) tuples.
type Key interface{}

type entry struct {
	deadline time.Time
	key      Key
	live     bool
}

// List is a sorted multiset of (deadline, key) pairs ordered earliest
// deadline first. Removal is soft-delete: an entry's live flag is
// cleared rather than the slice being compacted, keeping Remove cheap.
// Dead entries are dropped lazily as Expire walks past them.
type List struct {
	entries []entry
}

// New returns an empty timer list.
func New() *List {
	return &List{}
}

// Add inserts a new (deadline, key) pair. Duplicate (deadline, key)
// pairs already present and live are not re-added.
func (l *List) Add(deadline time.Time, key Key) {
	for _, e := range l.entries {
		if e.live && e.deadline.Equal(deadline) && e.key == key {
			return
		}
	}
	idx := sort.Search(len(l.entries), func(i int) bool {
		return l.entries[i].deadline.After(deadline)
	})
	l.entries = append(l.entries, entry{})
	copy(l.entries[idx+1:], l.entries[idx:])
	l.entries[idx] = entry{deadline: deadline, key: key, live: true}
}

// Remove soft-deletes the first live entry matching (deadline, key). It
// is a no-op if no such entry exists.
func (l *List) Remove(deadline time.Time, key Key) {
	for i := range l.entries {
		e := &l.entries[i]
		if e.live && e.deadline.Equal(deadline) && e.key == key {
			e.live = false
			return
		}
	}
}

// WhenNext returns the earliest live deadline and true, or the zero time
// and false if the list has no live entries.
func (l *List) WhenNext() (time.Time, bool) {
	for _, e := range l.entries {
		if e.live {
			return e.deadline, true
		}
	}
	return time.Time{}, false
}

// Expire removes and returns all live keys whose deadline is ≤ now,
// earliest-first, and drops any dead entries it passes over.
func (l *List) Expire(now time.Time) []Key {
	var expired []Key
	i := 0
	for ; i < len(l.entries); i++ {
		e := l.entries[i]
		if e.live && e.deadline.After(now) {
			break
		}
		if e.live {
			expired = append(expired, e.key)
		}
	}
	l.entries = l.entries[i:]
	return expired
}

// Len reports the number of live entries.
func (l *List) Len() int {
	n := 0
	for _, e := range l.entries {
		if e.live {
			n++
		}
	}
	return n
}
