// Package kb holds the latest node snapshot shared between data sources and
// visualisation sessions.
package kb

import (
	"sync"

	"github.com/signalsfoundry/nodemap/model"
)

// Snapshot is one published node set. Version increases by one on every
// Publish, starting at 1.
type Snapshot struct {
	Version uint64
	Nodes   []model.NodeRecord
}

// Feed is an in-memory, thread-safe holder of the latest node snapshot.
type Feed struct {
	mu sync.RWMutex

	version uint64
	nodes   []model.NodeRecord

	nextSub int
	subs    map[int]func(Snapshot)
	order   []int
}

// NewFeed constructs an empty feed at version 0.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]func(Snapshot))}
}

// Publish replaces the node set and notifies subscribers in subscription
// order. The feed keeps its own copy of nodes. It returns the new version.
func (f *Feed) Publish(nodes []model.NodeRecord) uint64 {
	f.mu.Lock()
	f.version++
	f.nodes = append([]model.NodeRecord(nil), nodes...)
	snap := Snapshot{Version: f.version, Nodes: f.nodes}
	subs := make([]func(Snapshot), 0, len(f.order))
	for _, k := range f.order {
		subs = append(subs, f.subs[k])
	}
	f.mu.Unlock()

	// Notify subscribers outside the lock to avoid deadlocks.
	for _, sub := range subs {
		sub(copySnapshot(snap))
	}
	return snap.Version
}

// Snapshot returns a copy of the latest node set. ok is false before the
// first Publish.
func (f *Feed) Snapshot() (snap Snapshot, ok bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.version == 0 {
		return Snapshot{}, false
	}
	return copySnapshot(Snapshot{Version: f.version, Nodes: f.nodes}), true
}

// Version returns the latest version, 0 before the first Publish.
func (f *Feed) Version() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.version
}

// Len returns the number of records in the latest snapshot.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.nodes)
}

// Subscribe registers a callback for future snapshots. It returns an
// unsubscribe function that is safe to call more than once.
func (f *Feed) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := f.nextSub
	f.nextSub++
	f.subs[key] = fn
	f.order = append(f.order, key)

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.subs[key]; !ok {
			return
		}
		delete(f.subs, key)
		for i, k := range f.order {
			if k == key {
				f.order = append(f.order[:i], f.order[i+1:]...)
				break
			}
		}
	}
}

func copySnapshot(s Snapshot) Snapshot {
	return Snapshot{Version: s.Version, Nodes: append([]model.NodeRecord(nil), s.Nodes...)}
}
