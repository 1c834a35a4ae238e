package kb

import (
	"fmt"
	"sync"
	"testing"

	"github.com/signalsfoundry/nodemap/model"
)

func rec(id string, count int) model.NodeRecord {
	return model.NodeRecord{ID: id, Count: count, Status: model.StatusRunning}
}

func TestSnapshotBeforePublish(t *testing.T) {
	feed := NewFeed()
	if _, ok := feed.Snapshot(); ok {
		t.Fatalf("Snapshot reported ok before any Publish")
	}
	if feed.Version() != 0 || feed.Len() != 0 {
		t.Fatalf("empty feed version=%d len=%d", feed.Version(), feed.Len())
	}
}

func TestPublishCopiesInput(t *testing.T) {
	feed := NewFeed()
	nodes := []model.NodeRecord{rec("a", 1), rec("b", 2)}
	if v := feed.Publish(nodes); v != 1 {
		t.Fatalf("first version = %d, want 1", v)
	}
	nodes[0].Count = 99

	snap, ok := feed.Snapshot()
	if !ok || snap.Version != 1 || len(snap.Nodes) != 2 {
		t.Fatalf("Snapshot = %+v ok=%v", snap, ok)
	}
	if snap.Nodes[0].Count != 1 {
		t.Fatalf("feed aliased the caller's slice: count = %d", snap.Nodes[0].Count)
	}
	snap.Nodes[1].Count = 50
	if again, _ := feed.Snapshot(); again.Nodes[1].Count != 2 {
		t.Fatalf("Snapshot aliased the feed: count = %d", again.Nodes[1].Count)
	}
}

func TestLenTracksLatestSnapshot(t *testing.T) {
	feed := NewFeed()
	feed.Publish([]model.NodeRecord{rec("a", 1), rec("a", 7), rec("b", 2)})
	if got := feed.Len(); got != 3 {
		t.Fatalf("Len = %d, want 3 (duplicates are kept for the engine to resolve)", got)
	}
	feed.Publish(nil)
	if got := feed.Len(); got != 0 {
		t.Fatalf("Len after empty publish = %d, want 0", got)
	}
}

func TestSubscribeOrderAndUnsubscribe(t *testing.T) {
	feed := NewFeed()
	var calls []string
	unsubA := feed.Subscribe(func(s Snapshot) { calls = append(calls, fmt.Sprintf("a%d", s.Version)) })
	feed.Subscribe(func(s Snapshot) { calls = append(calls, fmt.Sprintf("b%d", s.Version)) })

	feed.Publish(nil)
	unsubA()
	unsubA()
	feed.Publish(nil)

	want := []string{"a1", "b1", "b2"}
	if fmt.Sprint(calls) != fmt.Sprint(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
}

func TestSubscriberMayReadFeed(t *testing.T) {
	feed := NewFeed()
	var seen int
	feed.Subscribe(func(s Snapshot) { seen = feed.Len() })
	feed.Publish([]model.NodeRecord{rec("a", 1), rec("b", 1)})
	if seen != 2 {
		t.Fatalf("subscriber saw len %d, want 2", seen)
	}
}

func TestConcurrentPublishAndRead(t *testing.T) {
	feed := NewFeed()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				feed.Publish([]model.NodeRecord{rec(fmt.Sprintf("n%d", i), j+1)})
				feed.Snapshot()
			}
		}(i)
	}
	wg.Wait()
	if feed.Version() != 400 {
		t.Fatalf("version = %d, want 400", feed.Version())
	}
}
