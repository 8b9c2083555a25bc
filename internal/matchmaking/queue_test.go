package matchmaking

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestQueue(t *testing.T) (*Queue, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	n := 0
	q := NewQueue(WithClock(clk.Now), WithRoomIDs(func(time.Time) string {
		n++
		return fmt.Sprintf("room-%d", n)
	}))
	return q, clk
}

func TestFIFOPairing(t *testing.T) {
	q, _ := newTestQueue(t)
	if res := q.Join("A", "", ""); res.Matched {
		t.Fatalf("A should wait")
	}
	res := q.Join("B", "", "")
	if !res.Matched || res.Opponent.ConnectionID != "A" {
		t.Fatalf("B should match A: %+v", res)
	}
	if q.Join("C", "", "").Matched {
		t.Fatalf("C should wait")
	}
	res2 := q.Join("D", "", "")
	if !res2.Matched || res2.Opponent.ConnectionID != "C" {
		t.Fatalf("D should match C: %+v", res2)
	}
	if res.RoomID == res2.RoomID {
		t.Fatalf("matches share a room id %q", res.RoomID)
	}
	if q.Len() != 0 {
		t.Fatalf("queue length=%d want 0", q.Len())
	}
	for _, id := range []string{"A", "B"} {
		if room, ok := q.MatchedRoom(id); !ok || room != res.RoomID {
			t.Fatalf("%s matched room=%q ok=%v", id, room, ok)
		}
	}
}

func TestDuplicateJoinIsNoop(t *testing.T) {
	q, _ := newTestQueue(t)
	q.Join("p1", "u1", "Alice")
	res := q.Join("p1", "u1", "Alice")
	if res.Matched || q.Len() != 1 {
		t.Fatalf("duplicate join changed state: %+v len=%d", res, q.Len())
	}
	res = q.Join("p2", "", "")
	if !res.Matched || res.Opponent.ConnectionID != "p1" || res.Opponent.DisplayName != "Alice" {
		t.Fatalf("p2 should match p1: %+v", res)
	}
}

func TestJoinAfterMatchQueuesAgain(t *testing.T) {
	q, _ := newTestQueue(t)
	q.Join("p1", "", "")
	first := q.Join("p2", "", "")
	if !first.Matched || q.Len() != 0 {
		t.Fatalf("p1 and p2 should pair: %+v len=%d", first, q.Len())
	}
	res := q.Join("p1", "", "")
	if res.Matched || q.Len() != 1 || !q.IsQueued("p1") {
		t.Fatalf("matched p1 should wait again: %+v len=%d", res, q.Len())
	}
	if room, ok := q.MatchedRoom("p1"); !ok || room != first.RoomID {
		t.Fatalf("earlier match record lost: %q ok=%v", room, ok)
	}
}

func TestLeaveKeepsMatchRecords(t *testing.T) {
	q, _ := newTestQueue(t)
	q.Join("A", "", "")
	if !q.Leave("A") || q.Leave("A") {
		t.Fatalf("leave should succeed once")
	}
	if q.IsQueued("A") {
		t.Fatalf("A still queued")
	}
	q.Join("B", "", "")
	q.Join("C", "", "")
	if q.Leave("B") {
		t.Fatalf("matched B is not waiting")
	}
	if !q.IsMatched("B") {
		t.Fatalf("leave must not drop match records")
	}
	q.RemoveFromMatch("B")
	if q.IsMatched("B") || !q.IsMatched("C") {
		t.Fatalf("RemoveFromMatch should only drop B")
	}
}

func TestSweepStale(t *testing.T) {
	q, clk := newTestQueue(t)
	q.Join("old", "", "")
	clk.Advance(4 * time.Minute)
	q.Join("new", "", "")
	clk.Advance(90 * time.Second)

	if n := q.SweepStale(5 * time.Minute); n != 1 {
		t.Fatalf("removed=%d want 1", n)
	}
	snap := q.Snapshot()
	if len(snap) != 1 || snap[0].ConnectionID != "new" {
		t.Fatalf("remaining=%+v", snap)
	}
	if n := q.SweepStale(5 * time.Minute); n != 0 {
		t.Fatalf("second sweep removed %d", n)
	}
}

func TestSnapshotIsOrderedCopy(t *testing.T) {
	q, clk := newTestQueue(t)
	q.Join("A", "", "")
	clk.Advance(time.Second)
	q.Join("A", "", "")
	snap := q.Snapshot()
	snap[0].ConnectionID = "mutated"
	if q.Snapshot()[0].ConnectionID != "A" {
		t.Fatalf("snapshot aliases queue storage")
	}
}

func TestConcurrentJoinsPairEveryone(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup
	results := make([]JoinResult, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = q.Join(fmt.Sprintf("c%d", i), "", "")
		}(i)
	}
	wg.Wait()
	matched := 0
	rooms := map[string]int{}
	for _, r := range results {
		if r.Matched {
			matched++
			rooms[r.RoomID]++
			if !strings.HasPrefix(r.RoomID, "match-") {
				t.Fatalf("room id %q", r.RoomID)
			}
		}
	}
	if matched != 50 || q.Len() != 0 || len(rooms) != 50 {
		t.Fatalf("matched=%d len=%d rooms=%d", matched, q.Len(), len(rooms))
	}
}

func TestRunSweeperStopsOnCancel(t *testing.T) {
	q := NewQueue()
	q.Join("A", "", "")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.RunSweeper(ctx, time.Millisecond, 0)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for q.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
	if q.Len() != 0 {
		t.Fatalf("sweeper did not reap the entry")
	}
}
